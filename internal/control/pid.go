package control

// Gains holds the PID coefficients for one axis.
type Gains struct {
	Kp, Ki, Kd float64
}

// PIDState is the controller memory carried between steps: the error
// integral and the previous error for the derivative term. Keeping it
// explicit (instead of hidden inside a controller object) makes every
// step reproducible from its inputs.
type PIDState struct {
	Integral  float64
	PrevError float64
}

// Step advances the controller by one sample of dt seconds and returns
// the output clamped to [-maxOut, maxOut] together with the successor
// state. Pure: the receiver and the input state are not mutated.
func (g Gains) Step(s PIDState, measurement, setpoint, dt, maxOut float64) (float64, PIDState) {
	err := setpoint - measurement

	s.Integral += err * dt

	var d float64
	if dt > 0 {
		d = (err - s.PrevError) / dt
	}
	s.PrevError = err

	out := Clamp(g.Kp*err+g.Ki*s.Integral+g.Kd*d, maxOut)
	return out, s
}

// Clamp limits v to [-limit, limit].
func Clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
