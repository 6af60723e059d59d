package control

import "math"

var (
	sqrt2    = math.Sqrt2
	sqrt3    = math.Sqrt(3)
	twoSqrt2 = 2 * math.Sqrt2
)

// Mix converts body torque demands (tx=roll, ty=pitch, tz=yaw) into the
// three motor duty cycles. The rows realize three motors spaced 120
// degrees apart; the leading sign flip matches the motors' physical
// polarity. Each duty is clamped to [-maxDuty, maxDuty].
func Mix(tx, ty, tz, maxDuty float64) [3]float64 {
	d := [3]float64{
		-(tz - twoSqrt2*ty) / 3,
		-(tz + sqrt2*(ty+sqrt3*tx)) / 3,
		-(tz + sqrt2*(ty-sqrt3*tx)) / 3,
	}
	for i := range d {
		d[i] = Clamp(d[i], maxDuty)
	}
	return d
}
