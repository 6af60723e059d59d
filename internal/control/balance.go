package control

import (
	"fmt"
	"math"

	"github.com/relabs-tech/ballbot/internal/kinematics"
)

// HoldPolicy selects what the balancer outputs for a gated axis while
// the safety envelope is violated.
type HoldPolicy int

const (
	// HoldPrevious keeps the last committed torque until the envelope
	// clears. Integrator state is not reset.
	HoldPrevious HoldPolicy = iota
	// ZeroOutput drops the gated torque to zero for the tick.
	ZeroOutput
)

// ParseHoldPolicy maps the config spelling to a HoldPolicy.
func ParseHoldPolicy(s string) (HoldPolicy, error) {
	switch s {
	case "hold":
		return HoldPrevious, nil
	case "zero":
		return ZeroOutput, nil
	}
	return 0, fmt.Errorf("unknown safety hold policy %q (want \"hold\" or \"zero\")", s)
}

// BalancerOpts configures a Balancer. Angles are radians, rates rad/s.
type BalancerOpts struct {
	Gains           Gains
	DT              float64 // control period, seconds
	MaxDuty         float64 // per-axis torque clamp
	MaxTilt         float64
	MaxBallVelocity float64
	Policy          HoldPolicy
	// GateRoll applies the safety envelope to the roll axis as well.
	// Off by default: the envelope historically gated only pitch.
	GateRoll bool
}

// Balancer runs the two stabilizing loops, one per tilt axis, with the
// setpoint fixed at zero (upright), and gates their output through the
// tilt/velocity safety envelope.
type Balancer struct {
	opts BalancerOpts

	roll  PIDState
	pitch PIDState

	lastTx float64
	lastTy float64
}

func NewBalancer(opts BalancerOpts) *Balancer {
	return &Balancer{opts: opts}
}

// Step consumes one sensor sample and returns the roll and pitch torque
// demands. gated reports whether the safety envelope suppressed fresh
// output this tick. Both PID loops always advance their state; gating
// only affects which value is committed.
func (b *Balancer) Step(roll, pitch float64, bodyRates kinematics.Vec3) (tx, ty float64, gated bool) {
	o := b.opts

	tx, b.roll = o.Gains.Step(b.roll, roll, 0, o.DT, o.MaxDuty)
	ty, b.pitch = o.Gains.Step(b.pitch, pitch, 0, o.DT, o.MaxDuty)

	if math.Abs(roll) > o.MaxTilt || math.Abs(pitch) > o.MaxTilt {
		gated = true
	} else if bodyRates.MaxAbs() > o.MaxBallVelocity {
		gated = true
	}

	if gated {
		switch o.Policy {
		case ZeroOutput:
			ty = 0
		default:
			ty = b.lastTy
		}
		if o.GateRoll {
			switch o.Policy {
			case ZeroOutput:
				tx = 0
			default:
				tx = b.lastTx
			}
		}
	}

	b.lastTx = tx
	b.lastTy = ty
	return tx, ty, gated
}

// Reset clears the PID state and the held outputs.
func (b *Balancer) Reset() {
	b.roll = PIDState{}
	b.pitch = PIDState{}
	b.lastTx = 0
	b.lastTy = 0
}
