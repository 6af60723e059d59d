package control

import (
	"math"
	"testing"

	"github.com/relabs-tech/ballbot/internal/kinematics"
)

func testOpts() BalancerOpts {
	return BalancerOpts{
		Gains:           Gains{Kp: 11, Ki: 0, Kd: 0.1},
		DT:              0.005,
		MaxDuty:         0.8,
		MaxTilt:         5 * math.Pi / 180,
		MaxBallVelocity: 0.5,
		Policy:          HoldPrevious,
	}
}

func TestEnvelopeHoldsPitchOnTilt(t *testing.T) {
	b := NewBalancer(testOpts())

	// One in-range tick commits a pitch torque.
	_, ty1, gated := b.Step(0.01, 0.02, kinematics.Vec3{})
	if gated {
		t.Fatal("in-range tick should not be gated")
	}
	if ty1 == 0 {
		t.Fatal("expected nonzero pitch torque for nonzero tilt")
	}

	// Over-tilt: the freshly computed pitch torque is suppressed and the
	// previous committed value is held unchanged.
	over := 1.1 * b.opts.MaxTilt
	tx2, ty2, gated := b.Step(over, 0.02, kinematics.Vec3{})
	if !gated {
		t.Fatal("over-tilt tick should be gated")
	}
	if ty2 != ty1 {
		t.Fatalf("held pitch torque changed: was %v, got %v", ty1, ty2)
	}
	// Roll is not gated by default.
	if tx2 == 0 {
		t.Fatal("roll torque should still be committed while gated")
	}
}

func TestEnvelopeGatesOnBallVelocity(t *testing.T) {
	b := NewBalancer(testOpts())

	_, ty1, _ := b.Step(0.01, 0.01, kinematics.Vec3{})
	_, ty2, gated := b.Step(0.01, 0.01, kinematics.Vec3{0, 0.6, 0})
	if !gated {
		t.Fatal("body rate above limit should gate the envelope")
	}
	if ty2 != ty1 {
		t.Fatalf("expected held pitch torque %v, got %v", ty1, ty2)
	}
}

func TestEnvelopeZeroPolicy(t *testing.T) {
	opts := testOpts()
	opts.Policy = ZeroOutput
	b := NewBalancer(opts)

	b.Step(0.01, 0.02, kinematics.Vec3{})
	_, ty, gated := b.Step(1.1*opts.MaxTilt, 0.02, kinematics.Vec3{})
	if !gated {
		t.Fatal("expected gated tick")
	}
	if ty != 0 {
		t.Fatalf("zero policy: expected 0 pitch torque, got %v", ty)
	}
}

func TestEnvelopeGateRoll(t *testing.T) {
	opts := testOpts()
	opts.GateRoll = true
	b := NewBalancer(opts)

	tx1, _, _ := b.Step(0.01, 0.02, kinematics.Vec3{})
	tx2, _, gated := b.Step(1.1*opts.MaxTilt, 0.02, kinematics.Vec3{})
	if !gated {
		t.Fatal("expected gated tick")
	}
	if tx2 != tx1 {
		t.Fatalf("gated roll should hold %v, got %v", tx1, tx2)
	}
}

func TestBalancerReset(t *testing.T) {
	b := NewBalancer(testOpts())
	b.Step(0.02, 0.03, kinematics.Vec3{})
	b.Reset()
	if b.roll != (PIDState{}) || b.pitch != (PIDState{}) || b.lastTy != 0 {
		t.Fatal("reset did not clear state")
	}
}

func TestParseHoldPolicy(t *testing.T) {
	if p, err := ParseHoldPolicy("hold"); err != nil || p != HoldPrevious {
		t.Fatalf("hold: got %v, %v", p, err)
	}
	if p, err := ParseHoldPolicy("zero"); err != nil || p != ZeroOutput {
		t.Fatalf("zero: got %v, %v", p, err)
	}
	if _, err := ParseHoldPolicy("bogus"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
