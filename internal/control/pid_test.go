package control

import (
	"math"
	"testing"
)

func TestPIDStepZeroError(t *testing.T) {
	g := Gains{Kp: 11, Ki: 0.5, Kd: 0.1}
	out, s := g.Step(PIDState{}, 0, 0, 0.005, 0.8)
	if out != 0 {
		t.Fatalf("zero error: expected 0 output, got %v", out)
	}
	if s.Integral != 0 || s.PrevError != 0 {
		t.Fatalf("zero error: expected zero state, got %+v", s)
	}
}

func TestPIDStepSign(t *testing.T) {
	g := Gains{Kp: 11}
	out, _ := g.Step(PIDState{}, 0.01, 0, 0.005, 0.8)
	if out >= 0 {
		t.Fatalf("positive tilt: expected negative torque, got %v", out)
	}
	out, _ = g.Step(PIDState{}, -0.01, 0, 0.005, 0.8)
	if out <= 0 {
		t.Fatalf("negative tilt: expected positive torque, got %v", out)
	}
}

func TestPIDStepClamp(t *testing.T) {
	g := Gains{Kp: 11}
	out, _ := g.Step(PIDState{}, 1.0, 0, 0.005, 0.8)
	if out != -0.8 {
		t.Fatalf("expected output clamped at -0.8, got %v", out)
	}
}

func TestPIDStepPure(t *testing.T) {
	g := Gains{Kp: 1, Ki: 1, Kd: 1}
	s0 := PIDState{Integral: 0.5, PrevError: 0.1}
	before := s0
	out1, s1 := g.Step(s0, 0.2, 0, 0.01, 10)
	if s0 != before {
		t.Fatalf("input state mutated: %+v", s0)
	}
	// Stepping again from the same state must reproduce the result.
	out2, s2 := g.Step(s0, 0.2, 0, 0.01, 10)
	if out1 != out2 || s1 != s2 {
		t.Fatalf("step not deterministic: (%v,%+v) vs (%v,%+v)", out1, s1, out2, s2)
	}
}

func TestPIDStepIntegral(t *testing.T) {
	g := Gains{Ki: 1}
	s := PIDState{}
	var out float64
	for i := 0; i < 10; i++ {
		out, s = g.Step(s, -1, 0, 0.1, 10)
	}
	// Constant error of 1 for 1 s with Ki=1 integrates to 1.
	if math.Abs(out-1.0) > 1e-9 {
		t.Fatalf("expected integral term 1.0 after 1s, got %v", out)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(2, 0.8) != 0.8 || Clamp(-2, 0.8) != -0.8 || Clamp(0.3, 0.8) != 0.3 {
		t.Fatal("clamp misbehaves")
	}
}
