package yaw

import (
	"math"
	"testing"
	"time"
)

func TestPulseTorqueProfile(t *testing.T) {
	const (
		max      = 0.5
		rotation = 750 * time.Millisecond
	)

	if v := pulseTorque(1, max, 0, rotation); v != 0 {
		t.Fatalf("pulse at t=0: expected 0, got %v", v)
	}
	if v := pulseTorque(1, max, rotation/2, rotation); math.Abs(v-max) > 1e-9 {
		t.Fatalf("pulse at midpoint: expected %v, got %v", max, v)
	}
	if v := pulseTorque(1, max, rotation, rotation); v != 0 {
		t.Fatalf("pulse at end: expected 0, got %v", v)
	}
	if v := pulseTorque(-1, max, rotation/2, rotation); math.Abs(v+max) > 1e-9 {
		t.Fatalf("negative direction: expected %v, got %v", -max, v)
	}

	// Monotone rise over the first half.
	prev := -1.0
	for _, frac := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		v := pulseTorque(1, max, time.Duration(frac*float64(rotation)), rotation)
		if v <= prev {
			t.Fatalf("pulse not rising at %v of window: %v <= %v", frac, v, prev)
		}
		prev = v
	}
}

func TestPulseTorqueBounded(t *testing.T) {
	const max = 0.5
	rotation := time.Second
	for ms := 0; ms <= 1000; ms += 50 {
		v := pulseTorque(1, max, time.Duration(ms)*time.Millisecond, rotation)
		if math.Abs(v) > max {
			t.Fatalf("pulse exceeds bound at %dms: %v", ms, v)
		}
	}
}

func TestPressRampsAndReleaseZeroes(t *testing.T) {
	in := NewInput(0.5, 100*time.Millisecond)

	if in.Torque() != 0 {
		t.Fatal("torque should start at zero")
	}

	in.Press(1)
	time.Sleep(50 * time.Millisecond)
	if v := in.Torque(); v < 0.3 {
		t.Fatalf("expected torque near peak mid-pulse, got %v", v)
	}

	in.Release()
	if v := in.Torque(); v != 0 {
		t.Fatalf("release should zero the torque immediately, got %v", v)
	}
}

func TestPulseEndsAtZero(t *testing.T) {
	in := NewInput(0.5, 40*time.Millisecond)
	in.Press(1)
	time.Sleep(100 * time.Millisecond)
	if v := in.Torque(); v != 0 {
		t.Fatalf("torque should return to zero after the window, got %v", v)
	}
}

func TestPressIgnoredWhileActive(t *testing.T) {
	in := NewInput(0.5, 100*time.Millisecond)
	in.Press(1)
	time.Sleep(50 * time.Millisecond)
	in.Press(-1) // ignored: pulse already active
	time.Sleep(10 * time.Millisecond)
	if v := in.Torque(); v < 0 {
		t.Fatalf("second press should be ignored, got %v", v)
	}
	in.Release()
}
