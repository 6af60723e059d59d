package yaw

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Input supplies the operator's yaw torque demand. The control loop
// reads Torque without blocking; the joystick listener and the ramp run
// on their own goroutines and publish through an atomic cell.
type Input struct {
	maxTorque float64
	rotation  time.Duration
	cooldown  time.Duration

	bits atomic.Uint64 // current torque, float64 bits

	mu       sync.Mutex
	active   bool
	cancel   chan struct{}
	coolUpto time.Time
}

// NewInput creates a yaw input bounded to ±maxTorque, ramped over the
// rotation window on each press.
func NewInput(maxTorque float64, rotation time.Duration) *Input {
	return &Input{
		maxTorque: maxTorque,
		rotation:  rotation,
		cooldown:  500 * time.Millisecond,
	}
}

// Torque returns the current yaw torque demand. Non-blocking; safe to
// call from the control loop every tick.
func (in *Input) Torque() float64 {
	return math.Float64frombits(in.bits.Load())
}

func (in *Input) set(v float64) {
	in.bits.Store(math.Float64bits(v))
}

// pulseTorque is the ramp profile: a half-sine pulse that rises from
// zero to dir*max at the middle of the rotation window and returns to
// zero at its end.
func pulseTorque(dir, max float64, t, rotation time.Duration) float64 {
	if t < 0 || t >= rotation || rotation <= 0 {
		return 0
	}
	return dir * max * math.Sin(math.Pi*float64(t)/float64(rotation))
}

// Press starts a rotation pulse in the given direction (+1 or -1).
// Ignored while a pulse is active or during the post-pulse cooldown.
func (in *Input) Press(dir float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active || time.Now().Before(in.coolUpto) {
		return
	}
	in.active = true
	in.cancel = make(chan struct{})
	go in.ramp(dir, in.cancel)
}

// Release zeroes the torque immediately and cancels any running pulse.
func (in *Input) Release() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active {
		close(in.cancel)
		in.active = false
	}
	in.set(0)
}

func (in *Input) ramp(dir float64, cancel chan struct{}) {
	start := time.Now()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-tick.C:
			select {
			case <-cancel:
				return
			default:
			}
			t := time.Since(start)
			if t >= in.rotation {
				in.set(0)
				in.mu.Lock()
				in.active = false
				in.coolUpto = time.Now().Add(in.cooldown)
				in.mu.Unlock()
				return
			}
			in.set(pulseTorque(dir, in.maxTorque, t, in.rotation))
		}
	}
}

// Linux joystick event, see linux/joystick.h.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

const (
	jsEventButton = 0x01
	jsEventInit   = 0x80

	// PS4 pad button numbers under the kernel joystick driver.
	buttonL1 = 4
	buttonR1 = 5
)

// Listen reads joystick events from device and drives Press/Release
// until ctx is cancelled. R1 spins positive, L1 negative. Blocks; run it
// on its own goroutine.
func (in *Input) Listen(ctx context.Context, device string) error {
	f, err := os.Open(device)
	if err != nil {
		return fmt.Errorf("yaw: open joystick %s: %w", device, err)
	}
	defer f.Close()
	log.Printf("yaw: listening on %s", device)

	go func() {
		<-ctx.Done()
		f.Close()
	}()

	var ev jsEvent
	for {
		if err := binary.Read(f, binary.LittleEndian, &ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("yaw: joystick read: %w", err)
		}
		if ev.Type&^jsEventInit != jsEventButton || ev.Type&jsEventInit != 0 {
			continue
		}
		switch ev.Number {
		case buttonR1:
			if ev.Value != 0 {
				in.Press(1)
			} else {
				in.Release()
			}
		case buttonL1:
			if ev.Value != 0 {
				in.Press(-1)
			} else {
				in.Release()
			}
		}
	}
}
