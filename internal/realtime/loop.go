package realtime

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// precision is the sleep granularity near a deadline: the loop sleeps
// coarsely until roughly this close to the target, then polls the clock.
const precision = 100 * time.Microsecond

// ErrStop is returned by a tick function to request a graceful stop.
var ErrStop = errors.New("realtime: stop requested")

// Loop invokes a tick function on a fixed deadline grid. Deadlines form
// the arithmetic sequence t0 + k*period regardless of how long each tick
// takes, so timing error never accumulates; an overrunning tick only
// consumes its own budget and shows up in the statistics.
//
// Stop requests may arrive from any goroutine (the signal watcher in
// particular) and go through plain atomics: no locks, no allocation, no
// logging. Everything else is owned by the goroutine that calls Run.
type Loop struct {
	period time.Duration
	fade   time.Duration
	epoch  time.Time

	killNow    atomic.Bool
	softKillAt atomic.Int64 // ns since epoch of the fade request, 0 = none

	// Timing statistics, owned by Run.
	ticks  int
	sumErr float64
	sumSq  float64
	slept  time.Duration
	began  time.Time
	ended  time.Time
}

// New creates a loop with the given period. A nonzero fade makes stop
// requests drain through a fade-out window instead of stopping at the
// next deadline check.
func New(period, fade time.Duration) *Loop {
	return &Loop{
		period: period,
		fade:   fade,
		epoch:  time.Now(),
	}
}

// Period returns the configured tick period.
func (l *Loop) Period() time.Duration { return l.period }

// RequestStop asks the loop to stop. With no fade configured the loop
// stops at the next deadline check; with a fade it enters the fade-out
// window, and a second request during that window forces an immediate
// stop. Idempotent and safe to call from signal-handling context.
func (l *Loop) RequestStop() {
	if l.fade <= 0 {
		l.killNow.Store(true)
		return
	}
	at := time.Since(l.epoch).Nanoseconds()
	if at == 0 {
		at = 1
	}
	if !l.softKillAt.CompareAndSwap(0, at) {
		// Stopping twice makes it immediate.
		l.killNow.Store(true)
	}
}

// Fade returns the control-authority multiplier: 1.0 while running
// normally, decreasing linearly to 0.0 over the fade window once a stop
// has been requested. Callers use it to ramp actuation down instead of
// cutting it abruptly.
func (l *Loop) Fade() float64 {
	at := l.softKillAt.Load()
	if at == 0 {
		return 1
	}
	elapsed := time.Since(l.epoch) - time.Duration(at)
	if elapsed >= l.fade {
		return 0
	}
	return 1 - float64(elapsed)/float64(l.fade)
}

// stopping reports whether the loop should terminate now, promoting an
// elapsed fade to a hard stop.
func (l *Loop) stopping() bool {
	if l.killNow.Load() {
		return true
	}
	at := l.softKillAt.Load()
	if at == 0 {
		return false
	}
	if time.Since(l.epoch)-time.Duration(at) >= l.fade {
		l.killNow.Store(true)
		return true
	}
	return false
}

// Run blocks, invoking tick once per period until a stop is requested or
// tick returns an error. A tick returning ErrStop terminates the loop
// gracefully and Run returns nil; any other error aborts the run and
// propagates to the caller. The running tick always completes; stop
// requests are only acted on between ticks.
func (l *Loop) Run(tick func() error) error {
	l.began = time.Now()
	deadline := l.began.Add(l.period)

	// Phase reference for jitter accounting; zero until the first wake,
	// which establishes it and is excluded from the statistics.
	var target time.Time

	for !l.stopping() {
		if err := tick(); err != nil {
			if errors.Is(err, ErrStop) {
				l.killNow.Store(true)
				break
			}
			l.ended = time.Now()
			return err
		}

		l.waitUntil(deadline)
		deadline = deadline.Add(l.period)

		now := time.Now()
		if target.IsZero() {
			target = now.Add(l.period)
			continue
		}
		e := now.Sub(target).Seconds()
		l.sumErr += e
		l.sumSq += e * e
		l.ticks++
		target = target.Add(l.period)
	}

	l.ended = time.Now()
	return nil
}

// waitUntil sleeps coarsely until close to the deadline, then polls the
// clock. Stop requests during the polling phase are observed within the
// precision bound.
func (l *Loop) waitUntil(deadline time.Time) {
	for !l.stopping() {
		rem := time.Until(deadline)
		if rem <= 2*precision {
			break
		}
		before := time.Now()
		d := rem - precision
		if d < precision {
			d = precision
		}
		time.Sleep(d)
		l.slept += time.Since(before)
	}
	for time.Now().Before(deadline) {
		if l.stopping() {
			return
		}
	}
}

// Stats summarizes the timing behavior of a completed run.
type Stats struct {
	Cycles        int
	Period        time.Duration
	MeanErr       time.Duration
	StdDevErr     time.Duration
	SleepFraction float64
}

// Stats reports jitter statistics accumulated so far. The first tick is
// excluded: it establishes the phase reference.
func (l *Loop) Stats() Stats {
	s := Stats{Cycles: l.ticks, Period: l.period}
	n := float64(l.ticks)
	if l.ticks > 0 {
		s.MeanErr = time.Duration(l.sumErr / n * float64(time.Second))
	}
	if l.ticks > 1 {
		variance := (l.sumSq - l.sumErr*l.sumErr/n) / (n - 1)
		if variance > 0 {
			s.StdDevErr = time.Duration(math.Sqrt(variance) * float64(time.Second))
		}
	}
	if l.began.IsZero() {
		return s
	}
	end := l.ended
	if end.IsZero() {
		end = time.Now()
	}
	if total := end.Sub(l.began); total > 0 {
		s.SleepFraction = float64(l.slept) / float64(total)
	}
	return s
}

func (s Stats) String() string {
	hz := 0.0
	if s.Period > 0 {
		hz = 1 / s.Period.Seconds()
	}
	return fmt.Sprintf("%d cycles at %.1f Hz: avg error %.3f ms, stddev %.3f ms, %.1f%% of time sleeping",
		s.Cycles, hz,
		float64(s.MeanErr)/float64(time.Millisecond),
		float64(s.StdDevErr)/float64(time.Millisecond),
		100*s.SleepFraction)
}
