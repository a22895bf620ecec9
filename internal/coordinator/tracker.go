package coordinator

import "time"

// Timer is the subset of *time.Timer the tracker needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so the tracker can be driven in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the process wall clock.
var RealClock Clock = realClock{}

// positionTracker is a stopwatch with a settable elapsed time and an optional
// deadline that fires once the elapsed time reaches it while running.
// It is not safe for concurrent use; the coordinator lock guards it.
type positionTracker struct {
	clock     Clock
	elapsed   time.Duration
	startedAt time.Time
	running   bool

	deadline time.Duration // < 0 disables
	timer    Timer
	gen      uint64
	onFire   func(gen uint64)
}

func newPositionTracker(clock Clock, onFire func(gen uint64)) *positionTracker {
	return &positionTracker{clock: clock, deadline: -1, onFire: onFire}
}

// Elapsed returns the accumulated running time.
func (p *positionTracker) Elapsed() time.Duration {
	if p.running {
		return p.elapsed + p.clock.Now().Sub(p.startedAt)
	}
	return p.elapsed
}

// SetElapsed moves the stopwatch without changing whether it runs.
func (p *positionTracker) SetElapsed(d time.Duration) {
	p.elapsed = d
	if p.running {
		p.startedAt = p.clock.Now()
	}
	p.rearm()
}

func (p *positionTracker) Running() bool { return p.running }

func (p *positionTracker) Start() {
	if p.running {
		return
	}
	p.running = true
	p.startedAt = p.clock.Now()
	p.rearm()
}

func (p *positionTracker) Stop() {
	if !p.running {
		return
	}
	p.elapsed += p.clock.Now().Sub(p.startedAt)
	p.running = false
	p.rearm()
}

// Reset stops the stopwatch at zero.
func (p *positionTracker) Reset() {
	p.running = false
	p.elapsed = 0
	p.rearm()
}

// SetDeadline arms the end-of-item deadline; a negative value disables it.
func (p *positionTracker) SetDeadline(d time.Duration) {
	p.deadline = d
	p.rearm()
}

// Armed reports whether a deadline is configured (it only counts down while running).
func (p *positionTracker) Armed() bool { return p.deadline >= 0 }

func (p *positionTracker) Deadline() time.Duration { return p.deadline }

// Current reports whether gen identifies the most recently armed timer. A timer
// that fired while being replaced carries a stale generation.
func (p *positionTracker) Current(gen uint64) bool {
	return p.timer != nil && p.gen == gen
}

// Close cancels any outstanding timer.
func (p *positionTracker) Close() {
	p.deadline = -1
	p.stopTimer()
}

func (p *positionTracker) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *positionTracker) rearm() {
	p.stopTimer()
	if p.deadline < 0 || !p.running {
		return
	}
	remaining := p.deadline - p.Elapsed()
	if remaining < 0 {
		remaining = 0
	}
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(remaining, func() { p.onFire(gen) })
}
