package coordinator

import (
	"testing"
	"time"
)

func TestPositionTracker(t *testing.T) {
	t.Run("counts_only_while_running", func(t *testing.T) {
		clock := newFakeClock()
		p := newPositionTracker(clock, func(uint64) {})

		clock.Advance(3 * time.Second)
		if p.Elapsed() != 0 {
			t.Fatalf("expected 0 before start, got %s", p.Elapsed())
		}
		p.Start()
		clock.Advance(2 * time.Second)
		p.Stop()
		clock.Advance(5 * time.Second)
		if p.Elapsed() != 2*time.Second {
			t.Fatalf("expected 2s, got %s", p.Elapsed())
		}
	})

	t.Run("set_elapsed_keeps_running", func(t *testing.T) {
		clock := newFakeClock()
		p := newPositionTracker(clock, func(uint64) {})
		p.Start()
		clock.Advance(time.Second)
		p.SetElapsed(30 * time.Second)
		clock.Advance(time.Second)
		if !p.Running() || p.Elapsed() != 31*time.Second {
			t.Fatalf("expected running at 31s, got running=%v %s", p.Running(), p.Elapsed())
		}
	})

	t.Run("deadline_fires_once_when_reached", func(t *testing.T) {
		clock := newFakeClock()
		var fired []uint64
		var p *positionTracker
		p = newPositionTracker(clock, func(gen uint64) {
			if p.Current(gen) {
				fired = append(fired, gen)
			}
		})
		p.SetDeadline(10 * time.Second)
		clock.Advance(20 * time.Second)
		if len(fired) != 0 {
			t.Fatal("deadline must not fire while stopped")
		}
		p.Start()
		clock.Advance(9 * time.Second)
		if len(fired) != 0 {
			t.Fatal("deadline fired early")
		}
		clock.Advance(time.Second)
		if len(fired) != 1 {
			t.Fatalf("expected one fire, got %d", len(fired))
		}
	})

	t.Run("stale_generation_is_not_current", func(t *testing.T) {
		clock := newFakeClock()
		p := newPositionTracker(clock, func(uint64) {})
		p.SetDeadline(time.Minute)
		p.Start()
		first := p.gen
		p.SetElapsed(0)
		if p.Current(first) {
			t.Fatal("re-armed timer must invalidate the previous generation")
		}
		if !p.Current(p.gen) {
			t.Fatal("latest generation must be current")
		}
		p.Close()
		if p.Current(p.gen) || clock.pending() != 0 {
			t.Fatal("closed tracker must have no live timer")
		}
	})
}
