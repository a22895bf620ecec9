package coordinator

import (
	"log/slog"

	"watchalong/internal/media"
)

// Mode is the reconciliation mode of a timeline.
type Mode int

const (
	// NotFaking broadcasts the authoritative timeline as is.
	NotFaking Mode = iota
	// Faking pins the broadcast play flag to paused while stragglers catch up.
	Faking
	// PostFaking waits for viewers to resume after everyone caught up.
	PostFaking
)

func (m Mode) String() string {
	switch m {
	case NotFaking:
		return "not_faking"
	case Faking:
		return "faking"
	case PostFaking:
		return "post_faking"
	}
	return "unknown"
}

// maxTransitions bounds one reconciliation pass. The longest legal chain is
// NotFaking -> Faking -> PostFaking -> NotFaking.
const maxTransitions = 3

// reconcileLocked runs the mode machine to a fixed point and emits exactly one
// state broadcast. The tracker follows the broadcast play flag only while
// faking or post faking; a NotFaking pass that leaves the machine settled
// syncs it last, so a play command never moves the seek target viewers are
// converging on.
func (c *Coordinator) reconcileLocked() {
	transitions := 0
	for {
		if c.mode != NotFaking {
			c.syncTrackerLocked()
		}
		next := c.evaluateLocked()
		if next == c.mode {
			break
		}
		c.enterLocked(next)
		transitions++
		if transitions == maxTransitions {
			if c.mode != NotFaking {
				c.syncTrackerLocked()
			}
			if again := c.evaluateLocked(); again != c.mode {
				c.log.Warn("reconciliation did not settle",
					slog.String("mode", c.mode.String()),
					slog.String("pending", again.String()))
			}
			break
		}
	}
	if c.mode == NotFaking {
		c.syncTrackerLocked()
	}
	c.emitStateLocked()
}

// evaluateLocked returns the mode the viewers' snapshots call for.
func (c *Coordinator) evaluateLocked() Mode {
	cur := c.currentLocked()
	switch c.mode {
	case NotFaking:
		if !c.allAgreeLocked(cur, c.playing) {
			return Faking
		}
	case Faking:
		if c.allAgreeLocked(cur, false) {
			return PostFaking
		}
	case PostFaking:
		if c.allAgreeLocked(cur, c.playing) {
			return NotFaking
		}
		// A play flag that has not caught up yet is expected here; anything
		// else means a viewer fell behind again.
		for _, v := range c.viewers {
			if v.ItemID != cur || v.SeekPosition != c.lastSeek || v.BufferState != media.BufferReady {
				return Faking
			}
		}
	}
	return c.mode
}

func (c *Coordinator) allAgreeLocked(itemID int64, playing bool) bool {
	for _, v := range c.viewers {
		if !v.agrees(itemID, playing, c.lastSeek) {
			return false
		}
	}
	return true
}

// syncTrackerLocked runs the position tracker exactly while the broadcast
// timeline is playing. Stopping it records the frozen position as the seek point.
func (c *Coordinator) syncTrackerLocked() {
	visible := c.visiblePlayingLocked()
	if c.tracker.Running() && !visible {
		c.tracker.Stop()
		c.lastSeek = c.tracker.Elapsed().Seconds()
	}
	if !c.tracker.Running() && visible {
		c.tracker.Start()
	}
}

func (c *Coordinator) enterLocked(m Mode) {
	if c.mode == m {
		return
	}
	from := c.mode
	c.mode = m
	c.log.Debug("mode transition", slog.String("from", from.String()), slog.String("to", m.String()))
	if c.obs != nil {
		c.obs.ModeTransition(from, m)
	}
}
