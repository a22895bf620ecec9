package coordinator

import (
	"time"

	"github.com/samber/lo"

	"watchalong/internal/media"
	"watchalong/internal/protocol"
)

// Timeline is a read-only snapshot of the authoritative playback state.
type Timeline struct {
	ItemID         int64
	Mode           Mode
	Playing        bool
	VisiblePlaying bool
	LastSeek       float64
	Elapsed        time.Duration
	TrackerRunning bool
	DeadlineArmed  bool
	Deadline       time.Duration
}

// Timeline returns the current authoritative timeline.
func (c *Coordinator) Timeline() Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Timeline{
		ItemID:         c.currentLocked(),
		Mode:           c.mode,
		Playing:        c.playing,
		VisiblePlaying: c.visiblePlayingLocked(),
		LastSeek:       c.lastSeek,
		Elapsed:        c.tracker.Elapsed(),
		TrackerRunning: c.tracker.Running(),
		DeadlineArmed:  c.tracker.Armed(),
		Deadline:       c.tracker.Deadline(),
	}
}

// Queue returns a copy of the queue.
func (c *Coordinator) Queue() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.queue))
	copy(out, c.queue)
	return out
}

// Items returns the item table in insertion order.
func (c *Coordinator) Items() []media.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.itemOrder, func(id int64, _ int) media.Item { return *c.items[id] })
}

// State builds the broadcast timeline without emitting it.
func (c *Coordinator) State() protocol.StateUpdated {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() protocol.StateUpdated {
	st := protocol.StateUpdated{
		ItemID:        c.currentLocked(),
		IsPlaying:     c.visiblePlayingLocked(),
		SeekPosition:  c.lastSeek,
		IsBuffering:   c.mode == Faking,
		Subtitles:     []protocol.SubtitleTrack{},
		SubtitleFonts: append([]string{}, c.fonts...),
		Users:         make([]protocol.ViewerStatus, 0, len(c.viewerOrder)),
	}
	if st.ItemID != media.NoItem {
		it := c.items[st.ItemID]
		st.VideoURL = it.VideoURL
		st.AudioURL = it.AudioURL
		st.Title = it.Title
		st.Duration = it.Duration
		st.Subtitles = lo.Map(it.Subtitles, func(s media.Subtitle, _ int) protocol.SubtitleTrack {
			return protocol.SubtitleTrack{URL: s.URL, Name: s.DisplayName()}
		})
	}
	for _, id := range c.viewerOrder {
		v := c.viewers[id]
		st.Users = append(st.Users, protocol.ViewerStatus{ID: v.ID, Username: v.Name, BufferState: v.BufferState})
	}
	return st
}

// queueLocked lists the queue as viewers see it. An available head is the
// item being played and is left out.
func (c *Coordinator) queueLocked() protocol.QueueUpdated {
	ids := c.queue
	if len(ids) > 0 && c.items[ids[0]].Available {
		ids = ids[1:]
	}
	return protocol.QueueUpdated{
		Items: lo.Map(ids, func(id int64, _ int) media.Summary { return media.Summarize(*c.items[id]) }),
	}
}

// filesLocked lists the stored part of the library.
func (c *Coordinator) filesLocked() protocol.FilesUpdated {
	stored := lo.Filter(c.itemOrder, func(id int64, _ int) bool { return c.items[id].Kind == media.KindStored })
	return protocol.FilesUpdated{
		Items: lo.Map(stored, func(id int64, _ int) media.Summary { return media.Summarize(*c.items[id]) }),
	}
}

func (c *Coordinator) emitStateLocked() {
	c.observeBroadcast("state")
	if c.out != nil {
		c.out.StateChanged(c.stateLocked())
	}
}

func (c *Coordinator) emitQueueLocked() {
	c.observeBroadcast("queue")
	if c.out != nil {
		c.out.QueueChanged(c.queueLocked())
	}
}

func (c *Coordinator) emitFilesLocked() {
	c.observeBroadcast("files")
	if c.out != nil {
		c.out.FilesChanged(c.filesLocked())
	}
}

func (c *Coordinator) observeBroadcast(kind string) {
	if c.obs != nil {
		c.obs.Broadcast(kind)
	}
}
