// Package coordinator owns one origin's authoritative queue and timeline and
// reconciles it against the self-reported state of every viewer.
package coordinator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"watchalong/internal/media"
	"watchalong/internal/protocol"
)

var (
	// ErrNameInUse is returned by AddViewer when the display name is taken.
	ErrNameInUse = errors.New("username taken")

	// ErrViewerExists is returned by AddViewer when the connection is already a viewer.
	ErrViewerExists = errors.New("viewer already added")

	// ErrClosed is returned by AddViewer after Close.
	ErrClosed = errors.New("coordinator closed")
)

// Sink receives everything the coordinator wants viewers to see. Calls are made
// while the coordinator lock is held, so implementations must not block or call
// back into the coordinator.
type Sink interface {
	StateChanged(protocol.StateUpdated)
	QueueChanged(protocol.QueueUpdated)
	FilesChanged(protocol.FilesUpdated)
}

// Observer is notified about internal transitions; used for metrics.
type Observer interface {
	ModeTransition(from, to Mode)
	Broadcast(kind string)
}

// Viewer is a single viewer's last reported snapshot.
type Viewer struct {
	ID           string
	Name         string
	ItemID       int64
	IsPlaying    bool
	SeekPosition float64
	BufferState  media.BufferState
}

func (v *Viewer) agrees(itemID int64, playing bool, seek float64) bool {
	return v.ItemID == itemID &&
		v.IsPlaying == playing &&
		v.SeekPosition == seek &&
		v.BufferState == media.BufferReady
}

// Coordinator is the single writer of one origin's queue and timeline.
// All methods are safe for concurrent use; each one runs as a single critical
// section so partial states are never broadcast.
type Coordinator struct {
	mu  sync.Mutex
	log *slog.Logger
	out Sink
	obs Observer
	ids *media.IDSource

	items     map[int64]*media.Item
	itemOrder []int64
	fonts     []string
	queue     []int64

	viewers     map[string]*Viewer
	viewerOrder []string

	playing  bool
	lastSeek float64
	mode     Mode
	tracker  *positionTracker
	closed   bool
}

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	Clock    Clock
	Observer Observer
	IDs      *media.IDSource
}

// New returns a Coordinator that publishes to out.
func New(out Sink, log *slog.Logger, opts Options) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.IDs == nil {
		opts.IDs = &media.IDSource{}
	}
	c := &Coordinator{
		log:     log.With("component", "coordinator"),
		out:     out,
		obs:     opts.Observer,
		ids:     opts.IDs,
		items:   make(map[int64]*media.Item),
		viewers: make(map[string]*Viewer),
		mode:    NotFaking,
	}
	c.tracker = newPositionTracker(opts.Clock, c.onDeadline)
	return c
}

// currentLocked is the head of the queue when it is available, NoItem otherwise.
func (c *Coordinator) currentLocked() int64 {
	if len(c.queue) == 0 {
		return media.NoItem
	}
	it, ok := c.items[c.queue[0]]
	if !ok || !it.Available {
		return media.NoItem
	}
	return it.ID
}

// visiblePlayingLocked is the play flag viewers are told; pinned false while faking.
func (c *Coordinator) visiblePlayingLocked() bool {
	if c.mode == Faking {
		return false
	}
	return c.playing
}

// SetQueue replaces the queue. Unknown identifiers are dropped. Playback resets
// when requested or when the current item changes.
func (c *Coordinator) SetQueue(order []int64, resetPlayback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	before := c.currentLocked()
	c.queue = lo.Filter(order, func(id int64, _ int) bool {
		_, ok := c.items[id]
		return ok
	})

	if resetPlayback || before != c.currentLocked() {
		c.restartPlaybackLocked()
	}
	c.emitQueueLocked()
}

// ReportViewerState records a viewer's player snapshot. Unknown viewers and
// unchanged snapshots are ignored.
func (c *Coordinator) ReportViewerState(viewerID string, itemID int64, playing bool, seek float64, buf media.BufferState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	v, ok := c.viewers[viewerID]
	if !ok {
		return
	}
	if v.ItemID == itemID && v.IsPlaying == playing && v.SeekPosition == seek && v.BufferState == buf {
		return
	}
	v.ItemID = itemID
	v.IsPlaying = playing
	v.SeekPosition = seek
	v.BufferState = buf
	c.reconcileLocked()
}

// SetPlayPause sets the authoritative play flag. There is nothing to play
// without a current item, so the flag is forced false in that case.
func (c *Coordinator) SetPlayPause(playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.playing = playing
	if c.currentLocked() == media.NoItem {
		c.playing = false
	}
	c.enterLocked(NotFaking)
	c.reconcileLocked()
}

// Seek moves the authoritative position to whole seconds.
func (c *Coordinator) Seek(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if seconds < 0 {
		seconds = 0
	}

	c.tracker.SetElapsed(time.Duration(seconds) * time.Second)
	c.lastSeek = c.tracker.Elapsed().Seconds()
	if c.currentLocked() == media.NoItem {
		c.playing = false
	}
	c.enterLocked(NotFaking)
	c.reconcileLocked()
}

// OnEndOfItemDeadline pops the current item and resets playback.
func (c *Coordinator) OnEndOfItemDeadline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.advanceLocked()
}

func (c *Coordinator) onDeadline(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.tracker.Current(gen) {
		return
	}
	c.advanceLocked()
}

func (c *Coordinator) advanceLocked() {
	if len(c.queue) > 0 {
		c.queue = c.queue[1:]
	}
	c.log.Debug("item finished", slog.Int("queue_len", len(c.queue)))
	c.restartPlaybackLocked()
	c.emitQueueLocked()
}

// AddViewer admits a viewer in the NotStarted state and sends everyone the
// current timeline, queue and library.
func (c *Coordinator) AddViewer(id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.viewers[id]; ok {
		return ErrViewerExists
	}
	if c.nameTakenLocked(name) {
		return ErrNameInUse
	}
	c.viewers[id] = &Viewer{
		ID:          id,
		Name:        name,
		ItemID:      media.NoItem,
		BufferState: media.BufferNotStarted,
	}
	c.viewerOrder = append(c.viewerOrder, id)
	c.log.Info("viewer added", slog.String("viewer", name), slog.Int("viewers", len(c.viewers)))

	c.enterLocked(NotFaking)
	c.reconcileLocked()
	c.emitQueueLocked()
	c.emitFilesLocked()
	return nil
}

// RemoveViewer drops a viewer. It reports false when the id was not a viewer,
// which makes repeated disconnects harmless.
func (c *Coordinator) RemoveViewer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.viewers[id]
	if !ok {
		return false
	}
	delete(c.viewers, id)
	c.viewerOrder = lo.Without(c.viewerOrder, id)
	c.log.Info("viewer removed", slog.String("viewer", v.Name), slog.Int("viewers", len(c.viewers)))

	if c.closed {
		return true
	}
	c.enterLocked(NotFaking)
	c.reconcileLocked()
	return true
}

// NameTaken reports whether a live viewer already uses name.
func (c *Coordinator) NameTaken(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nameTakenLocked(name)
}

func (c *Coordinator) nameTakenLocked(name string) bool {
	for _, v := range c.viewers {
		if v.Name == name {
			return true
		}
	}
	return false
}

// ViewerCount returns the number of admitted viewers.
func (c *Coordinator) ViewerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.viewers)
}

// Close stops the deadline timer and makes every later mutation a no-op.
// It returns the ids of the viewers that were still attached.
func (c *Coordinator) Close() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.tracker.Close()
	ids := make([]string, len(c.viewerOrder))
	copy(ids, c.viewerOrder)
	return ids
}

// restartPlaybackLocked rewinds to zero, re-arms the deadline for the current
// item and re-runs reconciliation from NotFaking.
func (c *Coordinator) restartPlaybackLocked() {
	c.lastSeek = 0
	c.tracker.Reset()
	if cur := c.currentLocked(); cur == media.NoItem {
		c.tracker.SetDeadline(-1)
		c.playing = false
	} else {
		c.tracker.SetDeadline(seconds(c.items[cur].Duration))
	}
	c.enterLocked(NotFaking)
	c.reconcileLocked()
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
