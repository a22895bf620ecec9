package coordinator

import (
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"watchalong/internal/media"
)

// LibraryDiff summarizes one ApplyLibrary call.
type LibraryDiff struct {
	Inserted       []int64
	Removed        []int64
	Updated        []int64
	CurrentChanged bool
}

// Changed reports whether the item table or the current item moved.
func (d LibraryDiff) Changed() bool {
	return len(d.Inserted) > 0 || len(d.Removed) > 0 || len(d.Updated) > 0 || d.CurrentChanged
}

// ApplyLibrary merges a fresh item list reported by the origin into the item
// table. Items are matched on a shared non-empty video or audio URL; matches keep
// their identifier, new acquired items are queued, vanished items leave the
// queue. Playback resets when the current item changed.
func (c *Coordinator) ApplyLibrary(items []media.Item, fonts []string) LibraryDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	var diff LibraryDiff
	if c.closed {
		return diff
	}

	before := c.currentLocked()
	c.fonts = append([]string{}, fonts...)

	incoming := append([]media.Item{}, items...)
	kept := c.itemOrder[:0:0]
	for _, id := range c.itemOrder {
		old := c.items[id]
		fresh, idx, ok := lo.FindIndexOf(incoming, old.SameSource)
		if !ok {
			delete(c.items, id)
			diff.Removed = append(diff.Removed, id)
			continue
		}
		incoming = append(incoming[:idx], incoming[idx+1:]...)
		if adopt(old, fresh) {
			diff.Updated = append(diff.Updated, id)
		}
		kept = append(kept, id)
	}
	c.itemOrder = kept

	for _, fresh := range incoming {
		it := fresh
		it.ID = c.ids.Next()
		it.Subtitles = append([]media.Subtitle{}, fresh.Subtitles...)
		c.items[it.ID] = &it
		c.itemOrder = append(c.itemOrder, it.ID)
		diff.Inserted = append(diff.Inserted, it.ID)
		if it.Kind == media.KindAcquired {
			c.queue = append(c.queue, it.ID)
		}
	}

	c.queue = lo.Filter(c.queue, func(id int64, _ int) bool {
		_, ok := c.items[id]
		return ok
	})
	diff.CurrentChanged = before != c.currentLocked()

	if diff.Changed() {
		c.log.Info("library updated",
			slog.Int("inserted", len(diff.Inserted)),
			slog.Int("removed", len(diff.Removed)),
			slog.Int("updated", len(diff.Updated)),
			slog.Bool("current_changed", diff.CurrentChanged))
	}

	c.emitFilesLocked()
	c.emitQueueLocked()
	if diff.CurrentChanged {
		c.restartPlaybackLocked()
	}
	return diff
}

// adopt copies the mutable listing fields of fresh into old and reports whether
// anything changed.
func adopt(old *media.Item, fresh media.Item) bool {
	changed := old.Title != fresh.Title ||
		old.Available != fresh.Available ||
		old.Duration != fresh.Duration ||
		!slices.Equal(old.Subtitles, fresh.Subtitles) ||
		!sameFingerprint(old.Fingerprint, fresh.Fingerprint)
	if !changed {
		return false
	}
	old.Title = fresh.Title
	old.Available = fresh.Available
	old.Duration = fresh.Duration
	old.Subtitles = append([]media.Subtitle{}, fresh.Subtitles...)
	old.Fingerprint = fresh.Fingerprint
	return true
}

func sameFingerprint(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
