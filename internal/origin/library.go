package origin

import (
	"net/url"
	"path"
	"slices"
	"sync"

	"github.com/samber/lo"

	"watchalong/internal/media"
)

// Category is a delivery namespace with its own root and allow-list.
type Category string

const (
	CategoryMedia    Category = "media"
	CategoryDownload Category = "download"
	CategorySubtitle Category = "subtitle"
)

// Library is the origin's current item snapshot. It also derives the per-category
// allow-lists that gate HTTP delivery: a file is served only while an item in the
// snapshot points at it.
type Library struct {
	mu      sync.RWMutex
	items   []media.Item
	fonts   []string
	allowed map[Category]map[string]struct{}
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	l := &Library{}
	l.rebuildLocked()
	return l
}

// Items returns a copy of the snapshot.
func (l *Library) Items() []media.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Fonts returns the subtitle font URLs.
func (l *Library) Fonts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.fonts)
}

// Allowed reports whether name may be served from cat.
func (l *Library) Allowed(cat Category, name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.allowed[cat][name]
	return ok
}

// Add appends an item.
func (l *Library) Add(item media.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, item)
	l.rebuildLocked()
}

// Remove drops the item pointing at the same source as item.
func (l *Library) Remove(item media.Item) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.items, item.SameSource)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	l.rebuildLocked()
	return true
}

// MergeResult describes what a rescan changed.
type MergeResult struct {
	Changed bool
	// Dropped lists acquired items whose file disappeared after it had been published.
	Dropped []string
}

// Merge replaces the stored part of the snapshot with a fresh scan and settles
// the acquired items against the download directory:
//   - a pending download whose file now exists becomes available
//   - a pending download without a file stays pending
//   - a published download whose file vanished is dropped
//
// downloaded reports whether a file of that name is in the download directory.
func (l *Library) Merge(stored []media.Item, fonts []string, downloaded func(name string) bool) MergeResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res MergeResult
	next := make([]media.Item, 0, len(l.items)+len(stored))
	for _, it := range l.items {
		if it.Kind != media.KindAcquired {
			continue
		}
		switch {
		case downloaded(fileName(sourceURL(it))):
			it.Available = true
			next = append(next, it)
		case !it.Available:
			next = append(next, it)
		default:
			res.Dropped = append(res.Dropped, it.Title)
		}
	}
	next = append(next, stored...)

	if len(next) != len(l.items) || !slices.Equal(fonts, l.fonts) {
		res.Changed = true
	}
	for _, it := range next {
		match := lo.ContainsBy(l.items, func(old media.Item) bool {
			return it.SameListing(old) && slices.Equal(it.Subtitles, old.Subtitles)
		})
		if !match {
			res.Changed = true
			break
		}
	}

	l.items = next
	l.fonts = slices.Clone(fonts)
	l.rebuildLocked()
	return res
}

func (l *Library) rebuildLocked() {
	allowed := map[Category]map[string]struct{}{
		CategoryMedia:    {},
		CategoryDownload: {},
		CategorySubtitle: {},
	}
	for _, it := range l.items {
		for _, sub := range it.Subtitles {
			if name := fileName(sub.URL); name != "" {
				allowed[CategorySubtitle][name] = struct{}{}
			}
		}
		if !it.Available {
			continue
		}
		cat := CategoryMedia
		if it.Kind == media.KindAcquired {
			cat = CategoryDownload
		}
		for _, u := range []string{it.VideoURL, it.AudioURL} {
			if name := fileName(u); name != "" {
				allowed[cat][name] = struct{}{}
			}
		}
	}
	for _, f := range l.fonts {
		if name := fileName(f); name != "" {
			allowed[CategorySubtitle][name] = struct{}{}
		}
	}
	l.allowed = allowed
}

func sourceURL(it media.Item) string {
	if it.VideoURL != "" {
		return it.VideoURL
	}
	return it.AudioURL
}

// fileName is the decoded last path segment of a published URL.
func fileName(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return ""
	}
	return path.Base(u.Path)
}

// publicURL builds the URL a file is published under.
func publicURL(base string, cat Category, name string) string {
	return base + "/" + string(cat) + "/" + url.PathEscape(name)
}
