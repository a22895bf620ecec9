package media

import "sync/atomic"

// NoItem is the identifier reported when there is no current item.
const NoItem int64 = -1

// Kind records where a MediaItem came from.
type Kind string

const (
	// KindStored items are files found in the origin's media directory.
	KindStored Kind = "stored"
	// KindAcquired items were fetched on demand by the acquisition pipeline.
	KindAcquired Kind = "acquired"
)

// BufferState is a viewer's self-reported player readiness.
type BufferState string

const (
	BufferReady       BufferState = "ready"
	BufferHasMetadata BufferState = "has_metadata"
	BufferHasNothing  BufferState = "has_nothing"
	BufferNotStarted  BufferState = "not_started"
)

// Valid reports whether s is one of the known buffer states.
func (s BufferState) Valid() bool {
	switch s {
	case BufferReady, BufferHasMetadata, BufferHasNothing, BufferNotStarted:
		return true
	}
	return false
}

// Subtitle describes one extracted subtitle track of an item.
type Subtitle struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Language string `json:"language"`
	CodecID  int    `json:"codecId"`
}

// DisplayName is the label shown to viewers, e.g. "[eng] Full".
func (s Subtitle) DisplayName() string {
	return "[" + s.Language + "] " + s.Name
}

// Item is a playable unit shared by origin and relay. ID is assigned by whichever
// side owns the item table; the other side ignores it.
type Item struct {
	ID          int64      `json:"id"`
	VideoURL    string     `json:"videoUrl,omitempty"`
	AudioURL    string     `json:"audioUrl,omitempty"`
	Title       string     `json:"title"`
	Duration    float64    `json:"duration"`
	Fingerprint *string    `json:"fingerprint,omitempty"`
	Subtitles   []Subtitle `json:"subtitles,omitempty"`
	Available   bool       `json:"available"`
	Kind        Kind       `json:"kind"`
}

// HasVideo reports whether the item carries a video stream URL.
func (it Item) HasVideo() bool {
	return it.VideoURL != ""
}

// SameSource reports whether two items point at the same non-empty video or audio URL.
func (it Item) SameSource(other Item) bool {
	if it.VideoURL != "" && it.VideoURL == other.VideoURL {
		return true
	}
	return it.AudioURL != "" && it.AudioURL == other.AudioURL
}

// SameListing reports whether two items would look identical in a library listing.
func (it Item) SameListing(other Item) bool {
	return it.VideoURL == other.VideoURL &&
		it.AudioURL == other.AudioURL &&
		it.Title == other.Title &&
		it.Duration == other.Duration &&
		it.Available == other.Available
}

// Summary is the compact item shape sent to viewers in queue and file listings.
type Summary struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Duration  int    `json:"duration"`
	HasVideo  bool   `json:"hasVideo"`
	IsStored  bool   `json:"isStored"`
	Available bool   `json:"isAvailable"`
}

// Summarize builds the listing shape of it. Duration is floored to whole seconds.
func Summarize(it Item) Summary {
	return Summary{
		ID:        it.ID,
		Title:     it.Title,
		Duration:  int(it.Duration),
		HasVideo:  it.HasVideo(),
		IsStored:  it.Kind == KindStored,
		Available: it.Available,
	}
}

// IDSource hands out monotonically increasing identifiers.
type IDSource struct {
	last atomic.Int64
}

// Next returns a fresh identifier, starting at 1.
func (s *IDSource) Next() int64 {
	return s.last.Add(1)
}
