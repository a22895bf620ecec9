package protocol

import "watchalong/internal/media"

// Info answers get_info: everything the relay needs to register an origin.
type Info struct {
	Name          string       `json:"name"`
	Password      string       `json:"password"`
	ImageURL      string       `json:"imageUrl"`
	Items         []media.Item `json:"items"`
	SubtitleFonts []string     `json:"subtitleFonts"`
}

// DownloadRequest asks an origin to acquire a URL.
type DownloadRequest struct {
	URL string `json:"url"`
}

// ApproveViewerRequest asks an origin whether a viewer may join.
type ApproveViewerRequest struct {
	Username string `json:"username"`
}

// Approval is the origin's answer to approve_viewer.
type Approval struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// PlaybackOp is the opcode of a playback message.
type PlaybackOp string

const (
	OpPlayPause PlaybackOp = "play_pause"
	OpSeek      PlaybackOp = "seek"
)

// Login is the first message a viewer sends.
type Login struct {
	OriginID int64  `json:"originId"`
	Username string `json:"username" validate:"notblank,max=32"`
	Password string `json:"password"`
}

// ReportState carries a viewer's player snapshot.
type ReportState struct {
	OriginID     int64             `json:"originId"`
	ItemID       int64             `json:"itemId"`
	IsPlaying    bool              `json:"isPlaying"`
	SeekPosition float64           `json:"seekPos"`
	BufferState  media.BufferState `json:"bufferState"`
}

// Playback carries play/pause ("play"|"pause") or seek (whole seconds) as text.
type Playback struct {
	OriginID int64      `json:"originId"`
	Op       PlaybackOp `json:"op"`
	Operand  string     `json:"operand"`
}

// SetQueue replaces an origin's queue.
type SetQueue struct {
	OriginID      int64   `json:"originId"`
	Items         []int64 `json:"items"`
	ResetPlayback bool    `json:"resetPlayback"`
}

// DownloadMedia is a viewer's request for the origin to acquire a URL.
type DownloadMedia struct {
	OriginID int64  `json:"originId"`
	URL      string `json:"url"`
}

// LoginError rejects a login.
type LoginError struct {
	Message string `json:"message"`
}

// LoginAccept admits a viewer to an origin.
type LoginAccept struct {
	OriginID int64 `json:"originId"`
}

// SubtitleTrack is a subtitle as presented to viewers.
type SubtitleTrack struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ViewerStatus is one row of the viewer list inside StateUpdated.
type ViewerStatus struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	BufferState media.BufferState `json:"bufferState"`
}

// StateUpdated is the broadcast timeline.
type StateUpdated struct {
	ItemID        int64           `json:"itemId"`
	VideoURL      string          `json:"videoUrl"`
	AudioURL      string          `json:"audioUrl"`
	Title         string          `json:"title"`
	Duration      float64         `json:"duration"`
	IsPlaying     bool            `json:"isPlaying"`
	SeekPosition  float64         `json:"seekPos"`
	IsBuffering   bool            `json:"isBuffering"`
	Subtitles     []SubtitleTrack `json:"subtitles"`
	SubtitleFonts []string        `json:"subtitleFonts"`
	Users         []ViewerStatus  `json:"users"`
}

// QueueUpdated lists the queue as shown to viewers.
type QueueUpdated struct {
	Items []media.Summary `json:"items"`
}

// FilesUpdated lists an origin's stored files.
type FilesUpdated struct {
	Items []media.Summary `json:"items"`
}

// ServerInfo is one origin in the public listing.
type ServerInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"hasPassword"`
	ImageURL    string `json:"imageUrl"`
	UserCount   int    `json:"userCount"`
}

// ListUpdated is pushed on the listing channel.
type ListUpdated struct {
	Servers []ServerInfo `json:"servers"`
}
