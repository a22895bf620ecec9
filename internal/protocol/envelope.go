// Package protocol defines the JSON messages exchanged over the origin link and
// the viewer websocket.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Origin link message types.
const (
	TypeGetInfo        = "get_info"
	TypeInfo           = "info"
	TypeLibraryChanged = "library_changed"
	TypeDownload       = "download"
	TypeApproveViewer  = "approve_viewer"
	TypeApproval       = "approval"
)

// Viewer message types, inbound.
const (
	TypeLogin       = "login"
	TypeReportState = "report_state"
	TypePlayback    = "playback"
	TypeSetQueue    = "set_queue"
	TypeDownloadReq = "download_media"
)

// Viewer message types, outbound.
const (
	TypeLoginError   = "login_error"
	TypeLoginAccept  = "login_accept"
	TypeStateUpdated = "state_updated"
	TypeQueueUpdated = "queue_updated"
	TypeFilesUpdated = "files_updated"
	TypeClosed       = "closed"
	TypeListUpdated  = "list_updated"
)

// ErrMalformed is returned when a frame cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Envelope wraps every frame. ID correlates requests with responses on the
// origin link and is zero for pushes and viewer traffic.
type Envelope struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into an envelope frame.
func Encode(msgType string, id uint64, payload any) ([]byte, error) {
	env := Envelope{Type: msgType, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", msgType, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(msgType string, payload any) []byte {
	b, err := Encode(msgType, 0, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
