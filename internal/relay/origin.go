package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"watchalong/internal/coordinator"
	"watchalong/internal/protocol"
)

// Origin is one registered origin: its handshake identity, the link used to
// reach it, and the coordinator that owns its queue and timeline.
type Origin struct {
	ID       int64
	Name     string
	Password string
	ImageURL string

	link  OriginLink
	coord *coordinator.Coordinator
	room  *Room
	log   *slog.Logger
}

func newOrigin(info protocol.Info, link OriginLink, log *slog.Logger, opts coordinator.Options) *Origin {
	room := &Room{}
	o := &Origin{
		Name:     info.Name,
		Password: info.Password,
		ImageURL: info.ImageURL,
		link:     link,
		room:     room,
		log:      log,
	}
	o.coord = coordinator.New(room, log, opts)
	return o
}

// Coordinator exposes the origin's coordinator.
func (o *Origin) Coordinator() *coordinator.Coordinator { return o.coord }

// HasPassword reports whether joining requires a password.
func (o *Origin) HasPassword() bool { return o.Password != "" }

// CheckPassword compares a login password with the origin's.
func (o *Origin) CheckPassword(password string) bool {
	return !o.HasPassword() || o.Password == password
}

// ServerInfo is the public listing row of the origin.
func (o *Origin) ServerInfo() protocol.ServerInfo {
	return protocol.ServerInfo{
		ID:          o.ID,
		Name:        o.Name,
		HasPassword: o.HasPassword(),
		ImageURL:    o.ImageURL,
		UserCount:   o.coord.ViewerCount(),
	}
}

// Refresh re-runs the handshake and merges the returned library.
func (o *Origin) Refresh(ctx context.Context, timeout time.Duration) (coordinator.LibraryDiff, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := o.link.GetInfo(ctx)
	if err != nil {
		return coordinator.LibraryDiff{}, fmt.Errorf("refresh %s: %w", o.Name, err)
	}
	diff := o.coord.ApplyLibrary(info.Items, info.SubtitleFonts)
	return diff, nil
}

// teardown detaches every viewer with a closed notification and stops the coordinator.
func (o *Origin) teardown() {
	o.coord.Close()
	o.room.close(o.ID)
}
