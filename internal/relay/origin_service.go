package relay

import (
	"context"
	"fmt"
	"log/slog"
)

// OriginService keeps one configured origin connected. Each Serve call walks
// connecting, connected and closed once; suture restarts it with backoff.
type OriginService struct {
	addr  string
	relay *Relay
	log   *slog.Logger
}

// NewOriginService supervises the origin reachable at addr (a ws:// link URL).
func NewOriginService(addr string, r *Relay) *OriginService {
	return &OriginService{
		addr:  addr,
		relay: r,
		log:   r.log.With("addr", addr),
	}
}

// Serve implements suture.Service.
func (s *OriginService) Serve(ctx context.Context) error {
	s.log.Debug("connecting to origin")
	link, info, err := Dial(ctx, s.addr, s.relay.opts.HandshakeTimeout, s.log)
	if err != nil {
		s.log.Warn("origin unavailable", slog.Any("error", err))
		return err
	}

	origin := s.relay.Register(info, link)
	defer s.relay.Unregister(origin)

	for {
		select {
		case <-ctx.Done():
			link.Close()
			return ctx.Err()

		case <-link.Done():
			err := link.Err()
			s.log.Warn("origin link lost", slog.String("origin", origin.Name), slog.Any("error", err))
			return fmt.Errorf("origin %s: %w", origin.Name, err)

		case <-link.Pushes():
			diff, err := origin.Refresh(ctx, s.relay.opts.HandshakeTimeout)
			if err != nil {
				s.log.Warn("library refresh failed", slog.String("origin", origin.Name), slog.Any("error", err))
				continue
			}
			if diff.Changed() {
				s.relay.publish()
			}
		}
	}
}

func (s *OriginService) String() string { return "origin " + s.addr }
