// Package relay is the central service viewers connect to. It keeps one origin
// link and coordinator per registered origin and translates viewer traffic
// into coordinator calls.
package relay

import (
	"log/slog"
	"time"

	"watchalong/internal/coordinator"
	"watchalong/internal/platform/metrics"
	"watchalong/internal/protocol"
)

// Options configures a Relay.
type Options struct {
	HandshakeTimeout time.Duration
	ApprovalTimeout  time.Duration
	Clock            coordinator.Clock
	Metrics          *metrics.Metrics
}

// Relay owns the origin registry and the public listing.
type Relay struct {
	log      *slog.Logger
	opts     Options
	registry Registry
	listing  *Listing
}

// New builds a relay around registry, publishing changes to listing.
func New(log *slog.Logger, registry Registry, listing *Listing, opts Options) *Relay {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 30 * time.Second
	}
	return &Relay{
		log:      log.With("component", "relay"),
		opts:     opts,
		registry: registry,
		listing:  listing,
	}
}

// Registry returns the origin registry.
func (r *Relay) Registry() Registry { return r.registry }

// Register admits an origin that completed its handshake.
func (r *Relay) Register(info protocol.Info, link OriginLink) *Origin {
	o := newOrigin(info, link, r.log.With("origin", info.Name), coordinator.Options{
		Clock:    r.opts.Clock,
		Observer: metricsObserver{m: r.opts.Metrics},
	})
	o.coord.ApplyLibrary(info.Items, info.SubtitleFonts)
	id := r.registry.Add(o)
	r.log.Info("origin registered",
		slog.Int64("origin_id", id),
		slog.String("origin", o.Name),
		slog.Int("items", len(info.Items)))
	r.publish()
	return o
}

// Unregister removes an origin, notifies its viewers and republishes the list.
func (r *Relay) Unregister(o *Origin) {
	if _, ok := r.registry.Remove(o.ID); !ok {
		return
	}
	o.teardown()
	r.log.Info("origin removed", slog.Int64("origin_id", o.ID), slog.String("origin", o.Name))
	r.publish()
}

// publish pushes the current origin list and refreshes gauges.
func (r *Relay) publish() {
	if r.listing != nil {
		r.listing.Publish(r.registry.List())
	}
	r.opts.Metrics.SetOrigins(r.registry.Count())
	r.opts.Metrics.SetViewers(r.registry.ViewerCount())
}

type metricsObserver struct {
	m *metrics.Metrics
}

func (o metricsObserver) ModeTransition(_, to coordinator.Mode) { o.m.IncModeTransition(to.String()) }

func (o metricsObserver) Broadcast(kind string) { o.m.IncBroadcast(kind) }
