package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"watchalong/internal/protocol"
)

// Listing pushes the public origin list to every connected listing client.
// New clients get the current list immediately. Its loop runs as a supervised
// service; Publish never blocks.
type Listing struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	register   chan *Conn
	unregister chan *Conn
	changed    chan struct{}

	mu      sync.Mutex
	current []byte

	clients map[*Conn]struct{}
}

// NewListing returns a listing hub that starts with an empty list.
func NewListing(log *slog.Logger, upgrader websocket.Upgrader) *Listing {
	return &Listing{
		log:        log.With("component", "listing"),
		upgrader:   upgrader,
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		changed:    make(chan struct{}, 1),
		current:    protocol.MustEncode(protocol.TypeListUpdated, protocol.ListUpdated{Servers: []protocol.ServerInfo{}}),
		clients:    make(map[*Conn]struct{}),
	}
}

// Publish replaces the current list and schedules a push to every client.
func (l *Listing) Publish(servers []protocol.ServerInfo) {
	frame := protocol.MustEncode(protocol.TypeListUpdated, protocol.ListUpdated{Servers: servers})
	l.mu.Lock()
	l.current = frame
	l.mu.Unlock()
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *Listing) latest() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Serve runs the hub loop until ctx ends; it implements suture.Service.
func (l *Listing) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for c := range l.clients {
				c.closeSend()
				delete(l.clients, c)
			}
			l.log.Info("listing hub stopped")
			return ctx.Err()

		case c := <-l.register:
			l.clients[c] = struct{}{}
			c.Send(l.latest())
			l.log.Debug("listing client connected", slog.Int("clients", len(l.clients)))

		case c := <-l.unregister:
			if _, ok := l.clients[c]; ok {
				delete(l.clients, c)
				c.closeSend()
			}
			l.log.Debug("listing client disconnected", slog.Int("clients", len(l.clients)))

		case <-l.changed:
			frame := l.latest()
			for c := range l.clients {
				if !c.Send(frame) {
					delete(l.clients, c)
				}
			}
		}
	}
}

func (l *Listing) String() string { return "listing" }

// ServeHTTP upgrades a listing client.
func (l *Listing) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Debug("listing upgrade failed", slog.Any("error", err))
		return
	}
	c := newConn(ws, l.log)

	select {
	case l.register <- c:
	case <-r.Context().Done():
		_ = ws.Close()
		return
	}

	go c.writePump()
	c.readPump(func([]byte) {})

	select {
	case l.unregister <- c:
	case <-r.Context().Done():
		c.closeSend()
	}
}
