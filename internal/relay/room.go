package relay

import (
	"sync"

	"github.com/samber/lo"

	"watchalong/internal/protocol"
)

// Room fans one origin's broadcasts out to its admitted viewers. It is the
// coordinator's Sink, so every method must return without blocking.
type Room struct {
	mu     sync.RWMutex
	conns  []*Conn
	closed bool
}

// add attaches c. It reports false once the room has been closed.
func (r *Room) add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if !lo.Contains(r.conns, c) {
		r.conns = append(r.conns, c)
	}
	return true
}

func (r *Room) remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = lo.Without(r.conns, c)
}

// Len returns the number of attached connections.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Room) broadcast(frame []byte) {
	r.mu.RLock()
	conns := append([]*Conn(nil), r.conns...)
	r.mu.RUnlock()
	for _, c := range conns {
		c.Send(frame)
	}
}

func (r *Room) StateChanged(st protocol.StateUpdated) {
	r.broadcast(protocol.MustEncode(protocol.TypeStateUpdated, st))
}

func (r *Room) QueueChanged(q protocol.QueueUpdated) {
	r.broadcast(protocol.MustEncode(protocol.TypeQueueUpdated, q))
}

func (r *Room) FilesChanged(f protocol.FilesUpdated) {
	r.broadcast(protocol.MustEncode(protocol.TypeFilesUpdated, f))
}

// close sends every viewer the terminal notification and detaches it from
// originID. The sockets stay open so viewers can return to the listing.
func (r *Room) close(originID int64) {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.closed = true
	r.mu.Unlock()

	frame := protocol.MustEncode(protocol.TypeClosed, struct{}{})
	for _, c := range conns {
		if c.detach(originID) {
			c.Send(frame)
		}
	}
}
