package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"watchalong/internal/protocol"
)

// OriginLink is what the relay needs from a connected origin.
type OriginLink interface {
	GetInfo(ctx context.Context) (protocol.Info, error)
	ApproveViewer(ctx context.Context, username string) (protocol.Approval, error)
	Download(url string) error
}

// Link is the relay side of one persistent origin connection. Requests carry a
// correlation id and are answered out of band by the read loop; pushes from the
// origin are coalesced onto Pushes.
type Link struct {
	addr string
	ws   *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan protocol.Envelope

	pushes    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to an origin and performs the get_info handshake within
// timeout. Any failure is reported as ErrConnectionFailed.
func Dial(ctx context.Context, addr string, timeout time.Duration, log *slog.Logger) (*Link, protocol.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, protocol.Info{}, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, addr, err)
	}

	l := newLink(addr, ws, log)
	go l.readLoop()
	go l.pingLoop()

	info, err := l.GetInfo(ctx)
	if err != nil {
		l.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrHandshakeTimeout
		}
		return nil, protocol.Info{}, fmt.Errorf("%w: handshake with %s: %w", ErrConnectionFailed, addr, err)
	}
	return l, info, nil
}

func newLink(addr string, ws *websocket.Conn, log *slog.Logger) *Link {
	return &Link{
		addr:    addr,
		ws:      ws,
		log:     log.With("component", "link", "addr", addr),
		pending: make(map[uint64]chan protocol.Envelope),
		pushes:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Pushes signals library_changed notifications. Bursts collapse into one.
func (l *Link) Pushes() <-chan struct{} { return l.pushes }

// Done is closed when the link is gone.
func (l *Link) Done() <-chan struct{} { return l.done }

// Err reports why the link closed.
func (l *Link) Err() error {
	<-l.done
	return l.err
}

// Close tears the connection down; pending calls fail with ErrLinkClosed.
func (l *Link) Close() {
	l.fail(ErrLinkClosed)
}

func (l *Link) fail(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		close(l.done)
		l.writeMu.Lock()
		_ = l.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		l.writeMu.Unlock()
		_ = l.ws.Close()
	})
}

// GetInfo asks the origin for its name, password, image and library.
func (l *Link) GetInfo(ctx context.Context) (protocol.Info, error) {
	var info protocol.Info
	err := l.call(ctx, protocol.TypeGetInfo, nil, &info)
	return info, err
}

// ApproveViewer asks the origin whether username may join.
func (l *Link) ApproveViewer(ctx context.Context, username string) (protocol.Approval, error) {
	var a protocol.Approval
	err := l.call(ctx, protocol.TypeApproveViewer, protocol.ApproveViewerRequest{Username: username}, &a)
	return a, err
}

// Download asks the origin to acquire url. Fire and forget.
func (l *Link) Download(url string) error {
	frame, err := protocol.Encode(protocol.TypeDownload, 0, protocol.DownloadRequest{URL: url})
	if err != nil {
		return err
	}
	return l.write(frame)
}

func (l *Link) call(ctx context.Context, msgType string, payload, out any) error {
	id := l.nextID.Add(1)
	frame, err := protocol.Encode(msgType, id, payload)
	if err != nil {
		return err
	}

	ch := make(chan protocol.Envelope, 1)
	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	if err := l.write(frame); err != nil {
		return err
	}

	select {
	case env := <-ch:
		return env.Unmarshal(out)
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) write(frame []byte) error {
	select {
	case <-l.done:
		return l.err
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		go l.fail(fmt.Errorf("%w: %v", ErrLinkClosed, err))
		return fmt.Errorf("%w: %v", ErrLinkClosed, err)
	}
	return nil
}

func (l *Link) readLoop() {
	_ = l.ws.SetReadDeadline(time.Now().Add(pongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			l.fail(fmt.Errorf("%w: %v", ErrLinkClosed, err))
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			l.log.Debug("dropping malformed frame", slog.Any("error", err))
			continue
		}

		if env.ID != 0 {
			l.mu.Lock()
			ch, ok := l.pending[env.ID]
			l.mu.Unlock()
			if ok {
				select {
				case ch <- env:
				default:
				}
			}
			continue
		}

		switch env.Type {
		case protocol.TypeLibraryChanged:
			select {
			case l.pushes <- struct{}{}:
			default:
			}
		default:
			l.log.Debug("dropping unexpected push", slog.String("type", env.Type))
		}
	}
}

func (l *Link) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			l.writeMu.Unlock()
			if err != nil {
				l.fail(fmt.Errorf("%w: ping: %v", ErrLinkClosed, err))
				return
			}
		}
	}
}
