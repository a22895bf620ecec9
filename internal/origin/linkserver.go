package origin

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"watchalong/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// LinkHandler answers what relays ask of the origin.
type LinkHandler interface {
	Info() protocol.Info
	Approve(username string) protocol.Approval
	Download(url string)
}

// LinkServer accepts relay connections on /link and answers their requests.
// Any number of relays may be connected; library_changed is pushed to all.
type LinkServer struct {
	handler  LinkHandler
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu    sync.Mutex
	links map[*relayLink]struct{}
}

type relayLink struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func (l *relayLink) write(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return l.ws.WriteMessage(websocket.TextMessage, frame)
}

func (l *relayLink) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.ws.Close()
	})
}

// NewLinkServer returns a link server delegating to handler.
func NewLinkServer(handler LinkHandler, log *slog.Logger) *LinkServer {
	return &LinkServer{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log:   log.With("component", "link"),
		links: make(map[*relayLink]struct{}),
	}
}

// Count returns the number of connected relays.
func (s *LinkServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// NotifyLibraryChanged pushes library_changed to every connected relay.
func (s *LinkServer) NotifyLibraryChanged() {
	frame := protocol.MustEncode(protocol.TypeLibraryChanged, nil)
	s.mu.Lock()
	links := make([]*relayLink, 0, len(s.links))
	for l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	for _, l := range links {
		if err := l.write(frame); err != nil {
			s.log.Warn("push to relay failed", slog.Any("error", err))
			l.close()
		}
	}
}

// ServeHTTP upgrades a relay connection and serves it until it closes.
func (s *LinkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("relay upgrade failed", slog.Any("error", err))
		return
	}
	link := &relayLink{ws: ws, done: make(chan struct{})}
	log := s.log.With(slog.String("relay", r.RemoteAddr))

	s.mu.Lock()
	s.links[link] = struct{}{}
	s.mu.Unlock()
	log.Info("relay connected")

	defer func() {
		s.mu.Lock()
		delete(s.links, link)
		s.mu.Unlock()
		link.close()
		log.Info("relay disconnected")
	}()

	go s.ping(link)

	ws.SetReadLimit(1 << 16)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		env, err := protocol.Decode(data)
		if err != nil {
			log.Debug("dropping malformed frame", slog.Any("error", err))
			continue
		}
		if err := s.dispatch(link, env); err != nil {
			log.Warn("answering relay failed", slog.String("type", env.Type), slog.Any("error", err))
			return
		}
	}
}

func (s *LinkServer) dispatch(link *relayLink, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeGetInfo:
		frame, err := protocol.Encode(protocol.TypeInfo, env.ID, s.handler.Info())
		if err != nil {
			return err
		}
		return link.write(frame)

	case protocol.TypeApproveViewer:
		var req protocol.ApproveViewerRequest
		if err := env.Unmarshal(&req); err != nil {
			s.log.Debug("dropping approval request", slog.Any("error", err))
			return nil
		}
		frame, err := protocol.Encode(protocol.TypeApproval, env.ID, s.handler.Approve(req.Username))
		if err != nil {
			return err
		}
		return link.write(frame)

	case protocol.TypeDownload:
		var req protocol.DownloadRequest
		if err := env.Unmarshal(&req); err != nil || req.URL == "" {
			s.log.Debug("dropping download request", slog.Any("error", err))
			return nil
		}
		s.handler.Download(req.URL)
		return nil

	default:
		s.log.Debug("dropping unknown message", slog.String("type", env.Type))
		return nil
	}
}

func (s *LinkServer) ping(link *relayLink) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-link.done:
			return
		case <-ticker.C:
			link.mu.Lock()
			err := link.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			link.mu.Unlock()
			if err != nil {
				link.close()
				return
			}
		}
	}
}
