package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"watchalong/internal/media"
	"watchalong/internal/platform/logger"
	"watchalong/internal/protocol"
)

type fakeLink struct {
	mu         sync.Mutex
	info       protocol.Info
	approval   protocol.Approval
	approveErr error
	approvals  []string
	downloads  []string

	// onApprove runs while ApproveViewer is pending.
	onApprove func()
}

func newFakeLink(info protocol.Info) *fakeLink {
	return &fakeLink{info: info, approval: protocol.Approval{Accept: true}}
}

func (f *fakeLink) GetInfo(context.Context) (protocol.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, nil
}

func (f *fakeLink) ApproveViewer(_ context.Context, username string) (protocol.Approval, error) {
	f.mu.Lock()
	f.approvals = append(f.approvals, username)
	approval, err, hook := f.approval, f.approveErr, f.onApprove
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return approval, err
}

func (f *fakeLink) Download(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	return nil
}

func (f *fakeLink) approved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.approvals...)
}

func (f *fakeLink) downloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

type testRelay struct {
	relay   *Relay
	listing *Listing
	server  *httptest.Server
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	log := logger.Discard()
	listing := NewListing(log, NewUpgrader())
	r := New(log, NewInMemoryRegistry(), listing, Options{
		HandshakeTimeout: time.Second,
		ApprovalTimeout:  time.Second,
	})
	hub := NewHub(r, NewUpgrader())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = listing.Serve(ctx) }()

	srv := httptest.NewServer(NewRouter(r, hub, listing, RouterConfig{Log: log, LoginRateLimit: 1000}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testRelay{relay: r, listing: listing, server: srv}
}

func (tr *testRelay) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tr.server.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sampleInfo(name, password string) protocol.Info {
	return protocol.Info{
		Name:     name,
		Password: password,
		ImageURL: "http://origin/image",
		Items: []media.Item{{
			VideoURL:  "http://origin/media/a.mp4",
			Title:     "a.mp4",
			Duration:  120,
			Available: true,
			Kind:      media.KindStored,
		}},
	}
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, protocol.MustEncode(msgType, payload)))
}

func next(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

// nextOfType skips frames until one of msgType arrives.
func nextOfType(t *testing.T, ws *websocket.Conn, msgType string) protocol.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		if env := next(t, ws); env.Type == msgType {
			return env
		}
	}
	t.Fatalf("no %s frame received", msgType)
	return protocol.Envelope{}
}
