package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchalong/internal/media"
	"watchalong/internal/platform/logger"
	"watchalong/internal/protocol"
)

// fakeOrigin answers the origin side of the link protocol.
type fakeOrigin struct {
	mu        sync.Mutex
	info      protocol.Info
	silent    bool
	downloads []string
	conn      *websocket.Conn
	server    *httptest.Server
}

func newFakeOrigin(t *testing.T, info protocol.Info) *fakeOrigin {
	t.Helper()
	f := &fakeOrigin{info: info}
	upgrader := NewUpgrader()
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = ws
		f.mu.Unlock()
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			f.answer(ws, env)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOrigin) answer(ws *websocket.Conn, env protocol.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.silent {
		return
	}
	switch env.Type {
	case protocol.TypeGetInfo:
		frame, _ := protocol.Encode(protocol.TypeInfo, env.ID, f.info)
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	case protocol.TypeApproveViewer:
		var req protocol.ApproveViewerRequest
		_ = env.Unmarshal(&req)
		frame, _ := protocol.Encode(protocol.TypeApproval, env.ID, protocol.Approval{Accept: req.Username != "mallory"})
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	case protocol.TypeDownload:
		var req protocol.DownloadRequest
		_ = env.Unmarshal(&req)
		f.downloads = append(f.downloads, req.URL)
	}
}

func (f *fakeOrigin) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/link"
}

func (f *fakeOrigin) push(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.conn)
	require.NoError(t, f.conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.TypeLibraryChanged, nil)))
}

func (f *fakeOrigin) setInfo(info protocol.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
}

func (f *fakeOrigin) downloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

func TestDial(t *testing.T) {
	t.Run("handshake_returns_info", func(t *testing.T) {
		origin := newFakeOrigin(t, sampleInfo("Den", "pw"))
		link, info, err := Dial(context.Background(), origin.url(), time.Second, logger.Discard())
		require.NoError(t, err)
		defer link.Close()

		assert.Equal(t, "Den", info.Name)
		assert.Equal(t, "pw", info.Password)
		require.Len(t, info.Items, 1)
		assert.Equal(t, "a.mp4", info.Items[0].Title)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, _, err := Dial(context.Background(), "ws://127.0.0.1:1/link", time.Second, logger.Discard())
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})

	t.Run("silent_origin_times_out", func(t *testing.T) {
		origin := newFakeOrigin(t, sampleInfo("Den", ""))
		origin.silent = true
		_, _, err := Dial(context.Background(), origin.url(), 200*time.Millisecond, logger.Discard())
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.ErrorIs(t, err, ErrHandshakeTimeout)
	})
}

func TestLink_Calls(t *testing.T) {
	origin := newFakeOrigin(t, sampleInfo("Den", ""))
	link, _, err := Dial(context.Background(), origin.url(), time.Second, logger.Discard())
	require.NoError(t, err)
	defer link.Close()

	t.Run("approval_is_correlated", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var wg sync.WaitGroup
		results := make(map[string]bool)
		var mu sync.Mutex
		for _, name := range []string{"alice", "mallory", "bob"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				a, err := link.ApproveViewer(ctx, name)
				assert.NoError(t, err)
				mu.Lock()
				results[name] = a.Accept
				mu.Unlock()
			}(name)
		}
		wg.Wait()
		assert.Equal(t, map[string]bool{"alice": true, "mallory": false, "bob": true}, results)
	})

	t.Run("download_is_forwarded", func(t *testing.T) {
		require.NoError(t, link.Download("https://example.com/v"))
		require.Eventually(t, func() bool {
			return len(origin.downloaded()) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("pushes_coalesce", func(t *testing.T) {
		origin.push(t)
		origin.push(t)
		select {
		case <-link.Pushes():
		case <-time.After(2 * time.Second):
			t.Fatal("no push delivered")
		}
	})

	t.Run("closed_link_fails_calls", func(t *testing.T) {
		link.Close()
		_, err := link.GetInfo(context.Background())
		assert.ErrorIs(t, err, ErrLinkClosed)
		assert.ErrorIs(t, link.Err(), ErrLinkClosed)
	})
}

func TestOriginService(t *testing.T) {
	origin := newFakeOrigin(t, sampleInfo("Den", ""))
	tr := newTestRelay(t)
	svc := NewOriginService(origin.url(), tr.relay)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- svc.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return tr.relay.Registry().Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	o, ok := tr.relay.Registry().Get(1)
	require.True(t, ok)
	assert.Equal(t, "Den", o.Name)

	updated := sampleInfo("Den", "")
	updated.Items = append(updated.Items, media.Item{
		VideoURL:  "http://origin/media/b.mp4",
		Title:     "b.mp4",
		Duration:  60,
		Available: true,
		Kind:      media.KindStored,
	})
	origin.setInfo(updated)
	origin.push(t)

	require.Eventually(t, func() bool {
		return len(o.Coordinator().Items()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 0, tr.relay.Registry().Count())
	assert.Equal(t, "origin "+origin.url(), svc.String())
}
