package origin

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchalong/internal/platform/logger"
)

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var rescans atomic.Int32
	w := NewWatcher([]string{dir}, 100*time.Millisecond, func(context.Context) {
		rescans.Add(1)
	}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f"+strconv.Itoa(i)), []byte("x"), 0o644))
	}

	require.Eventually(t, func() bool { return rescans.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), rescans.Load())
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher([]string{filepath.Join(t.TempDir(), "absent")}, 0, func(context.Context) {}, logger.Discard())
	assert.Error(t, w.Serve(context.Background()))
}
