package origin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"watchalong/internal/media"
	"watchalong/internal/platform/metrics"
)

// incompleteDir holds downloads in progress, inside the download directory.
const incompleteDir = "incomplete"

const acquireQueueSize = 64

// AcquirerConfig configures an Acquirer.
type AcquirerConfig struct {
	DownloadDir string
	PublicURL   string
}

// Acquirer fetches remote media into the download directory. Each request
// allocates a pending item that is visible immediately and is withdrawn again
// if the fetch fails. Concurrent requests for the same URL share one fetch.
type Acquirer struct {
	fs       afero.Fs
	cfg      AcquirerConfig
	resolver Resolver
	library  *Library
	notify   func()
	metrics  *metrics.Metrics
	log      *slog.Logger

	group    singleflight.Group
	requests chan string
}

// NewAcquirer returns an acquirer publishing into library. notify is called
// whenever the library gains or loses a pending item.
func NewAcquirer(fs afero.Fs, cfg AcquirerConfig, resolver Resolver, library *Library, notify func(), m *metrics.Metrics, log *slog.Logger) *Acquirer {
	return &Acquirer{
		fs:       fs,
		cfg:      cfg,
		resolver: resolver,
		library:  library,
		notify:   notify,
		metrics:  m,
		log:      log.With("component", "acquirer"),
		requests: make(chan string, acquireQueueSize),
	}
}

// Submit queues url for acquisition without waiting for it.
func (a *Acquirer) Submit(url string) error {
	select {
	case a.requests <- url:
		return nil
	default:
		a.log.Warn("dropping acquisition request", slog.String("url", url))
		return ErrQueueFull
	}
}

// Serve implements suture.Service. Each queued request runs in its own
// goroutine; in-flight fetches are cancelled and awaited on shutdown.
func (a *Acquirer) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case url := <-a.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = a.Acquire(ctx, url)
			}()
		}
	}
}

func (a *Acquirer) String() string { return "acquirer" }

// Acquire resolves and fetches url, publishing it into the download directory.
func (a *Acquirer) Acquire(ctx context.Context, url string) error {
	_, err, _ := a.group.Do(url, func() (any, error) {
		return nil, a.acquire(ctx, url)
	})
	return err
}

func (a *Acquirer) acquire(ctx context.Context, url string) error {
	log := a.log.With(slog.String("url", url))
	log.Info("acquisition requested")

	res, err := a.resolver.Resolve(ctx, url)
	if err != nil {
		return a.reject(log, fmt.Errorf("%w: %v", ErrResolveFailed, err))
	}
	if !res.HasVideo() && !res.HasAudio() {
		return a.reject(log, ErrNoPlayableStream)
	}
	if !res.HasSource() {
		return a.reject(log, ErrNoSource)
	}

	ext := strings.TrimPrefix(res.Extension, ".")
	if ext == "" {
		ext = "mp4"
	}
	name := uuid.NewString() + "." + ext
	item := media.Item{
		Title:     res.Title,
		Duration:  res.Duration,
		Available: false,
		Kind:      media.KindAcquired,
	}
	if item.Title == "" {
		item.Title = url
	}
	link := publicURL(a.cfg.PublicURL, CategoryDownload, name)
	if res.HasVideo() {
		item.VideoURL = link
	} else {
		item.AudioURL = link
	}

	a.library.Add(item)
	a.notify()

	tmp := filepath.Join(a.cfg.DownloadDir, incompleteDir, name)
	err = a.resolver.Fetch(ctx, url, tmp)
	if err == nil {
		err = a.fs.Rename(tmp, filepath.Join(a.cfg.DownloadDir, name))
	}
	if err != nil {
		_ = a.fs.Remove(tmp)
		a.library.Remove(item)
		a.notify()
		return a.reject(log, fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}

	// Availability flips on the rescan triggered by the new file.
	a.metrics.IncAcquisition("ok")
	log.Info("acquisition complete", slog.String("file", name), slog.String("title", item.Title))
	return nil
}

func (a *Acquirer) reject(log *slog.Logger, err error) error {
	a.metrics.IncAcquisition("failed")
	log.Warn("acquisition failed", slog.Any("error", err))
	return err
}
