// Package origin owns one media library. It scans the library, serves its files
// over HTTP, fetches new media on request and answers the relays linked to it.
package origin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"watchalong/internal/platform/metrics"
	"watchalong/internal/protocol"
)

// Config describes the library and how it is published.
type Config struct {
	Name               string
	Password           string
	PublicURL          string
	MediaDir           string
	DownloadDir        string
	SubtitleDir        string
	ImagePath          string
	BlockedUsernames   []string
	ExtractConcurrency int
}

// Tools are the external collaborators the origin shells out to.
type Tools struct {
	Prober    Prober
	Extractor Extractor
	Resolver  Resolver
}

// Server is a running origin.
type Server struct {
	cfg      Config
	fs       afero.Fs
	library  *Library
	scanner  *Scanner
	acquirer *Acquirer
	approver *Approver
	delivery *Delivery
	links    *LinkServer
	metrics  *metrics.Metrics
	log      *slog.Logger

	scanMu sync.Mutex
}

// New assembles an origin over fs.
func New(fs afero.Fs, cfg Config, tools Tools, m *metrics.Metrics, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		fs:       fs,
		library:  NewLibrary(),
		approver: NewApprover(cfg.BlockedUsernames),
		metrics:  m,
		log:      log.With("component", "origin"),
	}
	s.scanner = NewScanner(fs, ScannerConfig{
		MediaDir:    cfg.MediaDir,
		SubtitleDir: cfg.SubtitleDir,
		PublicURL:   cfg.PublicURL,
		Concurrency: cfg.ExtractConcurrency,
	}, tools.Prober, tools.Extractor, log)
	s.links = NewLinkServer(s, log)
	s.acquirer = NewAcquirer(fs, AcquirerConfig{
		DownloadDir: cfg.DownloadDir,
		PublicURL:   cfg.PublicURL,
	}, tools.Resolver, s.library, s.links.NotifyLibraryChanged, m, log)
	s.delivery = NewDelivery(fs, DeliveryConfig{
		MediaDir:    cfg.MediaDir,
		DownloadDir: cfg.DownloadDir,
		SubtitleDir: cfg.SubtitleDir,
		ImagePath:   cfg.ImagePath,
	}, s.library, m, log)
	return s
}

// PrepareDirs checks the media directory and resets the download directory,
// discarding leftovers from a previous run.
func PrepareDirs(fs afero.Fs, cfg Config) error {
	if ok, err := afero.DirExists(fs, cfg.MediaDir); err != nil || !ok {
		return fmt.Errorf("media directory %q does not exist", cfg.MediaDir)
	}
	if err := fs.RemoveAll(cfg.DownloadDir); err != nil {
		return fmt.Errorf("reset download directory: %w", err)
	}
	if err := fs.MkdirAll(filepath.Join(cfg.DownloadDir, incompleteDir), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	if err := fs.MkdirAll(cfg.SubtitleDir, 0o755); err != nil {
		return fmt.Errorf("create subtitle directory: %w", err)
	}
	return nil
}

// Library returns the live item snapshot.
func (s *Server) Library() *Library { return s.library }

// Acquirer returns the download worker, to be supervised.
func (s *Server) Acquirer() *Acquirer { return s.acquirer }

// Links returns the relay link endpoint.
func (s *Server) Links() *LinkServer { return s.links }

// Watcher returns a watcher that rescans on media or download changes.
func (s *Server) Watcher(debounce time.Duration) *Watcher {
	return NewWatcher([]string{s.cfg.MediaDir, s.cfg.DownloadDir}, debounce, func(ctx context.Context) {
		_, _ = s.Rescan(ctx)
	}, s.log)
}

// Info implements LinkHandler.
func (s *Server) Info() protocol.Info {
	info := protocol.Info{
		Name:          s.cfg.Name,
		Password:      s.cfg.Password,
		Items:         s.library.Items(),
		SubtitleFonts: s.library.Fonts(),
	}
	if s.delivery.HasImage() {
		info.ImageURL = s.cfg.PublicURL + "/image"
	}
	return info
}

// Approve implements LinkHandler.
func (s *Server) Approve(username string) protocol.Approval {
	a := s.approver.Approve(username)
	s.log.Info("viewer approval", slog.String("username", username), slog.Bool("accept", a.Accept))
	return a
}

// Download implements LinkHandler.
func (s *Server) Download(url string) {
	_ = s.acquirer.Submit(url)
}

// Rescan rebuilds the library from disk and tells the relays if anything
// they can see changed. Scans are serialized.
func (s *Server) Rescan(ctx context.Context) (bool, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	start := time.Now()
	res, err := s.scanner.Scan(ctx)
	if err != nil {
		s.log.Error("rescan failed", slog.Any("error", err))
		return false, err
	}
	merged := s.library.Merge(res.Items, res.Fonts, func(name string) bool {
		if name == "" {
			return false
		}
		ok, _ := afero.Exists(s.fs, filepath.Join(s.cfg.DownloadDir, name))
		return ok
	})
	s.metrics.IncRescans()

	for _, title := range merged.Dropped {
		s.log.Warn("download removed because its file was deleted", slog.String("title", title))
	}
	s.log.Info("rescan complete",
		slog.Int("items", len(res.Items)),
		slog.Bool("changed", merged.Changed),
		slog.Duration("took", time.Since(start)))

	if merged.Changed {
		s.links.NotifyLibraryChanged()
	}
	return merged.Changed, nil
}
