package origin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"watchalong/internal/media"
)

// stagingDir is where side artifacts are written before being renamed into place.
const stagingDir = ".staging"

// ScanResult is the stored half of a library snapshot.
type ScanResult struct {
	Items []media.Item
	Fonts []string
}

// ScannerConfig locates the directories a Scanner reads and writes.
type ScannerConfig struct {
	MediaDir    string
	SubtitleDir string
	PublicURL   string
	Concurrency int
}

// Scanner walks the media directory, probes each file and extracts subtitle
// tracks and embedded fonts into the subtitle directory.
type Scanner struct {
	fs        afero.Fs
	cfg       ScannerConfig
	prober    Prober
	extractor Extractor
	log       *slog.Logger

	mu     sync.Mutex
	hashes map[string]hashEntry
}

type hashEntry struct {
	size    int64
	modTime time.Time
	sum     string
}

type extractJob struct {
	src    string
	stream int
	dst    string
	font   bool
}

// NewScanner returns a scanner over fs.
func NewScanner(fs afero.Fs, cfg ScannerConfig, prober Prober, extractor Extractor, log *slog.Logger) *Scanner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scanner{
		fs:        fs,
		cfg:       cfg,
		prober:    prober,
		extractor: extractor,
		log:       log.With("component", "scanner"),
		hashes:    make(map[string]hashEntry),
	}
}

// Scan builds the stored items. Files without an audio or video stream are
// skipped; a file the prober cannot read is logged and skipped.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	entries, err := afero.ReadDir(s.fs, s.cfg.MediaDir)
	if err != nil {
		return ScanResult{}, fmt.Errorf("read media dir: %w", err)
	}

	var (
		items    []media.Item
		fonts    []string
		jobs     []extractJob
		fontSeen = make(map[string]bool)
	)
	for _, entry := range entries {
		if !entry.Mode().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		src := filepath.Join(s.cfg.MediaDir, name)

		probe, err := s.prober.Probe(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return ScanResult{}, ctx.Err()
			}
			s.log.Warn("probe failed", slog.String("file", name), slog.Any("error", err))
			continue
		}
		if !probe.HasVideo && !probe.HasAudio {
			continue
		}

		item := media.Item{
			Title:     name,
			Duration:  probe.Duration,
			Available: true,
			Kind:      media.KindStored,
		}
		link := publicURL(s.cfg.PublicURL, CategoryMedia, name)
		if probe.HasVideo {
			item.VideoURL = link
		} else {
			item.AudioURL = link
		}

		key := s.fingerprint(name, entry)
		if key != "" {
			fp := key
			item.Fingerprint = &fp
		} else {
			key = strconv.FormatUint(xxhash.Sum64String(name), 16)
		}

		for i, sub := range probe.Subtitles {
			file := key + "_" + strconv.Itoa(sub.Index) + ".vtt"
			label := sub.Title
			if label == "" {
				label = "Track " + strconv.Itoa(i+1)
			}
			lang := sub.Language
			if lang == "" {
				lang = "und"
			}
			item.Subtitles = append(item.Subtitles, media.Subtitle{
				URL:      publicURL(s.cfg.PublicURL, CategorySubtitle, file),
				Name:     label,
				Language: lang,
				CodecID:  subtitleCodecIDs[sub.Codec],
			})
			jobs = append(jobs, extractJob{src: src, stream: sub.Index, dst: file})
		}
		for _, att := range probe.Fonts {
			file := key + "_" + filepath.Base(att.Filename)
			if fontSeen[file] {
				continue
			}
			fontSeen[file] = true
			fonts = append(fonts, publicURL(s.cfg.PublicURL, CategorySubtitle, file))
			jobs = append(jobs, extractJob{src: src, stream: att.Index, dst: file, font: true})
		}
		items = append(items, item)
	}

	present, err := s.extract(ctx, jobs)
	if err != nil {
		return ScanResult{}, err
	}

	// Tracks whose extraction failed are not advertised.
	for i := range items {
		kept := items[i].Subtitles[:0]
		for _, sub := range items[i].Subtitles {
			if present[fileName(sub.URL)] {
				kept = append(kept, sub)
			}
		}
		items[i].Subtitles = kept
		if len(kept) == 0 {
			items[i].Subtitles = nil
		}
	}
	keptFonts := fonts[:0]
	for _, f := range fonts {
		if present[fileName(f)] {
			keptFonts = append(keptFonts, f)
		}
	}
	if len(keptFonts) == 0 {
		keptFonts = nil
	}
	return ScanResult{Items: items, Fonts: keptFonts}, nil
}

// fingerprint hashes a file's content, reusing the previous sum while its size
// and modification time are unchanged. It returns "" if the file cannot be read.
func (s *Scanner) fingerprint(name string, info os.FileInfo) string {
	s.mu.Lock()
	cached, ok := s.hashes[name]
	s.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.sum
	}

	f, err := s.fs.Open(filepath.Join(s.cfg.MediaDir, name))
	if err != nil {
		s.log.Warn("fingerprint failed", slog.String("file", name), slog.Any("error", err))
		return ""
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		s.log.Warn("fingerprint failed", slog.String("file", name), slog.Any("error", err))
		return ""
	}
	sum := fmt.Sprintf("%016x", h.Sum64())

	s.mu.Lock()
	s.hashes[name] = hashEntry{size: info.Size(), modTime: info.ModTime(), sum: sum}
	s.mu.Unlock()
	return sum
}

// extract makes sure every job's output exists in the subtitle directory and
// removes files no job asked for. Missing outputs are written into the staging
// directory first and renamed into place once complete. It returns the set of
// file names that are present afterwards.
func (s *Scanner) extract(ctx context.Context, jobs []extractJob) (map[string]bool, error) {
	staging := filepath.Join(s.cfg.SubtitleDir, stagingDir)
	if err := s.fs.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	var mu sync.Mutex
	present := make(map[string]bool, len(jobs))
	wanted := make(map[string]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, job := range jobs {
		wanted[job.dst] = true
		final := filepath.Join(s.cfg.SubtitleDir, job.dst)
		if ok, _ := afero.Exists(s.fs, final); ok {
			mu.Lock()
			present[job.dst] = true
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			tmp := filepath.Join(staging, job.dst)
			var err error
			if job.font {
				err = s.extractor.ExtractAttachment(gctx, job.src, job.stream, tmp)
			} else {
				err = s.extractor.ExtractSubtitle(gctx, job.src, job.stream, tmp)
			}
			if err == nil {
				if ok, _ := afero.Exists(s.fs, tmp); !ok {
					err = errNoOutput
				}
			}
			if err == nil {
				err = s.fs.Rename(tmp, final)
			}
			if err != nil {
				_ = s.fs.Remove(tmp)
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("extraction failed",
					slog.String("source", filepath.Base(job.src)),
					slog.Int("stream", job.stream),
					slog.Any("error", err))
				return nil
			}
			mu.Lock()
			present[job.dst] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, s.cfg.SubtitleDir)
	if err != nil {
		return nil, fmt.Errorf("read subtitle dir: %w", err)
	}
	for _, entry := range entries {
		if entry.Mode().IsRegular() && !wanted[entry.Name()] {
			if err := s.fs.Remove(filepath.Join(s.cfg.SubtitleDir, entry.Name())); err != nil {
				s.log.Warn("removing stale subtitle", slog.String("file", entry.Name()), slog.Any("error", err))
			}
		}
	}
	return present, nil
}
