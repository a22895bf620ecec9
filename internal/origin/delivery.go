package origin

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"watchalong/internal/platform/metrics"
)

// chunkSize bounds the memory one transfer holds.
const chunkSize = 256 << 10

// Delivery serves library files over HTTP with single-range support. A file is
// served only while its name is on the live allow-list of its category.
type Delivery struct {
	fs        afero.Fs
	roots     map[Category]string
	imagePath string
	library   *Library
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// DeliveryConfig maps categories to their directories.
type DeliveryConfig struct {
	MediaDir    string
	DownloadDir string
	SubtitleDir string
	ImagePath   string
}

// NewDelivery returns a delivery endpoint over fs.
func NewDelivery(fs afero.Fs, cfg DeliveryConfig, library *Library, m *metrics.Metrics, log *slog.Logger) *Delivery {
	return &Delivery{
		fs: fs,
		roots: map[Category]string{
			CategoryMedia:    cfg.MediaDir,
			CategoryDownload: cfg.DownloadDir,
			CategorySubtitle: cfg.SubtitleDir,
		},
		imagePath: cfg.ImagePath,
		library:   library,
		metrics:   m,
		log:       log.With("component", "delivery"),
	}
}

// HasImage reports whether the server image exists.
func (d *Delivery) HasImage() bool {
	if d.imagePath == "" {
		return false
	}
	ok, _ := afero.Exists(d.fs, d.imagePath)
	return ok
}

// Category returns the handler for /{cat}/*.
func (d *Delivery) Category(cat Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil || name == "" {
			http.NotFound(w, r)
			return
		}
		if !validName(name) || !d.library.Allowed(cat, name) {
			d.log.Warn("forbidden", slog.String("category", string(cat)), slog.String("name", name))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		d.serveFile(w, r, filepath.Join(d.roots[cat], name))
	}
}

// Image serves the server image.
func (d *Delivery) Image(w http.ResponseWriter, r *http.Request) {
	if d.imagePath == "" {
		http.NotFound(w, r)
		return
	}
	d.serveFile(w, r, d.imagePath)
}

func validName(name string) bool {
	return name == path.Base(name) &&
		name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}

func (d *Delivery) serveFile(w http.ResponseWriter, r *http.Request, full string) {
	f, err := d.fs.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		d.log.Error("open failed", slog.String("file", full), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		d.log.Error("stat failed", slog.String("file", full), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.NotFound(w, r)
		return
	}
	size := info.Size()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		contentType = mt.String()
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)

	status := http.StatusOK
	span := byteRange{start: 0, end: size - 1}
	if header := r.Header.Get("Range"); header != "" {
		rg, err := parseRange(header, size)
		switch {
		case err == nil:
			status = http.StatusPartialContent
			span = rg
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rg.start, rg.end, size))
			d.metrics.IncRangeRequests()
		case errors.Is(err, errRangeUnsatisfiable):
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			http.Error(w, http.StatusText(http.StatusRequestedRangeNotSatisfiable), http.StatusRequestedRangeNotSatisfiable)
			return
		}
	}

	if _, err := f.Seek(span.start, io.SeekStart); err != nil {
		d.log.Error("seek failed", slog.String("file", full), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	length := span.length()
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	d.stream(w, r, f, length, full)
}

// stream copies length bytes in chunks, flushing each one. It stops quietly
// when the client goes away and aborts the connection on a read failure, since
// the status line has already been sent.
func (d *Delivery) stream(w http.ResponseWriter, r *http.Request, f afero.File, length int64, full string) {
	rc := http.NewResponseController(w)
	buf := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		if err := r.Context().Err(); err != nil {
			d.log.Debug("transfer cancelled", slog.String("file", full), slog.Int64("remaining", remaining))
			return
		}
		n, err := f.Read(buf[:min(int64(len(buf)), remaining)])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			remaining -= int64(n)
			d.metrics.AddBytesServed(int64(n))
			_ = rc.Flush()
		}
		if err != nil && remaining > 0 {
			d.log.Error("read failed mid-transfer", slog.String("file", full), slog.Any("error", err))
			d.metrics.IncErrors()
			panic(http.ErrAbortHandler)
		}
	}
}
