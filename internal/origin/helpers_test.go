package origin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"watchalong/internal/platform/logger"
)

const testPublicURL = "http://origin.test"

type fakeProber struct {
	probes map[string]Probe
}

func (p fakeProber) Probe(_ context.Context, path string) (Probe, error) {
	probe, ok := p.probes[path]
	if !ok {
		return Probe{}, errors.New("unrecognised file")
	}
	return probe, nil
}

type fakeExtractor struct {
	fs   afero.Fs
	mu   sync.Mutex
	fail map[int]bool
	runs int
}

func (e *fakeExtractor) write(stream int, dst string) error {
	e.mu.Lock()
	e.runs++
	fail := e.fail[stream]
	e.mu.Unlock()
	if fail {
		return errors.New("extraction failed")
	}
	return afero.WriteFile(e.fs, dst, []byte("WEBVTT\n"), 0o644)
}

func (e *fakeExtractor) ExtractSubtitle(_ context.Context, _ string, stream int, dst string) error {
	return e.write(stream, dst)
}

func (e *fakeExtractor) ExtractAttachment(_ context.Context, _ string, stream int, dst string) error {
	return e.write(stream, dst)
}

func (e *fakeExtractor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

type fakeResolver struct {
	fs         afero.Fs
	res        Resolution
	resolveErr error
	fetchErr   error

	mu      sync.Mutex
	fetches int
}

func (r *fakeResolver) Resolve(context.Context, string) (Resolution, error) {
	return r.res, r.resolveErr
}

func (r *fakeResolver) Fetch(_ context.Context, _ string, dst string) error {
	r.mu.Lock()
	r.fetches++
	r.mu.Unlock()
	if r.fetchErr != nil {
		// A partial file is left behind, as a real failed download would.
		_ = afero.WriteFile(r.fs, dst, []byte("partial"), 0o644)
		return r.fetchErr
	}
	return afero.WriteFile(r.fs, dst, []byte("downloaded media"), 0o644)
}

func (r *fakeResolver) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func testConfig() Config {
	return Config{
		Name:               "Den",
		Password:           "pw",
		PublicURL:          testPublicURL,
		MediaDir:           "media",
		DownloadDir:        "download",
		SubtitleDir:        "subtitles",
		ImagePath:          "image.png",
		BlockedUsernames:   []string{"Mallory"},
		ExtractConcurrency: 2,
	}
}

// newTestServer builds an origin over a memory filesystem with prepared directories.
func newTestServer(t *testing.T, prober fakeProber, resolver *fakeResolver) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := testConfig()
	require.NoError(t, fs.MkdirAll(cfg.MediaDir, 0o755))
	require.NoError(t, PrepareDirs(fs, cfg))
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	resolver.fs = fs
	s := New(fs, cfg, Tools{
		Prober:    prober,
		Extractor: &fakeExtractor{fs: fs},
		Resolver:  resolver,
	}, nil, logger.Discard())
	return s, fs
}
