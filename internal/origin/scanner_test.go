package origin

import (
	"context"
	"fmt"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchalong/internal/media"
	"watchalong/internal/platform/logger"
)

func newTestScanner(t *testing.T, probes map[string]Probe) (*Scanner, afero.Fs, *fakeExtractor) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("media", 0o755))
	require.NoError(t, fs.MkdirAll("subtitles", 0o755))
	ex := &fakeExtractor{fs: fs, fail: map[int]bool{}}
	s := NewScanner(fs, ScannerConfig{
		MediaDir:    "media",
		SubtitleDir: "subtitles",
		PublicURL:   testPublicURL,
		Concurrency: 2,
	}, fakeProber{probes: probes}, ex, logger.Discard())
	return s, fs, ex
}

func TestScanner_StoredItems(t *testing.T) {
	s, fs, _ := newTestScanner(t, map[string]Probe{
		"media/a film.mp4": {HasVideo: true, HasAudio: true, Duration: 93.5},
		"media/song.mp3":   {HasAudio: true, Duration: 200},
		"media/notes.txt":  {},
	})
	require.NoError(t, afero.WriteFile(fs, "media/a film.mp4", []byte("video bytes"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "media/song.mp3", []byte("audio bytes"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "media/notes.txt", []byte("text"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "media/.partial", []byte("x"), 0o644))
	require.NoError(t, fs.MkdirAll("media/nested", 0o755))

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	film, song := res.Items[0], res.Items[1]
	assert.Equal(t, "a film.mp4", film.Title)
	assert.Equal(t, testPublicURL+"/media/a%20film.mp4", film.VideoURL)
	assert.Empty(t, film.AudioURL)
	assert.Equal(t, 93.5, film.Duration)
	assert.True(t, film.Available)
	assert.Equal(t, media.KindStored, film.Kind)
	require.NotNil(t, film.Fingerprint)
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64String("video bytes")), *film.Fingerprint)

	assert.Empty(t, song.VideoURL)
	assert.Equal(t, testPublicURL+"/media/song.mp3", song.AudioURL)
	assert.Nil(t, res.Fonts)
}

func TestScanner_Subtitles(t *testing.T) {
	probe := Probe{
		HasVideo: true,
		Duration: 1400,
		Subtitles: []SubtitleStream{
			{Index: 2, Language: "eng", Title: "Full", Codec: "subrip"},
			{Index: 3, Codec: "ass"},
		},
		Fonts: []Attachment{{Index: 4, Filename: "Sans.ttf"}},
	}
	s, fs, ex := newTestScanner(t, map[string]Probe{"media/ep1.mkv": probe})
	require.NoError(t, afero.WriteFile(fs, "media/ep1.mkv", []byte("matroska"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "subtitles/stale.vtt", []byte("old"), 0o644))
	fp := fmt.Sprintf("%016x", xxhash.Sum64String("matroska"))

	t.Run("extracted_through_staging", func(t *testing.T) {
		res, err := s.Scan(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Items, 1)

		subs := res.Items[0].Subtitles
		require.Len(t, subs, 2)
		assert.Equal(t, media.Subtitle{
			URL:      testPublicURL + "/subtitle/" + fp + "_2.vtt",
			Name:     "Full",
			Language: "eng",
			CodecID:  subtitleCodecIDs["subrip"],
		}, subs[0])
		assert.Equal(t, "Track 2", subs[1].Name)
		assert.Equal(t, "und", subs[1].Language)
		assert.Equal(t, []string{testPublicURL + "/subtitle/" + fp + "_Sans.ttf"}, res.Fonts)

		for _, name := range []string{fp + "_2.vtt", fp + "_3.vtt", fp + "_Sans.ttf"} {
			ok, _ := afero.Exists(fs, "subtitles/"+name)
			assert.True(t, ok, name)
		}
		staged, err := afero.ReadDir(fs, "subtitles/"+stagingDir)
		require.NoError(t, err)
		assert.Empty(t, staged)

		ok, _ := afero.Exists(fs, "subtitles/stale.vtt")
		assert.False(t, ok)
		assert.Equal(t, 3, ex.count())
	})

	t.Run("existing_outputs_are_reused", func(t *testing.T) {
		_, err := s.Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, ex.count())
	})

	t.Run("failed_tracks_are_not_advertised", func(t *testing.T) {
		require.NoError(t, fs.Remove("subtitles/"+fp+"_3.vtt"))
		ex.mu.Lock()
		ex.fail[3] = true
		ex.mu.Unlock()

		res, err := s.Scan(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Items[0].Subtitles, 1)
		assert.Equal(t, "Full", res.Items[0].Subtitles[0].Name)
	})
}

func TestScanner_MissingMediaDir(t *testing.T) {
	s, fs, _ := newTestScanner(t, nil)
	require.NoError(t, fs.RemoveAll("media"))
	_, err := s.Scan(context.Background())
	assert.Error(t, err)
}
