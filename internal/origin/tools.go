package origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Probe is what the metadata tool reports about one file.
type Probe struct {
	HasVideo  bool
	HasAudio  bool
	Duration  float64
	Subtitles []SubtitleStream
	Fonts     []Attachment
}

// SubtitleStream is one text subtitle stream inside a container.
type SubtitleStream struct {
	Index    int
	Language string
	Title    string
	Codec    string
}

// Attachment is an embedded file, typically a font used by ASS subtitles.
type Attachment struct {
	Index    int
	Filename string
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (Probe, error)
}

// Extractor pulls side artifacts out of a container.
type Extractor interface {
	ExtractSubtitle(ctx context.Context, src string, stream int, dst string) error
	ExtractAttachment(ctx context.Context, src string, stream int, dst string) error
}

// Resolution is what the resolver learns about a remote URL before fetching it.
type Resolution struct {
	Title            string            `json:"fulltitle"`
	ID               string            `json:"id"`
	URL              string            `json:"url"`
	Extension        string            `json:"ext"`
	Duration         float64           `json:"duration"`
	VideoCodec       string            `json:"vcodec"`
	AudioCodec       string            `json:"acodec"`
	RequestedFormats []RequestedFormat `json:"requested_formats"`
}

// RequestedFormat is one of the streams a merged download is built from.
type RequestedFormat struct {
	URL        string `json:"url"`
	VideoCodec string `json:"vcodec"`
	AudioCodec string `json:"acodec"`
}

func codecPresent(codec string) bool {
	return codec != "" && codec != "none"
}

// HasVideo reports whether the resolved stream carries video.
func (r Resolution) HasVideo() bool {
	if codecPresent(r.VideoCodec) {
		return true
	}
	for _, f := range r.RequestedFormats {
		if codecPresent(f.VideoCodec) {
			return true
		}
	}
	return false
}

// HasAudio reports whether the resolved stream carries audio.
func (r Resolution) HasAudio() bool {
	if codecPresent(r.AudioCodec) {
		return true
	}
	for _, f := range r.RequestedFormats {
		if codecPresent(f.AudioCodec) {
			return true
		}
	}
	return false
}

// HasSource reports whether there is anything to fetch.
func (r Resolution) HasSource() bool {
	if r.URL != "" {
		return true
	}
	for _, f := range r.RequestedFormats {
		if f.URL != "" {
			return true
		}
	}
	return false
}

// Resolver turns a page URL into a downloadable stream.
type Resolver interface {
	Resolve(ctx context.Context, url string) (Resolution, error)
	Fetch(ctx context.Context, url, dst string) error
}

// subtitleCodecIDs lists the text formats that convert to WebVTT, keyed to the
// codec identifier carried in subtitle descriptors. Bitmap formats are absent.
var subtitleCodecIDs = map[string]int{
	"subrip":   1,
	"ass":      2,
	"ssa":      3,
	"webvtt":   4,
	"mov_text": 5,
	"text":     6,
}

var fontMimeTypes = map[string]bool{
	"application/x-truetype-font": true,
	"application/x-font-ttf":      true,
	"application/vnd.ms-opentype": true,
	"application/x-font-otf":      true,
	"font/ttf":                    true,
	"font/otf":                    true,
	"font/sfnt":                   true,
}

func run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return out, fmt.Errorf("%s: %w: %s", tool, err, msg)
		}
		return out, fmt.Errorf("%s: %w", tool, err)
	}
	return out, nil
}

// FFprobe implements Prober with the ffprobe binary.
type FFprobe struct {
	Path string
}

type ffprobeOutput struct {
	Streams []struct {
		Index       int               `json:"index"`
		CodecType   string            `json:"codec_type"`
		CodecName   string            `json:"codec_name"`
		Tags        map[string]string `json:"tags"`
		Disposition map[string]int    `json:"disposition"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe implements Prober.
func (p FFprobe) Probe(ctx context.Context, path string) (Probe, error) {
	out, err := run(ctx, p.Path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return Probe{}, err
	}
	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return Probe{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	var probe Probe
	probe.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			// Cover art shows up as a video stream.
			if s.Disposition["attached_pic"] == 0 {
				probe.HasVideo = true
			}
		case "audio":
			probe.HasAudio = true
		case "subtitle":
			if _, ok := subtitleCodecIDs[s.CodecName]; ok {
				probe.Subtitles = append(probe.Subtitles, SubtitleStream{
					Index:    s.Index,
					Language: s.Tags["language"],
					Title:    s.Tags["title"],
					Codec:    s.CodecName,
				})
			}
		case "attachment":
			if fontMimeTypes[strings.ToLower(s.Tags["mimetype"])] && s.Tags["filename"] != "" {
				probe.Fonts = append(probe.Fonts, Attachment{Index: s.Index, Filename: s.Tags["filename"]})
			}
		}
	}
	return probe, nil
}

// FFmpeg implements Extractor with the ffmpeg binary.
type FFmpeg struct {
	Path string
}

// ExtractSubtitle implements Extractor.
func (f FFmpeg) ExtractSubtitle(ctx context.Context, src string, stream int, dst string) error {
	_, err := run(ctx, f.Path, "-v", "error", "-y", "-i", src, "-map", "0:"+strconv.Itoa(stream), "-f", "webvtt", dst)
	return err
}

// ExtractAttachment implements Extractor. ffmpeg exits non-zero after dumping
// attachments when no output file is given, so only a missing dump is an error.
func (f FFmpeg) ExtractAttachment(ctx context.Context, src string, stream int, dst string) error {
	_, err := run(ctx, f.Path, "-v", "error", "-y", "-dump_attachment:"+strconv.Itoa(stream), dst, "-i", src)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// YtDlp implements Resolver with yt-dlp (or a compatible youtube-dl build).
type YtDlp struct {
	Path string
}

const ytdlpFormat = "bestvideo+bestaudio/best/bestaudio/bestvideo"

// Resolve implements Resolver.
func (y YtDlp) Resolve(ctx context.Context, url string) (Resolution, error) {
	out, err := run(ctx, y.Path, "--no-playlist", "--quiet", "--dump-json",
		"-f", ytdlpFormat, "--merge-output-format", "mp4", url)
	if err != nil {
		return Resolution{}, err
	}
	var res Resolution
	if err := json.Unmarshal(out, &res); err != nil {
		return Resolution{}, fmt.Errorf("decode resolver output: %w", err)
	}
	return res, nil
}

// Fetch implements Resolver.
func (y YtDlp) Fetch(ctx context.Context, url, dst string) error {
	_, err := run(ctx, y.Path, "--no-playlist", "--quiet",
		"-f", ytdlpFormat, "--merge-output-format", "mp4", "-o", dst, url)
	return err
}
