package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every validation failure returned from LoadRelay and LoadOrigin.
var ErrInvalid = errors.New("invalid configuration")

// defaultOriginName is what an unconfigured origin would be called; it is refused.
const defaultOriginName = "Untitled"

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files; with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool parses key with strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration parses key with time.ParseDuration ("500ms", "10s").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// GetEnvList splits a comma separated variable, dropping blank entries.
func GetEnvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RelayConfig configures cmd/relay.
type RelayConfig struct {
	Addr             string
	Origins          []string
	HandshakeTimeout time.Duration
	ApprovalTimeout  time.Duration
	ShutdownTimeout  time.Duration
	LoginRateLimit   int
	LogLevel         string
	LogFormat        string
}

// LoadRelay reads the relay settings from the environment.
func LoadRelay() (RelayConfig, error) {
	cfg := RelayConfig{
		Addr:             GetEnv("RELAY_ADDR", ":20320"),
		Origins:          GetEnvList("RELAY_ORIGINS", nil),
		HandshakeTimeout: GetEnvDuration("HANDSHAKE_TIMEOUT", 10*time.Second),
		ApprovalTimeout:  GetEnvDuration("APPROVAL_TIMEOUT", 30*time.Second),
		ShutdownTimeout:  GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LoginRateLimit:   GetEnvInt("LOGIN_RATE_LIMIT", 60),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		LogFormat:        GetEnv("LOG_FORMAT", "json"),
	}
	if cfg.HandshakeTimeout <= 0 {
		return cfg, fmt.Errorf("%w: HANDSHAKE_TIMEOUT must be positive", ErrInvalid)
	}
	if cfg.ApprovalTimeout <= 0 {
		return cfg, fmt.Errorf("%w: APPROVAL_TIMEOUT must be positive", ErrInvalid)
	}
	if cfg.LoginRateLimit <= 0 {
		return cfg, fmt.Errorf("%w: LOGIN_RATE_LIMIT must be positive", ErrInvalid)
	}
	return cfg, nil
}

// OriginConfig configures cmd/origin.
type OriginConfig struct {
	Name               string
	Password           string
	Addr               string
	PublicURL          string
	MediaDir           string
	DownloadDir        string
	SubtitleDir        string
	ImagePath          string
	ProbeTool          string
	ExtractTool        string
	ResolverTool       string
	BlockedUsernames   []string
	RescanDebounce     time.Duration
	ExtractConcurrency int
	ShutdownTimeout    time.Duration
	LogLevel           string
	LogFormat          string
}

// LoadOrigin reads the origin settings from the environment.
func LoadOrigin() (OriginConfig, error) {
	cfg := OriginConfig{
		Name:               GetEnv("ORIGIN_NAME", defaultOriginName),
		Password:           os.Getenv("ORIGIN_PASSWORD"),
		Addr:               GetEnv("ORIGIN_ADDR", ":20321"),
		PublicURL:          strings.TrimRight(GetEnv("ORIGIN_PUBLIC_URL", "http://localhost:20321"), "/"),
		MediaDir:           GetEnv("MEDIA_DIR", "media"),
		DownloadDir:        GetEnv("DOWNLOAD_DIR", "download"),
		SubtitleDir:        GetEnv("SUBTITLE_DIR", "subtitles"),
		ImagePath:          GetEnv("ORIGIN_IMAGE", "image.png"),
		ProbeTool:          GetEnv("FFPROBE_PATH", "ffprobe"),
		ExtractTool:        GetEnv("FFMPEG_PATH", "ffmpeg"),
		ResolverTool:       GetEnv("YTDLP_PATH", "yt-dlp"),
		BlockedUsernames:   GetEnvList("BLOCKED_USERNAMES", nil),
		RescanDebounce:     GetEnvDuration("RESCAN_DEBOUNCE", 500*time.Millisecond),
		ExtractConcurrency: GetEnvInt("EXTRACT_CONCURRENCY", 4),
		ShutdownTimeout:    GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:           GetEnv("LOG_LEVEL", "info"),
		LogFormat:          GetEnv("LOG_FORMAT", "json"),
	}
	if strings.TrimSpace(cfg.Name) == "" || cfg.Name == defaultOriginName {
		return cfg, fmt.Errorf("%w: ORIGIN_NAME must be set", ErrInvalid)
	}
	if cfg.MediaDir == "" || cfg.DownloadDir == "" || cfg.SubtitleDir == "" {
		return cfg, fmt.Errorf("%w: media, download and subtitle directories are required", ErrInvalid)
	}
	if cfg.ExtractConcurrency < 1 {
		cfg.ExtractConcurrency = 1
	}
	return cfg, nil
}
