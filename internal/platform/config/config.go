package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
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

// GetEnvBool returns the boolean value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not parseable by strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvSeconds reads an integer number of seconds. Values below min yield fallback.
func GetEnvSeconds(key string, fallback time.Duration, min int) time.Duration {
	n := GetEnvInt(key, -1)
	if n < min {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Settings is the full process configuration read from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	ChannelsFile string

	TokenSecret  string
	TokenTTL     time.Duration
	ReplayPolicy string

	BindClientIP      bool
	TrustForwardedFor bool
	AllowedOrigin     string
	PublicBaseURL     string

	ManifestTimeout  time.Duration
	SegmentTimeout   time.Duration
	MaxRedirects     int
	SweepInterval    time.Duration
	PlaylistCacheTTL time.Duration
	DefaultUserAgent string

	RewriteNested bool
	GzipPlaylists bool
}

// FromEnv builds Settings from the environment, applying defaults for anything
// unset or invalid.
func FromEnv() Settings {
	cacheMS := GetEnvInt("PLAYLIST_CACHE_MS", 1000)
	if cacheMS < 0 {
		cacheMS = 0
	}
	maxRedirects := GetEnvInt("MAX_REDIRECTS", 5)
	if maxRedirects < 0 {
		maxRedirects = 5
	}

	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		ChannelsFile: GetEnv("CHANNELS_FILE", "channels.yaml"),

		TokenSecret:  os.Getenv("TOKEN_SECRET"),
		TokenTTL:     GetEnvSeconds("TOKEN_TTL_SECONDS", 120*time.Second, 1),
		ReplayPolicy: strings.ToLower(GetEnv("REPLAY_POLICY", "single")),

		BindClientIP:      GetEnvBool("BIND_CLIENT_IP", true),
		TrustForwardedFor: GetEnvBool("TRUST_FORWARDED_FOR", false),
		AllowedOrigin:     strings.TrimRight(os.Getenv("ALLOWED_ORIGIN"), "/"),
		PublicBaseURL:     strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		ManifestTimeout:  GetEnvSeconds("MANIFEST_TIMEOUT_SECONDS", 10*time.Second, 1),
		SegmentTimeout:   GetEnvSeconds("SEGMENT_TIMEOUT_SECONDS", 20*time.Second, 1),
		MaxRedirects:     maxRedirects,
		SweepInterval:    GetEnvSeconds("SWEEP_INTERVAL_SECONDS", 30*time.Second, 1),
		PlaylistCacheTTL: time.Duration(cacheMS) * time.Millisecond,
		DefaultUserAgent: GetEnv("DEFAULT_USER_AGENT", "hls-relay/1.0"),

		RewriteNested: GetEnvBool("REWRITE_NESTED", true),
		GzipPlaylists: GetEnvBool("GZIP_PLAYLISTS", true),
	}
}
