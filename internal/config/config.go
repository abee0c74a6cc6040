// Package config loads server settings from the environment.
//
// LOADING ORDER:
//  1. An optional .env file in the working directory (godotenv). Values already
//     present in the real environment win, so a deployment never gets its
//     settings silently replaced by a stale .env.
//  2. Environment variables, each with a default suitable for local dev.
//
// Load returns an error instead of exiting so main decides how to report it.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxUploadBytes caps one audio upload (20 MiB).
const MaxUploadBytes = 20 << 20

type Config struct {
	Env      string // "dev" or "prod"
	Port     int
	LogLevel string

	DBPath    string
	PublicDir string // static browser client
	UploadDir string // local audio storage when MinIO is not configured

	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool
	CORSOrigins  []string

	// SecretGenerated is true when JWT_SECRET was unset and a random
	// per-process secret is used instead.
	SecretGenerated bool

	MaxUploadBytes int64

	YouTubeAPIKey  string
	YouTubeAPIURL  string
	YouTubeRPS     float64
	RedisURL       string
	SearchCacheTTL time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// IsProd reports whether the server runs in production mode.
func (c Config) IsProd() bool { return c.Env == "prod" }

// GitHubEnabled reports whether GitHub sign-in has credentials.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// MinIOEnabled reports whether uploads go to object storage instead of disk.
func (c Config) MinIOEnabled() bool { return c.MinIOEndpoint != "" }

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return fromEnv(os.Getenv)
}

// fromEnv builds a Config from a lookup function so tests can feed a map
// instead of mutating the process environment.
func fromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		Env:      p.str("APP_ENV", "dev"),
		Port:     p.integer("PORT", 8080),
		LogLevel: p.str("LOG_LEVEL", "debug"),

		DBPath:    p.str("DB_PATH", "data/mixtape.db"),
		PublicDir: p.str("PUBLIC_DIR", "public"),
		UploadDir: p.str("UPLOAD_DIR", "uploads"),

		JWTSecret:    p.str("JWT_SECRET", ""),
		SessionTTL:   p.duration("SESSION_TTL", 24*time.Hour),
		CookieSecure: p.boolean("COOKIE_SECURE", false),
		CORSOrigins:  p.list("CORS_ORIGINS"),

		MaxUploadBytes: MaxUploadBytes,

		YouTubeAPIKey:  p.str("YOUTUBE_API_KEY", ""),
		YouTubeAPIURL:  p.str("YOUTUBE_API_URL", "https://www.googleapis.com/youtube/v3"),
		YouTubeRPS:     p.float("YOUTUBE_RPS", 5),
		RedisURL:       p.str("REDIS_URL", ""),
		SearchCacheTTL: p.duration("SEARCH_CACHE_TTL", 10*time.Minute),

		MinIOEndpoint:  p.str("MINIO_ENDPOINT", ""),
		MinIOAccessKey: p.str("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: p.str("MINIO_SECRET_KEY", ""),
		MinIOBucket:    p.str("MINIO_BUCKET", "mixtape-audio"),
		MinIOUseSSL:    p.boolean("MINIO_USE_SSL", false),

		GitHubClientID:     p.str("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: p.str("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  p.str("GITHUB_CALLBACK_URL", ""),
	}

	if len(p.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, errors.New("config: SESSION_TTL must be positive")
	}
	if cfg.YouTubeRPS <= 0 {
		return Config{}, errors.New("config: YOUTUBE_RPS must be positive")
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProd() {
			return Config{}, errors.New("config: JWT_SECRET is required when APP_ENV=prod")
		}
		// Dev only: sessions do not survive a restart.
		cfg.JWTSecret = randomSecret()
		cfg.SecretGenerated = true
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// parser collects every malformed value instead of stopping at the first,
// so a broken deployment reports all of its mistakes at once.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v := p.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
