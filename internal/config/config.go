// Package config loads configuration from environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Backend names accepted by GOFILEFS_BACKEND.
const (
	BackendGofile   = "gofile"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendDemo     = "demo"
)

// DefaultTTL is how long cached node metadata stays fresh.
const DefaultTTL = 15 * time.Second

var validate = validator.New()

// Config holds all client configuration.
type Config struct {
	Backend string `validate:"oneof=gofile s3 postgres demo"`

	// Gofile
	GofileToken  string `validate:"required_if=Backend gofile"`
	GofileAPIURL string `validate:"omitempty,url"`

	// S3 storage (also the blob source for the postgres backend)
	S3Endpoint  string
	S3Bucket    string `validate:"required_if=Backend s3,required_if=Backend postgres"`
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Postgres metadata
	DatabaseURL string `validate:"required_if=Backend postgres"`
	RootID      string

	// Node metadata cache
	CacheTTL time.Duration `validate:"gt=0"`

	// On-disk content cache (FUSE mount)
	CacheDir     string `validate:"required"`
	MaxCacheSize int64  `validate:"gt=0"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	// Metrics (empty disables the endpoint)
	MetricsAddr string
}

// Load reads configuration from the environment. Values from envFiles fill in
// variables that are not set in the process environment; a missing file is
// not an error.
func Load(envFiles ...string) (*Config, error) {
	src := source{}
	for _, name := range envFiles {
		values, err := godotenv.Read(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for k, v := range values {
			if _, ok := src[k]; !ok {
				src[k] = v
			}
		}
	}

	cfg := &Config{
		Backend:      src.envOr("GOFILEFS_BACKEND", BackendGofile),
		GofileToken:  src.envOr("GOFILE_TOKEN", ""),
		GofileAPIURL: src.envOr("GOFILE_API_URL", "https://api.gofile.io"),
		S3Endpoint:   src.envOr("S3_ENDPOINT", ""),
		S3Bucket:     src.envOr("S3_BUCKET", ""),
		S3AccessKey:  src.envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:  src.envOr("S3_SECRET_KEY", ""),
		S3Region:     src.envOr("S3_REGION", "us-east-1"),
		DatabaseURL:  src.envOr("DATABASE_URL", ""),
		RootID:       src.envOr("ROOT_ID", ""),
		CacheTTL:     src.envDuration("CACHE_TTL", DefaultTTL),
		CacheDir:     src.envOr("CACHE_DIR", defaultCacheDir()),
		MaxCacheSize: src.envBytes("MAX_CACHE_SIZE", 1<<30), // 1GB default
		LogLevel:     src.envOr("LOG_LEVEL", "info"),
		LogFormat:    src.envOr("LOG_FORMAT", "console"),
		MetricsAddr:  src.envOr("METRICS_ADDR", ""),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports the first failure.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("config: %s failed on '%s' (value: %v)", e.Field(), e.Tag(), e.Value())
	}
	return fmt.Errorf("config: %w", err)
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/gofilefs"
	}
	return "/tmp/gofilefs-cache"
}

// source resolves variables from the process environment first, then from
// values loaded out of .env files.
type source map[string]string

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s[key]
}

func (s source) envOr(key, fallback string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return fallback
}

// envBytes accepts plain byte counts and sizes like "512MB" or "2GiB".
func (s source) envBytes(key string, fallback int64) int64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	n, err := humanize.ParseBytes(v)
	if err != nil || n > math.MaxInt64 {
		return fallback
	}
	return int64(n)
}

func (s source) envDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
