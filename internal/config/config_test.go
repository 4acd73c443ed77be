package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOFILEFS_BACKEND", "GOFILE_TOKEN", "GOFILE_API_URL", "S3_BUCKET",
		"DATABASE_URL", "CACHE_TTL", "CACHE_DIR", "MAX_CACHE_SIZE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOFILE_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendGofile, cfg.Backend)
	assert.Equal(t, "https://api.gofile.io", cfg.GofileAPIURL)
	assert.Equal(t, DefaultTTL, cfg.CacheTTL)
	assert.Equal(t, int64(1<<30), cfg.MaxCacheSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_GofileRequiresToken(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GofileToken")
}

func TestLoad_PostgresRequiresDatabaseAndBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOFILEFS_BACKEND", BackendPostgres)
	t.Setenv("S3_BUCKET", "blobs")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")

	t.Setenv("DATABASE_URL", "postgres://localhost/gofilefs")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "blobs", cfg.S3Bucket)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GOFILEFS_BACKEND=demo\nCACHE_TTL=30s\nLOG_LEVEL=warn\n"), 0o644))

	// Process environment wins over the file.
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendDemo, cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GOFILEFS_BACKEND", "ftp"},
		{"LOG_LEVEL", "chatty"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GOFILE_TOKEN", "secret")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOFILEFS_BACKEND", BackendDemo)
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("MAX_CACHE_SIZE", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, cfg.CacheTTL)
	assert.Equal(t, int64(1<<30), cfg.MaxCacheSize)
}

func TestLoad_CacheSizeUnits(t *testing.T) {
	for raw, want := range map[string]int64{
		"1048576": 1 << 20,
		"512MB":   512_000_000,
		"2GiB":    2 << 30,
	} {
		t.Run(raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GOFILEFS_BACKEND", BackendDemo)
			t.Setenv("MAX_CACHE_SIZE", raw)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, want, cfg.MaxCacheSize)
		})
	}
}
