package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/gofilefs/pkg/vfs"
)

func runDemo(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GOFILEFS_BACKEND", "demo")
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	full := append([]string{"-env", filepath.Join(t.TempDir(), "missing.env")}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestLs(t *testing.T) {
	out, err := runDemo(t, "ls")
	require.NoError(t, err)
	assert.Equal(t, "docs\nREADME.md\nphotos\n", out)

	out, err = runDemo(t, "ls", "/docs")
	require.NoError(t, err)
	assert.Equal(t, "café.txt\nreport.txt\n", out)
}

func TestLsLong(t *testing.T) {
	out, err := runDemo(t, "ls", "-l", "/")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/")
	assert.Contains(t, out, "21 B")
	assert.NotContains(t, out, "photos/", "the newer file hides the folder")
}

func TestCat(t *testing.T) {
	out, err := runDemo(t, "cat", "docs/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "final version\nsigned off\n", out)

	out, err = runDemo(t, "cat", "-b", "docs/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "final version\r\nsigned off\r\n", out)

	out, err = runDemo(t, "cat", "/docs/café.txt")
	require.NoError(t, err)
	assert.Equal(t, "café crème\n", out)
}

func TestCatErrors(t *testing.T) {
	_, err := runDemo(t, "cat", "/docs")
	assert.ErrorIs(t, err, vfs.ErrNotAFile)
	assert.EqualError(t, err, "Not a file: '/docs'")

	_, err = runDemo(t, "cat", "/nope/x")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestStat(t *testing.T) {
	out, err := runDemo(t, "stat", "photos")
	require.NoError(t, err)
	assert.Contains(t, out, "f-photos")
	assert.Contains(t, out, "file")

	_, err = runDemo(t, "stat", "/missing")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestTree(t *testing.T) {
	out, err := runDemo(t, "tree")
	require.NoError(t, err)
	assert.Equal(t, "./\n  README.md\n  docs/\n    café.txt\n    report.txt\n  photos\n\n1 directories, 4 files\n", out)

	out, err = runDemo(t, "tree", "/docs")
	require.NoError(t, err)
	assert.Equal(t, "docs/\n  café.txt\n  report.txt\n\n0 directories, 2 files\n", out)
}

func TestUsage(t *testing.T) {
	_, err := runDemo(t)
	assert.True(t, errors.Is(err, flag.ErrHelp))

	_, err = runDemo(t, "frobnicate")
	assert.EqualError(t, err, `unknown command "frobnicate"`)
}
