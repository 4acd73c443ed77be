package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath_String(t *testing.T) {
	c, _, _ := newTestClient(t)

	tests := []struct {
		segments []string
		want     string
	}{
		{nil, "."},
		{[]string{""}, "."},
		{[]string{".", "."}, "."},
		{[]string{"./."}, "."},
		{[]string{"/"}, "/"},
		{[]string{"/", "."}, "/"},
		{[]string{"//docs//sub/"}, "/docs/sub"},
		{[]string{"docs", "sub"}, "docs/sub"},
		{[]string{"docs/", "sub"}, "docs/sub"},
		{[]string{"./docs/./sub"}, "docs/sub"},
		{[]string{"docs", "/readme.md", "x"}, "/readme.md/x"},
		{[]string{"docs", "..", "sub"}, "docs/../sub"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Path(tt.segments...).String(), "segments %q", tt.segments)
	}
}

func TestPath_Absolute(t *testing.T) {
	c, _, _ := newTestClient(t)

	tests := []struct {
		in, want string
	}{
		{".", "/"},
		{"/", "/"},
		{"docs/sub", "/docs/sub"},
		{"/docs/../readme.md", "/readme.md"},
		{"../docs", "/docs"},
		{"docs/./sub/..", "/docs"},
	}
	for _, tt := range tests {
		abs := c.Path(tt.in).Absolute()
		assert.Equal(t, tt.want, abs.String(), "in %q", tt.in)
		assert.Equal(t, abs.String(), abs.Absolute().String(), "idempotent for %q", tt.in)
		assert.True(t, abs.IsAbs())
	}
}

func TestPath_NameParent(t *testing.T) {
	c, _, _ := newTestClient(t)

	tests := []struct {
		in, name, parent string
		abs              bool
	}{
		{"/docs/notes.txt", "notes.txt", "/docs", true},
		{"/docs", "docs", "/", true},
		{"/", "", "/", true},
		{"docs", "docs", ".", false},
		{".", "", ".", false},
		{"docs/sub", "sub", "docs", false},
	}
	for _, tt := range tests {
		p := c.Path(tt.in)
		assert.Equal(t, tt.name, p.Name(), "name of %q", tt.in)
		assert.Equal(t, tt.parent, p.Parent().String(), "parent of %q", tt.in)
		assert.Equal(t, tt.abs, p.IsAbs(), "IsAbs of %q", tt.in)
	}
}

func TestPath_Join(t *testing.T) {
	c, _, _ := newTestClient(t)
	base := c.Path("/docs")

	assert.Equal(t, "/docs/sub/x", base.Join("sub", "x").String())
	assert.Equal(t, "/readme.md", base.Join("/readme.md").String())
	assert.Equal(t, "/docs", base.Join().String())
	assert.Same(t, c, base.Join("sub").Client())
}
