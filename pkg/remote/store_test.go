package remote

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodingFromContentType(t *testing.T) {
	tests := []struct {
		contentType, want string
	}{
		{"", "utf-8"},
		{"text/plain", "utf-8"},
		{"text/plain; charset=ISO-8859-1", "iso-8859-1"},
		{"text/html;charset=\"Shift_JIS\"", "shift_jis"},
		{"not a media type;;", "utf-8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodingFromContentType(tt.contentType), tt.contentType)
	}
}

func TestNewStream(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("abc")), "")
	assert.Equal(t, DefaultEncoding, s.Encoding())

	data, err := io.ReadAll(s)
	assert.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.NoError(t, s.Close())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("reload abc: %w", ErrContentNotFound)))
	assert.False(t, IsNotFound(io.ErrUnexpectedEOF))
}
