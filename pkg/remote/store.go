// Package remote defines the contract between the virtual filesystem and a
// remote content store.
package remote

import (
	"context"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/fruitsalade/gofilefs/pkg/models"
)

// ErrContentNotFound is returned by Reload when the node no longer exists
// remotely.
var ErrContentNotFound = errors.New("content not found")

// DefaultEncoding is assumed when a store cannot tell the text encoding of a
// file.
const DefaultEncoding = "utf-8"

// Store is a remote content store.
type Store interface {
	// Root returns the root folder node. It may not be loaded yet.
	Root(ctx context.Context) (*models.ContentNode, error)

	// Reload refreshes node in place from the remote store. It returns an
	// error wrapping ErrContentNotFound when the node was deleted remotely.
	Reload(ctx context.Context, node *models.ContentNode) error

	// Download opens the content of a file node.
	Download(ctx context.Context, node *models.ContentNode) (Stream, error)
}

// Stream is an open remote file.
type Stream interface {
	io.ReadCloser

	// Encoding is the text encoding the store reports for the content.
	Encoding() string
}

// IsNotFound reports whether err means the content is gone remotely.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound)
}

// NewStream wraps rc as a Stream. An empty encoding means DefaultEncoding.
func NewStream(rc io.ReadCloser, encoding string) Stream {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &stream{ReadCloser: rc, encoding: encoding}
}

// EncodingFromContentType extracts the charset parameter of a MIME type.
func EncodingFromContentType(contentType string) string {
	if contentType == "" {
		return DefaultEncoding
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultEncoding
	}
	if cs := strings.TrimSpace(params["charset"]); cs != "" {
		return strings.ToLower(cs)
	}
	return DefaultEncoding
}

type stream struct {
	io.ReadCloser
	encoding string
}

func (s *stream) Encoding() string {
	return s.encoding
}
