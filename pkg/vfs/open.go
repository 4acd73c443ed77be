package vfs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

// Decoding error policies for text mode.
const (
	ErrorsStrict  = "strict"
	ErrorsReplace = "replace"
	ErrorsIgnore  = "ignore"
)

type openOptions struct {
	encoding string
	errors   string
	newline  *string
}

// OpenOption configures text-mode opens. Binary opens ignore them.
type OpenOption func(*openOptions)

// WithEncoding decodes with the named encoding instead of the one the remote
// store reports. Names are WHATWG labels such as "utf-8" or "latin1".
func WithEncoding(name string) OpenOption {
	return func(o *openOptions) {
		o.encoding = name
	}
}

// WithErrors sets the decoding error policy: ErrorsStrict (the default),
// ErrorsReplace or ErrorsIgnore. For UTF-8, ErrorsIgnore drops only the
// undecodable bytes; for other encodings it drops every U+FFFD after
// decoding.
func WithErrors(policy string) OpenOption {
	return func(o *openOptions) {
		o.errors = policy
	}
}

// WithNewline disables universal newline translation. "" leaves line endings
// untouched; "\n", "\r" and "\r\n" are accepted for symmetry and behave the
// same on read.
func WithNewline(nl string) OpenOption {
	return func(o *openOptions) {
		o.newline = &nl
	}
}

// Open opens the file at p for reading. mode is "r" or "rt" for text and
// "rb" for bytes. Text mode decodes to UTF-8 using the encoding reported by
// the remote store unless WithEncoding is given, and translates "\r\n" and
// "\r" to "\n" unless WithNewline is given.
func (p *Path) Open(ctx context.Context, mode string, opts ...OpenOption) (io.ReadCloser, error) {
	o := openOptions{errors: ErrorsStrict}
	for _, opt := range opts {
		opt(&o)
	}

	text, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	label := "binary"
	if text {
		label = "text"
	}

	stream, err := p.OpenStream(ctx)
	if err != nil {
		metrics.RecordOpen(label, false)
		return nil, err
	}
	if !text {
		metrics.RecordOpen(label, true)
		return stream, nil
	}

	name := o.encoding
	if name == "" {
		name = stream.Encoding()
	}
	r, err := decodeText(stream, name, o.errors, o.newline)
	if err != nil {
		stream.Close()
		metrics.RecordOpen(label, false)
		return nil, err
	}
	metrics.RecordOpen(label, true)
	return r, nil
}

// OpenStream opens the raw content stream of the file at p.
func (p *Path) OpenStream(ctx context.Context) (remote.Stream, error) {
	info, err := p.Info(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := info.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(p)
	}
	ok, err = info.IsFile(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notAFile(p)
	}

	stream, err := p.client.store.Download(ctx, info.Node())
	if remote.IsNotFound(err) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	return &countingStream{Stream: stream}, nil
}

// ReadFile reads the whole file at p as bytes.
func (p *Path) ReadFile(ctx context.Context) ([]byte, error) {
	r, err := p.Open(ctx, "rb")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func parseMode(mode string) (text bool, err error) {
	if mode == "" {
		mode = "r"
	}
	if strings.ContainsAny(mode, "wax+") {
		return false, fmt.Errorf("%w %q: only reading is supported", ErrInvalidMode, mode)
	}
	if strings.Count(mode, "r") != 1 || strings.Trim(mode, "rbt") != "" {
		return false, fmt.Errorf("%w %q", ErrInvalidMode, mode)
	}
	binary := strings.Contains(mode, "b")
	if binary && strings.Contains(mode, "t") {
		return false, fmt.Errorf("%w %q: binary and text together", ErrInvalidMode, mode)
	}
	return !binary, nil
}

func decodeText(rc io.ReadCloser, name, policy string, newline *string) (io.ReadCloser, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)

	var chain []transform.Transformer
	switch policy {
	case ErrorsStrict:
		if canonical == "utf-8" {
			chain = append(chain, encoding.UTF8Validator)
		} else {
			// Single-byte and legacy multi-byte decoders substitute
			// U+FFFD rather than fail.
			chain = append(chain, enc.NewDecoder())
		}
	case ErrorsReplace:
		chain = append(chain, enc.NewDecoder())
	case ErrorsIgnore:
		if canonical == "utf-8" {
			chain = append(chain, dropIllFormed{})
		} else {
			// Legacy decoders report bad input as U+FFFD, so a U+FFFD
			// present in the source is dropped as well.
			chain = append(chain, enc.NewDecoder(), runes.Remove(runes.Predicate(func(r rune) bool {
				return r == utf8.RuneError
			})))
		}
	default:
		return nil, fmt.Errorf("unknown error policy %q", policy)
	}

	if newline == nil {
		chain = append(chain, universalNewlines{})
	} else {
		switch *newline {
		case "", "\n", "\r", "\r\n":
		default:
			return nil, fmt.Errorf("illegal newline value %q", *newline)
		}
	}

	return &textReader{
		Reader: transform.NewReader(rc, transform.Chain(chain...)),
		Closer: rc,
	}, nil
}

type textReader struct {
	io.Reader
	io.Closer
}

// universalNewlines rewrites "\r\n" and lone "\r" to "\n".
type universalNewlines struct {
	transform.NopResetter
}

func (universalNewlines) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == '\r' {
			if nSrc+1 == len(src) && !atEOF {
				return nDst, nSrc, transform.ErrShortSrc
			}
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = '\n'
			nDst++
			nSrc++
			if nSrc < len(src) && src[nSrc] == '\n' {
				nSrc++
			}
			continue
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// dropIllFormed removes bytes that are not part of a valid UTF-8 sequence.
type dropIllFormed struct {
	transform.NopResetter
}

func (dropIllFormed) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		size := 1
		if src[nSrc] >= utf8.RuneSelf {
			var r rune
			r, size = utf8.DecodeRune(src[nSrc:])
			if r == utf8.RuneError && size <= 1 {
				if !atEOF && !utf8.FullRune(src[nSrc:]) {
					return nDst, nSrc, transform.ErrShortSrc
				}
				nSrc++
				continue
			}
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}
	return nDst, nSrc, nil
}

// countingStream reports bytes read to metrics.
type countingStream struct {
	remote.Stream
}

func (s *countingStream) Read(p []byte) (int, error) {
	n, err := s.Stream.Read(p)
	if n > 0 {
		metrics.RecordDownload(int64(n))
	}
	return n, err
}
