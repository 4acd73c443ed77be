package vfs

import (
	"context"
	"iter"
	"path"
	"strings"
	"sync"
)

const (
	separator  = "/"
	currentDir = "."
)

// Path is an immutable slash-separated path bound to a Client. Its
// normalized form is computed on first use and kept.
type Path struct {
	client   *Client
	segments []string

	once       sync.Once
	normalized string
}

// WithSegments returns a new path on the same client.
func (p *Path) WithSegments(segments ...string) *Path {
	return p.client.Path(segments...)
}

// Join returns p with names appended. A name starting with "/" restarts
// from the root.
func (p *Path) Join(names ...string) *Path {
	return p.WithSegments(append([]string{p.String()}, names...)...)
}

// Client returns the client p is bound to.
func (p *Path) Client() *Client {
	return p.client
}

// String returns the normalized path: the root marker, if any, followed by
// the non-empty, non-"." segments. An empty path normalizes to ".".
func (p *Path) String() string {
	p.once.Do(func() {
		p.normalized = normalize(joinSegments(p.segments))
	})
	return p.normalized
}

// IsAbs reports whether the path starts at the root.
func (p *Path) IsAbs() bool {
	return strings.HasPrefix(p.String(), separator)
}

// Name returns the final segment, or "" for the root and ".".
func (p *Path) Name() string {
	s := p.String()
	if s == currentDir {
		return ""
	}
	return s[strings.LastIndex(s, separator)+1:]
}

// Parent returns the path without its final segment.
func (p *Path) Parent() *Path {
	s := p.String()
	idx := strings.LastIndex(s, separator)
	switch {
	case idx < 0:
		return p.WithSegments(currentDir)
	case idx == 0:
		return p.WithSegments(separator)
	default:
		return p.WithSegments(s[:idx])
	}
}

// Absolute returns the path rooted at "/" with ".." segments folded
// lexically. Absolute is idempotent.
func (p *Path) Absolute() *Path {
	return p.WithSegments(path.Clean(separator + p.String()))
}

// Info resolves the absolute form of p from the client's root.
func (p *Path) Info(ctx context.Context) (*Info, error) {
	return p.client.Resolve(ctx, p.client.root, p.Absolute().String())
}

// Exists reports whether p resolves to a node.
func (p *Path) Exists(ctx context.Context) (bool, error) {
	info, err := p.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.Exists(ctx)
}

// IsDir reports whether p resolves to a folder.
func (p *Path) IsDir(ctx context.Context) (bool, error) {
	info, err := p.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.IsDir(ctx)
}

// IsFile reports whether p resolves to a file.
func (p *Path) IsFile(ctx context.Context) (bool, error) {
	info, err := p.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.IsFile(ctx)
}

// IsSymlink is always false.
func (p *Path) IsSymlink(ctx context.Context) (bool, error) {
	return false, nil
}

// Children lists the visible children of the folder at p. The returned
// sequence yields a fresh child path per name each time it is ranged over.
func (p *Path) Children(ctx context.Context) (iter.Seq[*Path], error) {
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
	ok, err = info.IsDir(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notADirectory(p)
	}

	names, err := info.ChildrenNames(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(*Path) bool) {
		for _, name := range names {
			if !yield(p.Join(name)) {
				return
			}
		}
	}, nil
}

// Readlink always fails: the remote store has no symbolic links.
func (p *Path) Readlink(ctx context.Context) (*Path, error) {
	return nil, unsupported(p, "readlink")
}

// joinSegments joins segments with "/"; a segment starting with "/"
// discards everything before it.
func joinSegments(segments []string) string {
	var b strings.Builder
	for _, seg := range segments {
		switch {
		case strings.HasPrefix(seg, separator):
			b.Reset()
			b.WriteString(seg)
		case b.Len() == 0 || strings.HasSuffix(b.String(), separator):
			b.WriteString(seg)
		default:
			b.WriteString(separator)
			b.WriteString(seg)
		}
	}
	return b.String()
}

func normalize(joined string) string {
	if joined == "" {
		return currentDir
	}
	root := ""
	rel := joined
	if strings.HasPrefix(joined, separator) {
		root = separator
		rel = strings.TrimLeft(joined, separator)
	}

	parts := strings.Split(rel, separator)
	kept := parts[:0]
	for _, part := range parts {
		if part != "" && part != currentDir {
			kept = append(kept, part)
		}
	}

	if s := root + strings.Join(kept, separator); s != "" {
		return s
	}
	return currentDir
}
