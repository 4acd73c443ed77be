package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/fruitsalade/gofilefs/pkg/models"
)

// FS exposes a Client as a read-only io/fs file system rooted at the
// client's root folder. Every call uses the context FS was created with.
type FS struct {
	ctx    context.Context
	client *Client
}

var (
	_ fs.FS        = (*FS)(nil)
	_ fs.StatFS    = (*FS)(nil)
	_ fs.ReadDirFS = (*FS)(nil)
)

// FS returns an io/fs view of the remote tree.
func (c *Client) FS(ctx context.Context) *FS {
	return &FS{ctx: ctx, client: c}
}

func (f *FS) resolve(op, name string) (*Path, *models.ContentNode, error) {
	if !fs.ValidPath(name) {
		return nil, nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	p := f.client.Path(separator, name)
	info, err := p.Info(f.ctx)
	if err != nil {
		return nil, nil, &fs.PathError{Op: op, Path: name, Err: err}
	}
	ok, err := info.Exists(f.ctx)
	if err != nil {
		return nil, nil, &fs.PathError{Op: op, Path: name, Err: err}
	}
	if !ok {
		return nil, nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return p, info.Node(), nil
}

// Open implements fs.FS.
func (f *FS) Open(name string) (fs.File, error) {
	p, node, err := f.resolve("open", name)
	if err != nil {
		return nil, err
	}
	fi := newFileInfo(name, node)
	if node.IsFolder() {
		return &dirFile{fs: f, node: node, info: fi}, nil
	}
	stream, err := p.OpenStream(f.ctx)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &file{ReadCloser: stream, info: fi}, nil
}

// Stat implements fs.StatFS.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	_, node, err := f.resolve("stat", name)
	if err != nil {
		return nil, err
	}
	return newFileInfo(name, node), nil
}

// ReadDir implements fs.ReadDirFS. Entries are the visible children sorted
// by name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	_, node, err := f.resolve("readdir", name)
	if err != nil {
		return nil, err
	}
	if !node.IsFolder() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotADirectory}
	}
	return f.entries(name, node)
}

func (f *FS) entries(name string, node *models.ContentNode) ([]fs.DirEntry, error) {
	children, err := f.client.Children(f.ctx, node)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries := make([]fs.DirEntry, len(children))
	for i, child := range children {
		entries[i] = fs.FileInfoToDirEntry(newFileInfo(child.Name, child))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

type fileInfo struct {
	name string
	node *models.ContentNode
}

func newFileInfo(name string, node *models.ContentNode) *fileInfo {
	if name != "." {
		name = name[strings.LastIndex(name, separator)+1:]
	}
	return &fileInfo{name: name, node: node}
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return fi.node.Size }
func (fi *fileInfo) IsDir() bool  { return fi.node.IsFolder() }
func (fi *fileInfo) Sys() any     { return fi.node }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.node.IsFolder() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (fi *fileInfo) ModTime() time.Time {
	if !fi.node.ModTime.IsZero() {
		return fi.node.ModTime
	}
	return fi.node.CreatedAt
}

type file struct {
	io.ReadCloser
	info *fileInfo
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }

type dirFile struct {
	fs      *FS
	node    *models.ContentNode
	info    *fileInfo
	entries []fs.DirEntry
	loaded  bool
	offset  int
}

func (d *dirFile) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *dirFile) Close() error               { return nil }

func (d *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: errors.New("is a directory")}
}

// ReadDir implements fs.ReadDirFile.
func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		entries, err := d.fs.entries(d.info.name, d.node)
		if err != nil {
			return nil, err
		}
		d.entries = entries
		d.loaded = true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}
