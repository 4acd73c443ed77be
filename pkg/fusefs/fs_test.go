package fusefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/pkg/cache"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
	"github.com/fruitsalade/gofilefs/pkg/remote/memstore"
	"github.com/fruitsalade/gofilefs/pkg/vfs"
)

func newTestFS(t *testing.T) (*FS, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	created := time.Unix(1000, 0).UTC()
	store.AddFolder(memstore.RootID, "docs", "docs", created)
	store.AddFile("docs", "old", "notes.txt", created, []byte("old notes"))
	store.AddFile("docs", "new", "notes.txt", created.Add(time.Hour), []byte("new notes"))
	store.AddFolder("docs", "sub", "sub", created)

	client, err := vfs.New(context.Background(), store, vfs.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	c, err := cache.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	return New(client, c), store
}

func (f *FS) node(p string) *Node {
	return &Node{fsys: f, path: f.client.Path(p)}
}

func TestGetattr(t *testing.T) {
	fsys, _ := newTestFS(t)
	ctx := context.Background()

	var out gofuse.AttrOut
	require.Equal(t, syscall.Errno(0), fsys.Root().Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), out.Mode)

	out = gofuse.AttrOut{}
	require.Equal(t, syscall.Errno(0), fsys.node("/docs/notes.txt").Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), out.Mode)
	assert.Equal(t, uint64(len("new notes")), out.Size)
	assert.Equal(t, inodeFor("new"), out.Ino)

	assert.Equal(t, syscall.ENOENT, fsys.node("/nope").Getattr(ctx, nil, &out))
}

func TestLookupChild(t *testing.T) {
	fsys, _ := newTestFS(t)
	var out gofuse.EntryOut

	child, node, errno := fsys.node("/docs").lookupChild(context.Background(), "sub", &out)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "docs/sub", strings.TrimPrefix(child.path.String(), "/"))
	assert.True(t, node.IsFolder())

	_, _, errno = fsys.node("/docs").lookupChild(context.Background(), "missing", &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestEntries(t *testing.T) {
	fsys, _ := newTestFS(t)
	ctx := context.Background()

	entries, errno := fsys.node("/docs").entries(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	require.Len(t, entries, 2)
	assert.Equal(t, "sub", entries[0].Name)
	assert.Equal(t, uint32(syscall.S_IFDIR), entries[0].Mode)
	assert.Equal(t, "notes.txt", entries[1].Name)
	assert.Equal(t, inodeFor("new"), entries[1].Ino)

	_, errno = fsys.node("/docs/notes.txt").entries(ctx)
	assert.Equal(t, syscall.ENOTDIR, errno)
}

func TestOpenReadRelease(t *testing.T) {
	fsys, store := newTestFS(t)
	ctx := context.Background()
	n := fsys.node("/docs/notes.txt")

	fh, flags, errno := n.Open(ctx, syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(gofuse.FOPEN_KEEP_CACHE), flags)
	assert.Equal(t, 1, store.Downloads("new"))

	handle := fh.(*FileHandle)
	buf := make([]byte, 4)
	res, errno := handle.Read(ctx, buf, 4)
	require.Equal(t, syscall.Errno(0), errno)
	data, status := res.Bytes(make([]byte, 4))
	require.True(t, status.Ok())
	assert.Equal(t, "note", string(data))

	// A second open is served from the cache.
	fh2, _, errno := n.Open(ctx, syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 1, store.Downloads("new"))

	assert.Error(t, fsys.cache.Evict(handle.key), "open files are pinned")
	handle.Release(ctx)
	fh2.(*FileHandle).Release(ctx)
	assert.NoError(t, fsys.cache.Evict(handle.key))

	_, errno = handle.Read(ctx, buf, 0)
	assert.Equal(t, syscall.EBADF, errno)
}

func TestOpenErrors(t *testing.T) {
	fsys, _ := newTestFS(t)
	ctx := context.Background()

	_, _, errno := fsys.node("/docs/notes.txt").Open(ctx, syscall.O_RDWR)
	assert.Equal(t, syscall.EROFS, errno)

	_, _, errno = fsys.node("/docs").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)

	_, _, errno = fsys.node("/docs/gone").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestOpenDeletedWithinTTL(t *testing.T) {
	fsys, store := newTestFS(t)
	ctx := context.Background()
	n := fsys.node("/docs/notes.txt")

	var out gofuse.AttrOut
	require.Equal(t, syscall.Errno(0), n.Getattr(ctx, nil, &out))

	store.Remove("new")
	_, _, errno := n.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, int64(1), fsys.GetStats().FailedFetches.Load())
}

func TestXattr(t *testing.T) {
	fsys, _ := newTestFS(t)
	ctx := context.Background()
	n := fsys.node("/docs/notes.txt")

	size, errno := n.Getxattr(ctx, xattrPrefix+"id", nil)
	require.Equal(t, syscall.Errno(0), errno)
	dest := make([]byte, size)
	_, errno = n.Getxattr(ctx, xattrPrefix+"id", dest)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "new", string(dest))

	v, _ := n.xattr(ctx, xattrPrefix+"cached")
	assert.Equal(t, "false", v)
	fh, _, _ := n.Open(ctx, syscall.O_RDONLY)
	defer fh.(*FileHandle).Release(ctx)
	v, _ = n.xattr(ctx, xattrPrefix+"cached")
	assert.Equal(t, "true", v)

	_, errno = n.Getxattr(ctx, "user.other", nil)
	assert.Equal(t, syscall.ENODATA, errno)

	_, errno = n.Getxattr(ctx, xattrPrefix+"id", make([]byte, 1))
	assert.Equal(t, syscall.ERANGE, errno)

	total, errno := n.Listxattr(ctx, nil)
	require.Equal(t, syscall.Errno(0), errno)
	list := make([]byte, total)
	_, errno = n.Listxattr(ctx, list)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, xattrNames, strings.Split(strings.TrimSuffix(string(list), "\x00"), "\x00"))
}

func TestErrnoFor(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{&vfs.PathError{Err: vfs.ErrNotFound}, syscall.ENOENT},
		{fmt.Errorf("download x: %w", remote.ErrContentNotFound), syscall.ENOENT},
		{&vfs.PathError{Err: vfs.ErrNotADirectory}, syscall.ENOTDIR},
		{&vfs.PathError{Err: vfs.ErrNotAFile}, syscall.EISDIR},
		{fmt.Errorf("x: %w", context.Canceled), syscall.EINTR},
		{errors.ErrUnsupported, syscall.ENOTSUP},
		{errors.New("boom"), syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errnoFor(tt.err), "%v", tt.err)
	}
}

func TestInodeFor(t *testing.T) {
	assert.Equal(t, inodeFor("a"), inodeFor("a"))
	assert.NotEqual(t, inodeFor("a"), inodeFor("b"))
	assert.Greater(t, inodeFor(""), uint64(1))
}

func TestFillAttrTimes(t *testing.T) {
	created := time.Unix(500, 0)
	n := models.NewFolder("f", "f", created)
	var attr gofuse.Attr
	fillAttr(n, &attr)
	assert.Equal(t, uint64(500), attr.Mtime)
	assert.Equal(t, uint64(500), attr.Ctime)
	assert.Zero(t, attr.Size)
}
