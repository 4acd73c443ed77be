// Package fusefs mounts a remote tree read-only with FUSE.
package fusefs

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/pkg/cache"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
	"github.com/fruitsalade/gofilefs/pkg/vfs"
)

const xattrPrefix = "user.gofilefs."

// Stats holds filesystem statistics.
type Stats struct {
	Lookups        atomic.Int64
	Listings       atomic.Int64
	Opens          atomic.Int64
	FailedFetches  atomic.Int64
	BytesFromCache atomic.Int64
}

// FS is a read-only FUSE view of a vfs.Client.
type FS struct {
	client *vfs.Client
	cache  *cache.Cache
	log    *zap.Logger

	// mu serializes access to the client's node tree, which is not safe
	// for concurrent use. Content downloads run outside it.
	mu sync.Mutex

	stats Stats
}

// New builds a filesystem over client that stores opened files in c.
func New(client *vfs.Client, c *cache.Cache) *FS {
	return &FS{client: client, cache: c, log: logging.Named("fuse")}
}

// Root returns the root inode embedder.
func (f *FS) Root() *Node {
	return &Node{fsys: f, path: f.client.Path("/")}
}

// Mount mounts the filesystem at the given path.
func (f *FS) Mount(mountPoint string, debug bool) (*gofuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	ttl := f.client.TTL()
	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName: "gofilefs",
			Name:   "gofilefs",
			Debug:  debug,
		},
		EntryTimeout: &ttl,
		AttrTimeout:  &ttl,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
	}

	server, err := fs.Mount(mountPoint, f.Root(), opts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	size, maxSize, count := f.cache.Stats()
	f.log.Info("mounted",
		zap.String("mountpoint", mountPoint),
		zap.Duration("ttl", ttl),
		zap.Int("cached_files", count),
		zap.String("cache_used", humanize.Bytes(uint64(size))),
		zap.String("cache_max", humanize.Bytes(uint64(maxSize))))
	return server, nil
}

// GetStats returns filesystem statistics.
func (f *FS) GetStats() *Stats {
	return &f.stats
}

// resolve returns the node at p, or a PathError wrapping vfs.ErrNotFound.
// Must be called with mu held.
func (f *FS) resolve(ctx context.Context, p *vfs.Path) (*models.ContentNode, error) {
	info, err := p.Info(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := info.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &vfs.PathError{Msg: "No such path", Path: p.String(), Err: vfs.ErrNotFound}
	}
	return info.Node(), nil
}

// errnoFor maps vfs and store errors to FUSE status codes.
func errnoFor(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound), remote.IsNotFound(err):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrNotAFile):
		return syscall.EISDIR
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	case errors.Is(err, errors.ErrUnsupported):
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}

// inodeFor derives a stable inode number from a content ID.
func inodeFor(id string) uint64 {
	h := fnv.New64a()
	io.WriteString(h, id)
	ino := h.Sum64()
	if ino <= 1 {
		ino += 2
	}
	return ino
}

func modeFor(n *models.ContentNode) uint32 {
	if n.IsFolder() {
		return syscall.S_IFDIR | 0o555
	}
	return syscall.S_IFREG | 0o444
}

func fillAttr(n *models.ContentNode, out *gofuse.Attr) {
	out.Ino = inodeFor(n.ID)
	out.Mode = modeFor(n)
	out.Nlink = 1
	if n.IsFile() {
		out.Size = uint64(n.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	mtime := n.ModTime
	if mtime.IsZero() {
		mtime = n.CreatedAt
	}
	ctime := n.CreatedAt
	out.SetTimes(&mtime, &mtime, &ctime)
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

// fetch downloads a snapshot of node into the cache and returns its key and
// local path.
func (f *FS) fetch(ctx context.Context, node models.ContentNode) (string, string, error) {
	key := cache.Key(&node)
	start := time.Now()
	localPath, err := f.cache.Fetch(ctx, key, func(ctx context.Context) (io.ReadCloser, error) {
		return f.client.Store().Download(ctx, &node)
	})
	if err != nil {
		return "", "", err
	}
	f.log.Debug("content ready",
		zap.String("id", node.ID),
		zap.String("size", humanize.Bytes(uint64(node.Size))),
		zap.Duration("duration", time.Since(start)))
	return key, localPath, nil
}
