package fusefs

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/pkg/cache"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/vfs"
)

// Node is a file or folder, addressed by path and re-resolved on every
// call so remote changes show up once the TTL expires.
type Node struct {
	fs.Inode

	fsys *FS
	path *vfs.Path
}

var (
	_ fs.InodeEmbedder   = (*Node)(nil)
	_ fs.NodeGetattrer   = (*Node)(nil)
	_ fs.NodeLookuper    = (*Node)(nil)
	_ fs.NodeReaddirer   = (*Node)(nil)
	_ fs.NodeOpener      = (*Node)(nil)
	_ fs.NodeGetxattrer  = (*Node)(nil)
	_ fs.NodeListxattrer = (*Node)(nil)
)

// Getattr returns file attributes.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	n.fsys.mu.Lock()
	defer n.fsys.mu.Unlock()

	node, err := n.fsys.resolve(ctx, n.path)
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(node, &out.Attr)
	out.SetTimeout(n.fsys.client.TTL())
	return 0
}

// lookupChild resolves a child by name and fills out.
func (n *Node) lookupChild(ctx context.Context, name string, out *gofuse.EntryOut) (*Node, *models.ContentNode, syscall.Errno) {
	n.fsys.mu.Lock()
	defer n.fsys.mu.Unlock()

	n.fsys.stats.Lookups.Add(1)
	childPath := n.path.Join(name)
	node, err := n.fsys.resolve(ctx, childPath)
	if err != nil {
		return nil, nil, errnoFor(err)
	}
	fillAttr(node, &out.Attr)
	out.SetEntryTimeout(n.fsys.client.TTL())
	out.SetAttrTimeout(n.fsys.client.TTL())
	return &Node{fsys: n.fsys, path: childPath}, node, 0
}

// Lookup finds a child by name.
func (n *Node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, node, errno := n.lookupChild(ctx, name, out)
	if errno != 0 {
		return nil, errno
	}
	stable := fs.StableAttr{Mode: modeFor(node) & syscall.S_IFMT, Ino: inodeFor(node.ID)}
	return n.NewInode(ctx, child, stable), 0
}

// entries lists the visible children, folders first.
func (n *Node) entries(ctx context.Context) ([]gofuse.DirEntry, syscall.Errno) {
	n.fsys.mu.Lock()
	defer n.fsys.mu.Unlock()

	n.fsys.stats.Listings.Add(1)
	node, err := n.fsys.resolve(ctx, n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	if !node.IsFolder() {
		return nil, syscall.ENOTDIR
	}
	children, err := n.fsys.client.Children(ctx, node)
	if err != nil {
		return nil, errnoFor(err)
	}

	entries := make([]gofuse.DirEntry, 0, len(children))
	for _, child := range children {
		entries = append(entries, gofuse.DirEntry{
			Name: child.Name,
			Mode: modeFor(child) & syscall.S_IFMT,
			Ino:  inodeFor(child.ID),
		})
	}
	return entries, 0
}

// Readdir lists directory contents.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := n.entries(ctx)
	if errno != 0 {
		return nil, errno
	}
	return fs.NewListDirStream(entries), 0
}

// Open downloads the file into the local cache and serves reads from there.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}

	n.fsys.mu.Lock()
	node, err := n.fsys.resolve(ctx, n.path)
	var snapshot models.ContentNode
	if err == nil {
		if !node.IsFile() {
			err = &vfs.PathError{Msg: "Not a file", Path: n.path.String(), Err: vfs.ErrNotAFile}
		} else {
			snapshot = *node
			snapshot.Children = nil
		}
	}
	n.fsys.mu.Unlock()
	if err != nil {
		return nil, 0, errnoFor(err)
	}

	key, localPath, err := n.fsys.fetch(ctx, snapshot)
	if err != nil {
		n.fsys.stats.FailedFetches.Add(1)
		n.fsys.log.Error("fetch failed", zap.String("path", n.path.String()), zap.Error(err))
		return nil, 0, errnoFor(err)
	}
	if err := n.fsys.cache.Pin(key); err != nil {
		return nil, 0, syscall.EIO
	}
	f, err := os.Open(localPath)
	if err != nil {
		n.fsys.cache.Unpin(key)
		return nil, 0, syscall.EIO
	}

	n.fsys.stats.Opens.Add(1)
	return &FileHandle{fsys: n.fsys, file: f, key: key}, gofuse.FOPEN_KEEP_CACHE, 0
}

// xattr returns the value of one of the gofilefs extended attributes.
func (n *Node) xattr(ctx context.Context, attr string) (string, syscall.Errno) {
	n.fsys.mu.Lock()
	node, err := n.fsys.resolve(ctx, n.path)
	n.fsys.mu.Unlock()
	if err != nil {
		return "", errnoFor(err)
	}

	switch attr {
	case xattrPrefix + "id":
		return node.ID, 0
	case xattrPrefix + "kind":
		return node.Kind.String(), 0
	case xattrPrefix + "created":
		return strconv.FormatInt(node.CreatedAt.Unix(), 10), 0
	case xattrPrefix + "hash":
		return node.Hash, 0
	case xattrPrefix + "cached":
		if !node.IsFile() {
			return "false", 0
		}
		_, ok := n.fsys.cache.Get(cache.Key(node))
		return strconv.FormatBool(ok), 0
	default:
		return "", syscall.ENODATA
	}
}

var xattrNames = []string{
	xattrPrefix + "id",
	xattrPrefix + "kind",
	xattrPrefix + "created",
	xattrPrefix + "hash",
	xattrPrefix + "cached",
}

// Getxattr returns extended attribute value.
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, errno := n.xattr(ctx, attr)
	if errno != 0 {
		return 0, errno
	}
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return 0, syscall.ERANGE
	}
	copy(dest, value)
	return uint32(len(value)), 0
}

// Listxattr lists extended attributes.
func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	var total int
	for _, attr := range xattrNames {
		total += len(attr) + 1
	}
	if len(dest) == 0 {
		return uint32(total), 0
	}
	if len(dest) < total {
		return 0, syscall.ERANGE
	}

	offset := 0
	for _, attr := range xattrNames {
		copy(dest[offset:], attr)
		offset += len(attr)
		dest[offset] = 0
		offset++
	}
	return uint32(total), 0
}

// FileHandle reads an opened file from its cached copy.
type FileHandle struct {
	fsys *FS
	key  string

	mu   sync.Mutex
	file *os.File
}

var (
	_ fs.FileReader   = (*FileHandle)(nil)
	_ fs.FileReleaser = (*FileHandle)(nil)
)

// Read reads file content.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if fh.file == nil {
		return nil, syscall.EBADF
	}
	n, err := fh.file.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	fh.fsys.stats.BytesFromCache.Add(int64(n))
	return gofuse.ReadResultData(dest[:n]), 0
}

// Release closes the cached copy and lets it be evicted again.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if fh.file != nil {
		fh.file.Close()
		fh.file = nil
		fh.fsys.cache.Unpin(fh.key)
	}
	return 0
}
