// Package cache keeps downloaded file content on local disk.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
)

const tempSuffix = ".tmp"

// Entry is one cached file.
type Entry struct {
	Key        string
	LocalPath  string
	Size       int64
	LastAccess time.Time

	// pins counts open readers; pinned entries are never evicted.
	pins int
}

// Pinned reports whether the entry is protected from eviction.
func (e *Entry) Pinned() bool {
	return e.pins > 0
}

// Cache is a size-bounded LRU of local files.
type Cache struct {
	dir     string
	maxSize int64

	mu      sync.Mutex
	entries map[string]*Entry
	size    int64

	fetches singleflight.Group
	log     *zap.Logger
}

// Key identifies a version of a file's content. A node replaced under the
// same ID gets a new creation time and therefore a new key.
func Key(n *models.ContentNode) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%d", n.ID, n.CreatedAt.UnixNano(), n.Size))
	return hex.EncodeToString(sum[:])
}

// New creates the cache directory and indexes files already in it.
func New(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*Entry),
		log:     logging.Named("cache"),
	}
	if err := c.scan(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) scan() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		p := filepath.Join(c.dir, de.Name())
		if strings.HasSuffix(de.Name(), tempSuffix) {
			os.Remove(p)
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		c.entries[de.Name()] = &Entry{
			Key:        de.Name(),
			LocalPath:  p,
			Size:       fi.Size(),
			LastAccess: fi.ModTime(),
		}
		c.size += fi.Size()
	}
	metrics.SetContentCacheSize(c.size)
	if len(c.entries) > 0 {
		c.log.Info("cache indexed",
			zap.Int("files", len(c.entries)),
			zap.String("size", humanize.Bytes(uint64(c.size))))
	}
	return nil
}

// Get returns the local path if key is cached.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	metrics.RecordContentCacheLookup(ok)
	if !ok {
		return "", false
	}
	entry.LastAccess = time.Now()
	return entry.LocalPath, true
}

// Put stores r under key, evicting least recently used entries to make room.
// Content is written atomically (temp file then rename).
func (c *Cache) Put(key string, r io.Reader) (string, error) {
	localPath := filepath.Join(c.dir, key)
	f, err := os.CreateTemp(c.dir, key+"-*"+tempSuffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()

	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write content: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.size -= old.Size
		delete(c.entries, key)
	}
	c.makeRoom(written)

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	c.entries[key] = &Entry{
		Key:        key,
		LocalPath:  localPath,
		Size:       written,
		LastAccess: time.Now(),
	}
	c.size += written
	metrics.SetContentCacheSize(c.size)
	return localPath, nil
}

// Fetch returns the local path of key, downloading it with open on a miss.
// Concurrent misses for the same key share one download.
func (c *Cache) Fetch(ctx context.Context, key string, open func(ctx context.Context) (io.ReadCloser, error)) (string, error) {
	if p, ok := c.Get(key); ok {
		return p, nil
	}
	v, err, _ := c.fetches.Do(key, func() (any, error) {
		rc, err := open(ctx)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return c.Put(key, rc)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// makeRoom evicts unpinned entries, oldest access first, until incoming
// bytes fit. Must be called with lock held.
func (c *Cache) makeRoom(incoming int64) {
	for c.size+incoming > c.maxSize {
		var oldest *Entry
		for _, entry := range c.entries {
			if entry.Pinned() {
				continue
			}
			if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
				oldest = entry
			}
		}
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
		c.log.Debug("evicted",
			zap.String("key", oldest.Key),
			zap.String("size", humanize.Bytes(uint64(oldest.Size))))
	}
}

func (c *Cache) removeLocked(e *Entry) {
	os.Remove(e.LocalPath)
	c.size -= e.Size
	delete(c.entries, e.Key)
	metrics.SetContentCacheSize(c.size)
}

// Evict removes key from the cache.
func (c *Cache) Evict(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if entry.Pinned() {
		return fmt.Errorf("cannot evict pinned file: %s", key)
	}
	c.removeLocked(entry)
	return nil
}

// Pin protects key from eviction until a matching Unpin.
func (c *Cache) Pin(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("file not cached: %s", key)
	}
	entry.pins++
	return nil
}

// Unpin releases one Pin.
func (c *Cache) Unpin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.pins > 0 {
		entry.pins--
	}
}

// Stats returns cache statistics.
func (c *Cache) Stats() (size, maxSize int64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, c.maxSize, len(c.entries)
}

// Clear removes all unpinned files and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, entry := range c.entries {
		if entry.Pinned() {
			continue
		}
		c.removeLocked(entry)
		count++
	}
	return count
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}
