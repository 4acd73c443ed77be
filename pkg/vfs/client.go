package vfs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

// DefaultTTL is how long node metadata is trusted before it is reloaded.
const DefaultTTL = 15 * time.Second

// Client is a filesystem client bound to one remote store. It owns the root
// folder node for its whole lifetime.
type Client struct {
	store remote.Store
	root  *models.ContentNode
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for staleness decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger used for reload and eviction events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New fetches the root folder of store and returns a client for it.
func New(ctx context.Context, store remote.Store, opts ...Option) (*Client, error) {
	c := &Client{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Named("vfs")
	}

	root, err := store.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch root folder: %w", err)
	}
	if !root.IsFolder() {
		return nil, fmt.Errorf("root %s is a %s, not a folder", root.ID, root.Kind)
	}
	c.root = root
	return c, nil
}

// Store returns the remote store the client reads from.
func (c *Client) Store() remote.Store {
	return c.store
}

// TTL returns the metadata staleness window.
func (c *Client) TTL() time.Duration {
	return c.ttl
}

// RootFolder returns the root node, refreshed if stale.
func (c *Client) RootFolder(ctx context.Context) (*models.ContentNode, error) {
	if _, err := c.EnsureUpdated(ctx, c.root); err != nil {
		return nil, err
	}
	return c.root, nil
}

// Path builds a path bound to this client.
func (c *Client) Path(segments ...string) *Path {
	return &Path{client: c, segments: segments}
}
