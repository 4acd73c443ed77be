package vfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

// EnsureUpdated reloads node from the remote store when it was never
// refreshed or its last refresh is older than the TTL.
//
// It returns nil, nil for a nil node and for a node the store reports as
// deleted. Any other store error is returned as is.
func (c *Client) EnsureUpdated(ctx context.Context, node *models.ContentNode) (*models.ContentNode, error) {
	if node == nil {
		return nil, nil
	}
	if !node.RefreshedAt.IsZero() && !c.now().After(node.RefreshedAt.Add(c.ttl)) {
		metrics.RecordCacheHit()
		return node, nil
	}

	start := time.Now()
	err := c.store.Reload(ctx, node)
	switch {
	case err == nil:
		metrics.RecordReload("ok", time.Since(start))
	case remote.IsNotFound(err):
		metrics.RecordReload("not_found", time.Since(start))
		c.log.Debug("content gone remotely",
			zap.String("id", node.ID),
			zap.String("name", node.Name))
		return nil, nil
	default:
		metrics.RecordReload("error", time.Since(start))
		return nil, err
	}

	node.RefreshedAt = c.now()
	c.log.Debug("content reloaded",
		zap.String("id", node.ID),
		zap.String("name", node.Name),
		zap.Int("children", len(node.Children)))
	return node, nil
}
