package vfs

import (
	"context"
	"strings"

	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
)

// Info is the result of resolving a path: either a node or missing.
//
// Queries refresh the node first, so an Info that was present can turn
// missing when the node is deleted remotely. A missing Info stays missing and
// its queries never fail. Info is not safe for concurrent use.
type Info struct {
	client *Client
	node   *models.ContentNode
}

func present(c *Client, node *models.ContentNode) *Info {
	return &Info{client: c, node: node}
}

func missing() *Info {
	return &Info{}
}

func (i *Info) refresh(ctx context.Context) error {
	if i.node == nil || i.client == nil {
		return nil
	}
	node, err := i.client.EnsureUpdated(ctx, i.node)
	if err != nil {
		return err
	}
	i.node = node
	return nil
}

// Exists reports whether the node still exists.
func (i *Info) Exists(ctx context.Context) (bool, error) {
	if err := i.refresh(ctx); err != nil {
		return false, err
	}
	return i.node != nil, nil
}

// IsDir reports whether the node exists and is a folder.
func (i *Info) IsDir(ctx context.Context) (bool, error) {
	if err := i.refresh(ctx); err != nil {
		return false, err
	}
	return i.node.IsFolder(), nil
}

// IsFile reports whether the node exists and is a file.
func (i *Info) IsFile(ctx context.Context) (bool, error) {
	if err := i.refresh(ctx); err != nil {
		return false, err
	}
	return i.node.IsFile(), nil
}

// IsSymlink is always false: the remote store has no links.
func (i *Info) IsSymlink() bool {
	return false
}

// ChildrenNames returns the visible child names of a folder, or nil for
// anything else.
func (i *Info) ChildrenNames(ctx context.Context) ([]string, error) {
	if err := i.refresh(ctx); err != nil {
		return nil, err
	}
	if !i.node.IsFolder() {
		return nil, nil
	}
	children, err := i.client.Children(ctx, i.node)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(children))
	for idx, child := range children {
		names[idx] = child.Name
	}
	return names, nil
}

// Node returns the resolved node as of the last query, or nil if missing.
func (i *Info) Node() *models.ContentNode {
	return i.node
}

// Resolve walks p from root. Empty and "." segments stay at the current
// node; every other segment refreshes the current node and descends into
// its visible child of that name. A missing step makes the whole result
// missing. Only store failures other than "not found" are returned as
// errors.
func (c *Client) Resolve(ctx context.Context, root *models.ContentNode, p string) (*Info, error) {
	node := root
	for p != "" && p != "." {
		var name string
		name, p, _ = strings.Cut(p, "/")
		if name == "" || name == "." {
			continue
		}

		updated, err := c.EnsureUpdated(ctx, node)
		if err != nil {
			metrics.RecordResolution("error")
			return nil, err
		}
		if !updated.IsFolder() {
			metrics.RecordResolution("missing")
			return missing(), nil
		}

		node = LatestNamed(updated, name)
		if node == nil {
			metrics.RecordResolution("missing")
			return missing(), nil
		}
	}
	if node == nil {
		metrics.RecordResolution("missing")
		return missing(), nil
	}
	metrics.RecordResolution("present")
	return present(c, node), nil
}
