package vfs

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
)

// The remote store allows several children of one folder to share a name.
// Only the one with the latest creation time is visible; ties go to the
// entry that sorts last (a file over a folder). This is a local policy, not
// something the store guarantees.

// compareRaw orders folders before files, then by name, then oldest first.
func compareRaw(a, b *models.ContentNode) int {
	return cmp.Or(
		cmp.Compare(a.Kind, b.Kind),
		strings.Compare(a.Name, b.Name),
		a.CreatedAt.Compare(b.CreatedAt),
	)
}

// compareVisible orders folders before files, then by name.
func compareVisible(a, b *models.ContentNode) int {
	return cmp.Or(
		cmp.Compare(a.Kind, b.Kind),
		strings.Compare(a.Name, b.Name),
	)
}

// SortedChildren returns a copy of the folder's raw children in canonical
// order. Duplicates are kept.
func SortedChildren(folder *models.ContentNode) []*models.ContentNode {
	if !folder.IsFolder() {
		return nil
	}
	children := slices.Clone(folder.Children)
	slices.SortStableFunc(children, compareRaw)
	return children
}

// VisibleChildren returns one child per distinct name, folders first and
// then by name.
func VisibleChildren(folder *models.ContentNode) []*models.ContentNode {
	raw := SortedChildren(folder)
	winners := make(map[string]*models.ContentNode, len(raw))
	for _, child := range raw {
		if cur, ok := winners[child.Name]; !ok || !child.CreatedAt.Before(cur.CreatedAt) {
			winners[child.Name] = child
		}
	}
	metrics.RecordHiddenDuplicates(len(raw) - len(winners))

	visible := make([]*models.ContentNode, 0, len(winners))
	for _, child := range winners {
		visible = append(visible, child)
	}
	slices.SortFunc(visible, compareVisible)
	return visible
}

// LatestNamed returns the visible child called name, or nil.
func LatestNamed(folder *models.ContentNode, name string) *models.ContentNode {
	var found *models.ContentNode
	for _, child := range SortedChildren(folder) {
		if child.Name != name {
			continue
		}
		if found == nil || !child.CreatedAt.Before(found.CreatedAt) {
			found = child
		}
	}
	return found
}

// Content refreshes folder if stale and returns its visible child called
// name, or nil. Pass the result of RootFolder to look up in the root.
func (c *Client) Content(ctx context.Context, folder *models.ContentNode, name string) (*models.ContentNode, error) {
	folder, err := c.EnsureUpdated(ctx, folder)
	if err != nil {
		return nil, err
	}
	return LatestNamed(folder, name), nil
}

// Children refreshes folder if stale and returns its visible children. A
// folder deleted remotely lists as empty.
func (c *Client) Children(ctx context.Context, folder *models.ContentNode) ([]*models.ContentNode, error) {
	folder, err := c.EnsureUpdated(ctx, folder)
	if err != nil {
		return nil, err
	}
	return VisibleChildren(folder), nil
}
