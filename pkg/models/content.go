// Package models contains the data types shared by the remote stores and the
// virtual filesystem.
package models

import "time"

// Kind tells files and folders apart. A node's kind never changes.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// ContentNode is a remote file or folder as reported by a remote store.
//
// Nodes are created and updated in place by the store's Reload. Sibling names
// are not unique. Children is only meaningful for folders.
type ContentNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ModTime   time.Time `json:"mtime,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`

	// Link is the store-specific locator used to download file content
	// (a URL, an object key, ...).
	Link string `json:"link,omitempty"`

	Children []*ContentNode `json:"children,omitempty"`

	// RefreshedAt is local bookkeeping: when the node was last reloaded
	// successfully. The zero value means never.
	RefreshedAt time.Time `json:"-"`
}

// NewFolder returns a folder node with no children loaded yet.
func NewFolder(id, name string, created time.Time) *ContentNode {
	return &ContentNode{ID: id, Name: name, Kind: KindFolder, CreatedAt: created}
}

// NewFile returns a file node.
func NewFile(id, name string, created time.Time, size int64) *ContentNode {
	return &ContentNode{ID: id, Name: name, Kind: KindFile, CreatedAt: created, Size: size}
}

// IsFolder reports whether n is a non-nil folder.
func (n *ContentNode) IsFolder() bool {
	return n != nil && n.Kind == KindFolder
}

// IsFile reports whether n is a non-nil file.
func (n *ContentNode) IsFile() bool {
	return n != nil && n.Kind == KindFile
}

// ChildByID returns the direct child with the given ID, or nil.
func (n *ContentNode) ChildByID(id string) *ContentNode {
	if !n.IsFolder() {
		return nil
	}
	for _, child := range n.Children {
		if child.ID == id {
			return child
		}
	}
	return nil
}

// MergeChildren replaces n's children with fresh, reusing existing nodes that
// carry the same ID so their local refresh bookkeeping survives. Reused nodes
// take the fresh metadata but keep their own children until they are
// reloaded themselves.
func (n *ContentNode) MergeChildren(fresh []*ContentNode) {
	if !n.IsFolder() {
		return
	}
	existing := make(map[string]*ContentNode, len(n.Children))
	for _, child := range n.Children {
		existing[child.ID] = child
	}

	merged := make([]*ContentNode, 0, len(fresh))
	for _, f := range fresh {
		old, ok := existing[f.ID]
		if !ok || old.Kind != f.Kind {
			merged = append(merged, f)
			continue
		}
		old.CopyMetadata(f)
		merged = append(merged, old)
	}
	n.Children = merged
}

// CopyMetadata copies the remote metadata of src onto n. Identity, kind,
// children and local bookkeeping are left alone.
func (n *ContentNode) CopyMetadata(src *ContentNode) {
	n.Name = src.Name
	n.CreatedAt = src.CreatedAt
	n.ModTime = src.ModTime
	n.Size = src.Size
	n.Hash = src.Hash
	n.MimeType = src.MimeType
	n.Link = src.Link
}
