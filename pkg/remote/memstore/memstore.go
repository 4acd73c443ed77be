// Package memstore provides an in-memory remote store.
//
// It keeps an authoritative tree that tests (and the demo backend) mutate
// directly, and counts every Reload so callers can observe cache behaviour.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

// RootID is the ID of the root folder.
const RootID = "root"

type entry struct {
	meta     models.ContentNode
	parent   string
	children []string
	content  []byte
	encoding string
}

// Store is an in-memory remote.Store. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	reloads   map[string]int
	downloads map[string]int
	failures  map[string]error
}

var _ remote.Store = (*Store)(nil)

// New returns a store holding an empty root folder.
func New() *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		reloads:   make(map[string]int),
		downloads: make(map[string]int),
		failures:  make(map[string]error),
	}
	s.entries[RootID] = &entry{meta: *models.NewFolder(RootID, "", time.Unix(0, 0).UTC())}
	return s
}

// AddFolder creates a folder under parentID.
func (s *Store) AddFolder(parentID, id, name string, created time.Time) {
	s.add(parentID, &entry{meta: *models.NewFolder(id, name, created)})
}

// AddFile creates a file under parentID.
func (s *Store) AddFile(parentID, id, name string, created time.Time, content []byte) {
	meta := models.NewFile(id, name, created, int64(len(content)))
	meta.ModTime = created
	s.add(parentID, &entry{meta: *meta, content: content})
}

func (s *Store) add(parentID string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.entries[parentID]
	if !ok || parent.meta.Kind != models.KindFolder {
		panic(fmt.Sprintf("memstore: parent %q is not a folder", parentID))
	}
	if _, exists := s.entries[e.meta.ID]; exists {
		panic(fmt.Sprintf("memstore: duplicate id %q", e.meta.ID))
	}
	e.parent = parentID
	s.entries[e.meta.ID] = e
	parent.children = append(parent.children, e.meta.ID)
}

// SetEncoding sets the text encoding reported for a file's stream.
func (s *Store) SetEncoding(id, encoding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.encoding = encoding
	}
}

// Rename changes the remote name of a node.
func (s *Store) Rename(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.meta.Name = name
	}
}

// Remove deletes a node and its descendants.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if parent, ok := s.entries[e.parent]; ok {
		for i, childID := range parent.children {
			if childID == id {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	}
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	for _, childID := range e.children {
		s.removeLocked(childID)
	}
	delete(s.entries, id)
}

// FailReload makes every Reload of id fail with err until cleared with nil.
func (s *Store) FailReload(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, id)
		return
	}
	s.failures[id] = err
}

// Reloads returns how many times id was reloaded.
func (s *Store) Reloads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads[id]
}

// TotalReloads returns the number of Reload calls across all nodes.
func (s *Store) TotalReloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.reloads {
		total += n
	}
	return total
}

// Downloads returns how many times the content of id was opened.
func (s *Store) Downloads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[id]
}

// Root implements remote.Store.
func (s *Store) Root(ctx context.Context) (*models.ContentNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	root := s.entries[RootID].meta
	return &root, nil
}

// Reload implements remote.Store.
func (s *Store) Reload(ctx context.Context, node *models.ContentNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloads[node.ID]++
	if err, ok := s.failures[node.ID]; ok {
		return err
	}
	e, ok := s.entries[node.ID]
	if !ok {
		return fmt.Errorf("reload %s: %w", node.ID, remote.ErrContentNotFound)
	}

	node.CopyMetadata(&e.meta)
	if node.IsFolder() {
		fresh := make([]*models.ContentNode, 0, len(e.children))
		for _, childID := range e.children {
			meta := s.entries[childID].meta
			fresh = append(fresh, &meta)
		}
		node.MergeChildren(fresh)
	}
	return nil
}

// Download implements remote.Store.
func (s *Store) Download(ctx context.Context, node *models.ContentNode) (remote.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[node.ID]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", node.ID, remote.ErrContentNotFound)
	}
	if e.meta.Kind != models.KindFile {
		return nil, fmt.Errorf("download %s: not a file", node.ID)
	}
	s.downloads[node.ID]++
	data := bytes.Clone(e.content)
	return remote.NewStream(io.NopCloser(bytes.NewReader(data)), e.encoding), nil
}
