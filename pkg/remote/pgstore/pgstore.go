// Package pgstore keeps content metadata in PostgreSQL and reads file bodies
// from a separate blob source.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

const backend = "postgres"

//go:embed schema.sql
var schema string

const selectColumns = `SELECT id, name, kind, created_at, mod_time, size, hash, mime_type, blob_key FROM contents`

// BlobSource opens file bodies by key. s3store.Store implements it.
type BlobSource interface {
	Open(ctx context.Context, key string) (remote.Stream, error)
}

// Store is a PostgreSQL-backed remote.Store.
type Store struct {
	db     *sql.DB
	blobs  BlobSource
	rootID string
}

var _ remote.Store = (*Store)(nil)

// New opens the database. An empty rootID selects the single row without a
// parent.
func New(ctx context.Context, databaseURL string, blobs BlobSource, rootID string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, blobs: blobs, rootID: rootID}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the contents table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", describe(err))
	}
	logging.Info("contents schema ready")
	return nil
}

// describe adds the SQLSTATE name to PostgreSQL errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (%s)", err, pqErr.Code.Name())
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.ContentNode, string, error) {
	var (
		n       models.ContentNode
		kind    string
		modTime sql.NullTime
		blobKey string
	)
	if err := row.Scan(&n.ID, &n.Name, &kind, &n.CreatedAt, &modTime, &n.Size, &n.Hash, &n.MimeType, &blobKey); err != nil {
		return nil, "", err
	}
	k, err := parseKind(kind)
	if err != nil {
		return nil, "", err
	}
	n.Kind = k
	n.CreatedAt = n.CreatedAt.UTC()
	if modTime.Valid {
		n.ModTime = modTime.Time.UTC()
	}
	n.Link = blobKey
	return &n, blobKey, nil
}

func parseKind(s string) (models.Kind, error) {
	switch s {
	case "folder":
		return models.KindFolder, nil
	case "file":
		return models.KindFile, nil
	default:
		return 0, fmt.Errorf("unknown content kind %q", s)
	}
}

func (s *Store) queryNode(ctx context.Context, op, query string, args ...any) (*models.ContentNode, error) {
	start := time.Now()
	n, _, err := scanNode(s.db.QueryRowContext(ctx, query, args...))
	metrics.RecordRemoteRequest(backend, op, time.Since(start), err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.ErrContentNotFound
	}
	if err != nil {
		return nil, describe(err)
	}
	return n, nil
}

// Root implements remote.Store.
func (s *Store) Root(ctx context.Context) (*models.ContentNode, error) {
	var (
		root *models.ContentNode
		err  error
	)
	if s.rootID != "" {
		root, err = s.queryNode(ctx, "root",
			selectColumns+` WHERE id = $1 AND deleted_at IS NULL`, s.rootID)
	} else {
		root, err = s.queryNode(ctx, "root",
			selectColumns+` WHERE parent_id IS NULL AND deleted_at IS NULL ORDER BY created_at LIMIT 1`)
	}
	if err != nil {
		return nil, fmt.Errorf("load root: %w", err)
	}
	return root, nil
}

// Reload implements remote.Store.
func (s *Store) Reload(ctx context.Context, node *models.ContentNode) error {
	fresh, err := s.queryNode(ctx, "reload",
		selectColumns+` WHERE id = $1 AND deleted_at IS NULL`, node.ID)
	if err != nil {
		return fmt.Errorf("reload %s: %w", node.ID, err)
	}
	node.CopyMetadata(fresh)
	if !node.IsFolder() {
		return nil
	}

	children, err := s.children(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("reload %s: %w", node.ID, err)
	}
	node.MergeChildren(children)
	logging.Debug("postgres folder loaded",
		zap.String("id", node.ID),
		zap.Int("children", len(children)))
	return nil
}

func (s *Store) children(ctx context.Context, parentID string) ([]*models.ContentNode, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE parent_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`, parentID)
	if err != nil {
		metrics.RecordRemoteRequest(backend, "children", time.Since(start), false)
		return nil, describe(err)
	}
	defer rows.Close()

	var children []*models.ContentNode
	for rows.Next() {
		n, _, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		children = append(children, n)
	}
	err = rows.Err()
	metrics.RecordRemoteRequest(backend, "children", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return children, nil
}

// Download implements remote.Store.
func (s *Store) Download(ctx context.Context, node *models.ContentNode) (remote.Stream, error) {
	if !node.IsFile() {
		return nil, fmt.Errorf("download %s: not a file", node.ID)
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("download %s: no blob source configured", node.ID)
	}
	key := node.Link
	if key == "" {
		key = node.ID
	}
	return s.blobs.Open(ctx, key)
}

// Insert adds a row under parentID ("" for the root). Only the fields the
// table stores are used.
func (s *Store) Insert(ctx context.Context, parentID string, n *models.ContentNode) error {
	var parent, modTime any
	if parentID != "" {
		parent = parentID
	}
	if !n.ModTime.IsZero() {
		modTime = n.ModTime
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (id, parent_id, name, kind, created_at, mod_time, size, hash, mime_type, blob_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, parent, n.Name, n.Kind.String(), n.CreatedAt, modTime, n.Size, n.Hash, n.MimeType, n.Link)
	if err != nil {
		return fmt.Errorf("insert %s: %w", n.ID, describe(err))
	}
	return nil
}

// Delete soft-deletes a row and its descendants.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT id FROM contents WHERE id = $1
			UNION ALL
			SELECT c.id FROM contents c JOIN subtree t ON c.parent_id = t.id
		)
		UPDATE contents SET deleted_at = now() WHERE id IN (SELECT id FROM subtree)`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, describe(err))
	}
	return nil
}
