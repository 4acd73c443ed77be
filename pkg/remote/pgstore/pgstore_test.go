package pgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: want %d columns, got %d", len(r), len(dest))
	}
	for i, v := range r {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		case interface{ Scan(any) error }:
			if err := d.Scan(v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestScanNode(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	row := fakeRow{"f1", "a.txt", "file", created, nil, int64(42), "md5", "text/plain", "blobs/f1"}

	n, key, err := scanNode(row)
	require.NoError(t, err)
	assert.Equal(t, "blobs/f1", key)
	assert.Equal(t, "f1", n.ID)
	assert.Equal(t, models.KindFile, n.Kind)
	assert.Equal(t, time.UTC, n.CreatedAt.Location())
	assert.True(t, n.CreatedAt.Equal(created))
	assert.True(t, n.ModTime.IsZero())
	assert.Equal(t, int64(42), n.Size)
	assert.Equal(t, "blobs/f1", n.Link)

	row[2] = "symlink"
	_, _, err = scanNode(row)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	err := describe(&pq.Error{Code: "42P01", Message: `relation "contents" does not exist`})
	assert.Contains(t, err.Error(), "undefined_table")

	plain := errors.New("boom")
	assert.Same(t, plain, describe(plain))
}

type memBlobs map[string]string

func (m memBlobs) Open(_ context.Context, key string) (remote.Stream, error) {
	body, ok := m[key]
	if !ok {
		return nil, remote.ErrContentNotFound
	}
	return remote.NewStream(io.NopCloser(strings.NewReader(body)), ""), nil
}

// TestStore runs against a real database when GOFILEFS_TEST_DATABASE_URL is
// set.
func TestStore(t *testing.T) {
	dsn := os.Getenv("GOFILEFS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GOFILEFS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("t%d-", time.Now().UnixNano())
	id := func(s string) string { return prefix + s }

	blobs := memBlobs{"k-new": "new body"}
	store, err := New(ctx, dsn, blobs, id("root"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.db.Exec(`DELETE FROM contents WHERE id LIKE $1`, prefix+"%")
		store.Close()
	})
	require.NoError(t, store.Migrate(ctx))

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, "", models.NewFolder(id("root"), "", t0)))
	require.NoError(t, store.Insert(ctx, id("root"), models.NewFolder(id("dir"), "dup", t0.Add(time.Minute))))
	newer := models.NewFile(id("file"), "dup", t0.Add(time.Hour), 8)
	newer.Link = "k-new"
	require.NoError(t, store.Insert(ctx, id("root"), newer))

	root, err := store.Root(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Reload(ctx, root))
	require.Len(t, root.Children, 2, "duplicate names are stored")
	assert.Equal(t, id("dir"), root.Children[0].ID)

	stream, err := store.Download(ctx, root.ChildByID(id("file")))
	require.NoError(t, err)
	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "new body", string(body))

	dir := root.ChildByID(id("dir"))
	require.NoError(t, store.Delete(ctx, id("dir")))
	assert.ErrorIs(t, store.Reload(ctx, dir), remote.ErrContentNotFound)
}
