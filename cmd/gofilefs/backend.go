package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fruitsalade/gofilefs/internal/config"
	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/pkg/remote"
	"github.com/fruitsalade/gofilefs/pkg/remote/gofile"
	"github.com/fruitsalade/gofilefs/pkg/remote/memstore"
	"github.com/fruitsalade/gofilefs/pkg/remote/pgstore"
	"github.com/fruitsalade/gofilefs/pkg/remote/s3store"
)

// openStore builds the remote store selected by cfg.Backend. The returned
// cleanup must be called once the store is no longer used.
func openStore(ctx context.Context, cfg *config.Config) (remote.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendGofile:
		return gofile.New(gofile.Config{
			BaseURL: cfg.GofileAPIURL,
			Token:   cfg.GofileToken,
			RootID:  cfg.RootID,
		}), noop, nil

	case config.BackendS3:
		store, err := s3store.New(ctx, s3Config(cfg, cfg.RootID))
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case config.BackendPostgres:
		blobs, err := s3store.New(ctx, s3Config(cfg, ""))
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.New(ctx, cfg.DatabaseURL, blobs, cfg.RootID)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case config.BackendDemo:
		logging.Info("using in-memory demo store")
		return demoStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func s3Config(cfg *config.Config, prefix string) s3store.Config {
	return s3store.Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		Prefix:    prefix,
	}
}

// demoStore returns a small tree that shows the duplicate-name handling:
// two uploads of report.txt and a folder and file both called "photos".
func demoStore() *memstore.Store {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := memstore.New()
	s.AddFolder(memstore.RootID, "d-docs", "docs", t0)
	s.AddFile("d-docs", "f-report-1", "report.txt", t0.Add(time.Hour), []byte("first draft\n"))
	s.AddFile("d-docs", "f-report-2", "report.txt", t0.Add(2*time.Hour), []byte("final version\r\nsigned off\r\n"))
	s.AddFile("d-docs", "f-latin1", "café.txt", t0.Add(3*time.Hour), []byte("caf\xe9 cr\xe8me\n"))
	s.SetEncoding("f-latin1", "iso-8859-1")
	s.AddFolder(memstore.RootID, "d-photos", "photos", t0)
	s.AddFile("d-photos", "f-cat", "cat.jpg", t0, []byte{0xff, 0xd8, 0xff, 0xe0})
	s.AddFile(memstore.RootID, "f-photos", "photos", t0.Add(time.Minute), []byte("photos moved to docs\n"))
	s.AddFile(memstore.RootID, "f-readme", "README.md", t0, []byte("# demo\n"))
	return s
}
