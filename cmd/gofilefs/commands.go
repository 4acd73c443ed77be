package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/config"
	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/cache"
	"github.com/fruitsalade/gofilefs/pkg/fusefs"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/vfs"
)

type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func (a *app) flags(name string) *flag.FlagSet {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(a.stderr)
	return fset
}

// client opens the configured store and returns a filesystem client over it.
func (a *app) client(ctx context.Context) (*vfs.Client, func(), error) {
	store, cleanup, err := openStore(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := vfs.New(ctx, store, vfs.WithTTL(a.cfg.CacheTTL))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func argOr(fset *flag.FlagSet, fallback string) string {
	if fset.NArg() > 0 {
		return fset.Arg(0)
	}
	return fallback
}

func (a *app) ls(ctx context.Context, args []string) error {
	fset := a.flags("ls")
	long := fset.Bool("l", false, "Show kind, size and upload time")
	if err := fset.Parse(args); err != nil {
		return err
	}
	c, cleanup, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	children, err := c.Path(argOr(fset, "/")).Children(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for child := range children {
		if !*long {
			fmt.Fprintln(tw, child.Name())
			continue
		}
		info, err := child.Info(ctx)
		if err != nil {
			return err
		}
		node := info.Node()
		if node == nil {
			continue
		}
		size := "-"
		name := child.Name()
		if node.IsFile() {
			size = humanize.Bytes(uint64(node.Size))
		} else {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", node.Kind, size, humanize.Time(node.CreatedAt), name)
	}
	return tw.Flush()
}

func (a *app) stat(ctx context.Context, args []string) error {
	fset := a.flags("stat")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("stat: expected one path")
	}
	c, cleanup, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p := c.Path(fset.Arg(0))
	info, err := p.Info(ctx)
	if err != nil {
		return err
	}
	ok, err := info.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &vfs.PathError{Msg: "No such path", Path: p.String(), Err: vfs.ErrNotFound}
	}
	printNode(a.stdout, p.Absolute().String(), info.Node())
	return nil
}

func printNode(w io.Writer, name string, n *models.ContentNode) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", name)
	fmt.Fprintf(tw, "ID:\t%s\n", n.ID)
	fmt.Fprintf(tw, "Kind:\t%s\n", n.Kind)
	fmt.Fprintf(tw, "Created:\t%s\n", n.CreatedAt.Format(time.RFC3339))
	if n.IsFile() {
		fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanize.Bytes(uint64(n.Size)), n.Size)
		if n.Hash != "" {
			fmt.Fprintf(tw, "Hash:\t%s\n", n.Hash)
		}
		if n.MimeType != "" {
			fmt.Fprintf(tw, "MIME type:\t%s\n", n.MimeType)
		}
	} else {
		fmt.Fprintf(tw, "Children:\t%d\n", len(n.Children))
	}
	tw.Flush()
}

func (a *app) cat(ctx context.Context, args []string) error {
	fset := a.flags("cat")
	binary := fset.Bool("b", false, "Copy raw bytes")
	encoding := fset.String("encoding", "", "Decode with this encoding instead of the reported one")
	errPolicy := fset.String("errors", vfs.ErrorsStrict, "Decoding error policy: strict, replace or ignore")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("cat: expected one path")
	}
	c, cleanup, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mode := "r"
	if *binary {
		mode = "rb"
	}
	opts := []vfs.OpenOption{vfs.WithErrors(*errPolicy)}
	if *encoding != "" {
		opts = append(opts, vfs.WithEncoding(*encoding))
	}
	r, err := c.Path(fset.Arg(0)).Open(ctx, mode, opts...)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(a.stdout, r)
	return err
}

func (a *app) tree(ctx context.Context, args []string) error {
	fset := a.flags("tree")
	if err := fset.Parse(args); err != nil {
		return err
	}
	c, cleanup, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	root := strings.Trim(c.Path(argOr(fset, "/")).Absolute().String(), "/")
	if root == "" {
		root = "."
	}
	var dirs, files int
	err = fs.WalkDir(c.FS(ctx), root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		depth := 0
		if p != root {
			rel := p
			if root != "." {
				rel = strings.TrimPrefix(p, root+"/")
			}
			depth = strings.Count(rel, "/") + 1
		}
		name := d.Name()
		if d.IsDir() {
			name += "/"
			if p != root {
				dirs++
			}
		} else {
			files++
		}
		fmt.Fprintf(a.stdout, "%s%s\n", strings.Repeat("  ", depth), name)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\n%d directories, %d files\n", dirs, files)
	return nil
}

func (a *app) mount(ctx context.Context, args []string) error {
	fset := a.flags("mount")
	debug := fset.Bool("debug", false, "Log every FUSE request")
	clearCache := fset.Bool("clear-cache", false, "Empty the content cache before mounting")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("mount: expected a mount point")
	}
	mountPoint := fset.Arg(0)

	c, cleanup, err := a.client(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	contentCache, err := cache.New(a.cfg.CacheDir, a.cfg.MaxCacheSize)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	if *clearCache {
		n := contentCache.Clear()
		logging.Info("content cache cleared",
			zap.String("dir", contentCache.Dir()),
			zap.Int("files", n))
	}

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		logging.Info("metrics endpoint enabled", zap.String("addr", a.cfg.MetricsAddr))
	}

	fsys := fusefs.New(c, contentCache)
	server, err := fsys.Mount(mountPoint, *debug)
	if err != nil {
		return err
	}

	logging.Info("filesystem mounted (read-only); press Ctrl+C to unmount",
		zap.String("mountpoint", mountPoint),
		zap.String("backend", a.cfg.Backend),
		zap.String("cache_dir", contentCache.Dir()))
	<-ctx.Done()

	logging.Info("unmounting")
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	stats := fsys.GetStats()
	logging.Info("done",
		zap.Int64("opens", stats.Opens.Load()),
		zap.Int64("lookups", stats.Lookups.Load()),
		zap.String("served_from_cache", humanize.Bytes(uint64(stats.BytesFromCache.Load()))))
	if failed := stats.FailedFetches.Load(); failed > 0 {
		logging.Warn("some files could not be fetched", zap.Int64("failed", failed))
	}
	return nil
}
