// gofilefs - browse and mount a remote content store
//
// Commands:
//   - ls     list a folder (one entry per name, latest upload wins)
//   - stat   show metadata of a path
//   - cat    print a file, decoding text unless -b is given
//   - tree   walk a subtree
//   - mount  mount the store read-only with FUSE
//
// Configuration comes from the environment and an optional .env file; see
// internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/config"
	"github.com/fruitsalade/gofilefs/internal/logging"
)

const usage = `usage: gofilefs [-env file] <command> [arguments]

commands:
  ls [-l] [path]                         list a folder
  stat <path>                            show metadata
  cat [-b] [-encoding e] [-errors p] <path>  print a file
  tree [path]                            walk a subtree
  mount [-debug] [-clear-cache] <mountpoint>  mount read-only with FUSE
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	logging.Sync()
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "gofilefs: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("gofilefs", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := global.String("env", ".env", "Optional .env file with configuration")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	ctx = logging.NewContext(ctx, logging.L().With(zap.String("command", cmd)))
	app := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	switch cmd {
	case "ls":
		return app.ls(ctx, cmdArgs)
	case "stat":
		return app.stat(ctx, cmdArgs)
	case "cat":
		return app.cat(ctx, cmdArgs)
	case "tree":
		return app.tree(ctx, cmdArgs)
	case "mount":
		return app.mount(ctx, cmdArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
