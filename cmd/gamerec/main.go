// Command gamerec prepares game catalogs and serves hybrid recommendations.
//
// Usage:
//
//	gamerec [--config FILE] <command> [flags]
//
// Commands:
//
//	prepare    build a snapshot from a catalog CSV
//	serve      serve the HTTP API
//	mcp        serve the MCP tools on stdio
//	evaluate   measure genre precision for a query set
//	snapshots  list stored snapshots
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/krishseta/game-recommender/internal/config"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("gamerec\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	global := flag.NewFlagSet("gamerec", flag.ExitOnError)
	configPath := global.String("config", "", "path to a YAML config file")
	global.Usage = func() { usage(global) }
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		usage(global)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gamerec: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to command output and the MCP protocol.
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, args[0], args[1:]); err != nil {
		stop()
		if errors.Is(err, errUsage) {
			usage(global)
			os.Exit(2)
		}
		logging.Error().Err(err).Str("command", args[0]).Msg("command failed")
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: gamerec [--config FILE] <command> [flags]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  prepare    build a snapshot from a catalog CSV\n")
	fmt.Fprintf(out, "  serve      serve the HTTP API\n")
	fmt.Fprintf(out, "  mcp        serve the MCP tools on stdio\n")
	fmt.Fprintf(out, "  evaluate   measure genre precision for a query set\n")
	fmt.Fprintf(out, "  snapshots  list stored snapshots\n\n")
	fmt.Fprintf(out, "Global flags:\n")
	fs.PrintDefaults()
}
