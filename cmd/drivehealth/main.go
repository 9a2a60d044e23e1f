// Package main is the entry point for the drivehealth command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/drivehealth/internal/config"
)

func printUsage(w io.Writer) {
	fmt.Fprint(w, `drivehealth - SMART attribute log health analyzer

Usage:
  drivehealth analyze [flags] [dir]   Analyze smartd logs and print a report
  drivehealth scan [flags]            Discover serial to device mapping
  drivehealth serve [flags] [dir]     Serve analyses over HTTP, refreshing periodically
  drivehealth version                 Print version and exit

Run "drivehealth <command> -h" for the flags of a command.

Every flag has a DRIVEHEALTH_* environment variable counterpart; flags win.

Examples:
  drivehealth analyze
  drivehealth analyze -detailed /srv/smart-logs
  drivehealth analyze -remote -ssh-host root@nas01 -device-map nas01.yaml
  drivehealth analyze -json | jq '.summary'
  drivehealth scan -ssh-host nas01 -o nas01.yaml
  drivehealth serve -ssh-host nas01 -remote -auto-discover -interval 10m
`)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("drivehealth failed")
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return errors.New("no command given")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "analyze":
		return runAnalyze(ctx, cfg, args[1:], stdout)
	case "scan":
		return runScan(ctx, cfg, args[1:], stdout)
	case "serve":
		return runServe(ctx, cfg, args[1:])
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "drivehealth v%s (%s %s/%s)\n", cfg.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	printUsage(os.Stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

// setupLogging configures the global zerolog logger. Library packages get
// log.Logger passed in; only main touches the global.
func setupLogging(level, format string) {
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
