package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/drivehealth/internal/analysis"
	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/render"
	"github.com/nuclearlighters/drivehealth/internal/thresholds"
)

func runAnalyze(ctx context.Context, cfg *config.Settings, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		tf       targetFlags
		jsonOut  bool
		detailed bool
	)
	bindTargetFlags(fs, cfg, &tf)
	fs.BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	fs.BoolVar(&detailed, "detailed", false, "One wide row per drive instead of the compact table")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: drivehealth analyze [flags] [dir]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("analyze takes at most one directory, got %d", fs.NArg())
	}
	dir := cfg.SmartDir
	if fs.NArg() == 1 {
		dir = fs.Arg(0)
	}
	if tf.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := log.Logger

	t, err := openTarget(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer t.close()

	src, err := newSource(t, tf.remote, dir)
	if err != nil {
		return err
	}
	deviceMap, err := loadDeviceMap(ctx, cfg, t, logger)
	if err != nil {
		return err
	}

	report, err := analysis.Run(ctx, src, analysis.Options{
		DeviceMap: deviceMap,
		Resolver:  thresholds.NewResolver(t.exec, cfg.CommandTimeout, logger),
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(report.Health, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}
	return render.System(stdout, report.Health, detailed)
}
