package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nuclearlighters/drivehealth/internal/analysis"
	"github.com/nuclearlighters/drivehealth/internal/api"
	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/metrics"
	"github.com/nuclearlighters/drivehealth/internal/monitor"
	"github.com/nuclearlighters/drivehealth/internal/thresholds"
)

func runServe(ctx context.Context, cfg *config.Settings, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var tf targetFlags
	bindTargetFlags(fs, cfg, &tf)
	fs.StringVar(&cfg.APIHost, "host", cfg.APIHost, "Listen `address`")
	fs.IntVar(&cfg.APIPort, "port", cfg.APIPort, "Listen port")
	fs.DurationVar(&cfg.RefreshInterval, "interval", cfg.RefreshInterval, "Time between analyses (0 analyzes once at startup)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("serve takes at most one directory, got %d", fs.NArg())
	}
	dir := cfg.SmartDir
	if fs.NArg() == 1 {
		dir = fs.Arg(0)
	}
	if tf.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := log.Logger

	log.Info().
		Str("version", cfg.Version).
		Str("listen", cfg.ListenAddr()).
		Msg("Starting drivehealth server")

	m := metrics.New()
	t, err := openTarget(cfg, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.close(); err != nil {
			log.Warn().Err(err).Msg("Error closing SSH connection")
		}
	}()

	src, err := newSource(t, tf.remote, dir)
	if err != nil {
		return err
	}
	deviceMap, err := loadDeviceMap(ctx, cfg, t, logger)
	if err != nil {
		return err
	}
	resolver := thresholds.NewResolver(t.exec, cfg.CommandTimeout, logger)

	mon := monitor.New(func(ctx context.Context) (analysis.Report, error) {
		return analysis.Run(ctx, src, analysis.Options{
			DeviceMap: deviceMap,
			Resolver:  resolver,
			Workers:   cfg.Workers,
			Logger:    logger,
		})
	}, cfg.RefreshInterval, m, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      api.NewRouter(cfg, mon, m, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go mon.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr()).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return nil
}
