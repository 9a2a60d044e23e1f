// Package analysis runs one health analysis over every device log a source
// provides.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nuclearlighters/drivehealth/internal/devicemap"
	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/smartlog"
	"github.com/nuclearlighters/drivehealth/internal/source"
	"github.com/nuclearlighters/drivehealth/internal/thresholds"
)

// DefaultWorkers is the number of devices analyzed in parallel.
const DefaultWorkers = 4

// Options configures a run. The zero value analyzes with static thresholds,
// no device map and a disabled logger.
type Options struct {
	DeviceMap devicemap.Map
	// Resolver queries live thresholds; nil uses the static defaults.
	Resolver *thresholds.Resolver
	Workers  int
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Failure records a device log that could not be analyzed.
type Failure struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// Report is the outcome of one run.
type Report struct {
	RunID       string
	Location    string
	Health      health.SystemHealth
	Failures    []Failure
	Rejected    []string
	Diagnostics smartlog.Diagnostics
	Started     time.Time
	Duration    time.Duration
}

type deviceResult struct {
	drive *health.DriveHealth
	diag  smartlog.Diagnostics
	err   error
}

// Run lists src and analyzes every log on a bounded worker pool. Only a
// failed listing or a cancelled ctx is returned as an error; a device that
// cannot be read or decoded is logged, recorded in Report.Failures and left
// out of the summary.
func Run(ctx context.Context, src source.Source, opts Options) (Report, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	report := Report{
		RunID:    uuid.NewString(),
		Location: src.Location(),
		Started:  now(),
	}
	logger := opts.Logger.With().Str("run_id", report.RunID).Logger()

	listing, err := src.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list device logs: %w", err)
	}
	report.Rejected = listing.Rejected
	for _, name := range listing.Rejected {
		logger.Warn().Str("file", name).Msg("Ignoring log with unrecognised name")
	}
	logger.Info().
		Str("location", report.Location).
		Int("files", len(listing.Files)).
		Int("mapped", len(opts.DeviceMap)).
		Msg("Starting analysis")

	results := make([]deviceResult, len(listing.Files))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, f := range listing.Files {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					logger.Error().Str("file", f.Name).Interface("panic", p).Msg("Skipping device, analysis panicked")
					results[i] = deviceResult{err: fmt.Errorf("analyze %s: panic: %v", f.Name, p)}
				}
			}()
			results[i] = analyzeDevice(ctx, src, f, opts, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	drives := make([]health.DriveHealth, 0, len(results))
	for i, r := range results {
		report.Diagnostics.Lines += r.diag.Lines
		report.Diagnostics.Decoded += r.diag.Decoded
		report.Diagnostics.Discarded += r.diag.Discarded
		report.Diagnostics.SkippedFields += r.diag.SkippedFields
		if r.err != nil {
			report.Failures = append(report.Failures, Failure{File: listing.Files[i].Name, Err: r.err.Error()})
			continue
		}
		drives = append(drives, *r.drive)
	}

	report.Health = health.Aggregate(drives, now())
	report.Duration = now().Sub(report.Started)

	logger.Info().
		Int("drives", report.Health.TotalDrives).
		Int("critical", report.Health.CriticalDrives).
		Int("warning", report.Health.WarningDrives).
		Int("failed", len(report.Failures)).
		Dur("took", report.Duration).
		Msg("Analysis complete")
	return report, nil
}

func analyzeDevice(ctx context.Context, src source.Source, f source.LogFile, opts Options, logger zerolog.Logger) deviceResult {
	logger = logger.With().Str("file", f.Name).Str("serial", f.Serial).Str("family", f.Family.String()).Logger()

	rc, err := src.Open(ctx, f)
	if err != nil {
		logger.Error().Err(err).Msg("Skipping device, log unreadable")
		return deviceResult{err: err}
	}
	defer rc.Close()

	log, diag, err := smartlog.Decode(f.Family, rc)
	if err != nil {
		logger.Error().Err(err).Msg("Skipping device, log unreadable")
		return deviceResult{diag: diag, err: err}
	}
	if diag.Discarded > 0 || diag.SkippedFields > 0 {
		logger.Warn().
			Int("discarded_lines", diag.Discarded).
			Int("skipped_fields", diag.SkippedFields).
			Int("records", diag.Decoded).
			Msg("Dropped malformed log content")
	}

	path, mapped := opts.DeviceMap.Resolve(f.Serial)
	if mapped {
		logger.Debug().Str("device", path).Msg("Device mapped")
	} else {
		logger.Warn().Str("device", path).Msg("No device mapping, using placeholder path")
	}

	ts := opts.Resolver.Resolve(ctx, f.Family, path)
	d := health.Evaluate(log, health.Identity{Serial: f.Serial, DevicePath: path}, &ts)
	logger.Debug().Str("status", health.Classify(d).String()).Int("records", log.Len()).Msg("Device analyzed")
	return deviceResult{drive: &d, diag: diag}
}
