// Package thresholds reads per-device temperature limits from the drive
// itself and falls back to static family defaults when it cannot.
package thresholds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/executor"
	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// kelvinOffset converts the NVMe WCTEMP/CCTEMP fields to Celsius.
const kelvinOffset = 273

// DefaultTimeout bounds one diagnostic query.
const DefaultTimeout = 15 * time.Second

var devicePathPattern = regexp.MustCompile(`^/dev/(sd[a-z][a-z0-9]*|hd[a-z][a-z0-9]*|vd[a-z][a-z0-9]*|xvd[a-z][a-z0-9]*|nvme[0-9]+(n[0-9]+)?(p[0-9]+)?|ada[0-9]+|da[0-9]+|nvd[0-9]+|disk/by-id/[A-Za-z0-9._:-]+|disk/by-path/[A-Za-z0-9._:-]+)$`)

var errDevicePath = errors.New("device path not allowed")

// ValidateDevicePath rejects anything that is not a plain block device node,
// so a device map entry can never inject shell syntax into a query.
func ValidateDevicePath(device string) (string, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return "", fmt.Errorf("%w: empty", errDevicePath)
	}
	if !devicePathPattern.MatchString(device) {
		return "", fmt.Errorf("%w: %s", errDevicePath, device)
	}
	return device, nil
}

// Resolver queries device limits through an Executor.
type Resolver struct {
	exec    executor.Executor
	timeout time.Duration
	logger  zerolog.Logger
}

// NewResolver returns a Resolver. A nil exec makes every Resolve return the
// static defaults.
func NewResolver(exec executor.Executor, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		exec:    exec,
		timeout: timeout,
		logger:  logger.With().Str("component", "thresholds").Logger(),
	}
}

// Resolve returns the limits of one device. It never fails: any query
// problem yields health.DefaultThresholds for the family.
func (r *Resolver) Resolve(ctx context.Context, family smartlog.Family, devicePath string) health.ThresholdSet {
	defaults := health.DefaultThresholds(family)
	if r == nil || r.exec == nil || health.IsPlaceholderPath(devicePath) {
		return defaults
	}
	device, err := ValidateDevicePath(devicePath)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Skipping threshold query")
		return defaults
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ts health.ThresholdSet
	switch family {
	case smartlog.FamilyATA:
		ts, err = r.queryATA(ctx, device)
	case smartlog.FamilyNVMe:
		ts, err = r.queryNVMe(ctx, device)
	default:
		return defaults
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("device", device).Str("family", family.String()).
			Msg("Threshold query failed, using defaults")
		return defaults
	}
	r.logger.Debug().Str("device", device).Str("family", family.String()).Msg("Thresholds resolved")
	return ts
}

type smartctlOutput struct {
	Temperature *struct {
		LimitMax   *float64 `json:"limit_max"`
		OpLimitMax *float64 `json:"op_limit_max"`
	} `json:"temperature"`
}

func (r *Resolver) queryATA(ctx context.Context, device string) (health.ThresholdSet, error) {
	out, err := r.exec.Execute(ctx, "smartctl -x --json "+executor.Quote(device))
	if err != nil {
		return health.ThresholdSet{}, err
	}
	var resp smartctlOutput
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return health.ThresholdSet{}, fmt.Errorf("parse smartctl output: %w", err)
	}
	if resp.Temperature == nil {
		return health.ThresholdSet{}, errors.New("smartctl output has no temperature section")
	}

	ts := health.DefaultThresholds(smartlog.FamilyATA)
	if v := resp.Temperature.LimitMax; v != nil && *v > 0 {
		ts.Critical = health.Celsius(*v)
	}
	if v := resp.Temperature.OpLimitMax; v != nil && *v > 0 {
		ts.OperationalMax = health.Celsius(*v)
	}
	return ts, nil
}

type idCtrlOutput struct {
	WCTemp *float64 `json:"wctemp"`
	CCTemp *float64 `json:"cctemp"`
}

func (r *Resolver) queryNVMe(ctx context.Context, device string) (health.ThresholdSet, error) {
	out, err := r.exec.Execute(ctx, "nvme id-ctrl "+executor.Quote(device)+" -o json")
	if err != nil {
		return health.ThresholdSet{}, err
	}
	var resp idCtrlOutput
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return health.ThresholdSet{}, fmt.Errorf("parse nvme id-ctrl output: %w", err)
	}

	// A controller that does not implement the limits reports 0 Kelvin.
	ts := health.DefaultThresholds(smartlog.FamilyNVMe)
	if v := resp.WCTemp; v != nil && *v > 0 {
		ts.Warning = health.Celsius(*v - kelvinOffset)
		ts.OperationalMax = health.Celsius(*v - kelvinOffset)
	}
	if v := resp.CCTemp; v != nil && *v > 0 {
		ts.Critical = health.Celsius(*v - kelvinOffset)
	}
	return ts, nil
}
