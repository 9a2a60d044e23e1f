// Package devicemap maps drive serial numbers to device paths. Maps are
// loaded from JSON or YAML files or discovered on a live host.
package devicemap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nuclearlighters/drivehealth/internal/executor"
	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/system"
	"github.com/nuclearlighters/drivehealth/internal/thresholds"
)

// ErrUnsupportedFormat is returned for map files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported device map format")

// Map is serial number → device path.
type Map map[string]string

// Resolve returns the mapped path for serial, or the placeholder path when
// the serial is unknown.
func (m Map) Resolve(serial string) (path string, mapped bool) {
	if p, ok := m[serial]; ok && p != "" {
		return p, true
	}
	return health.PlaceholderPath(serial), false
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Load reads a map file. The format follows the file extension.
func Load(path string) (Map, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device map: %w", err)
	}

	m := Map{}
	switch f {
	case formatJSON:
		err = json.Unmarshal(data, &m)
	case formatYAML:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse device map %s: %w", path, err)
	}
	return m, nil
}

// Save writes m to path in the format its extension names.
func Save(path string, m Map) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case formatJSON:
		data, err = json.MarshalIndent(m, "", "  ")
		data = append(data, '\n')
	case formatYAML:
		data, err = yaml.Marshal(m)
	}
	if err != nil {
		return fmt.Errorf("encode device map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write device map: %w", err)
	}
	return nil
}

// Discover builds a map on the host behind exec using smartctl --scan and
// smartctl -i per device. smartctl's exit status is a bitmask that is set
// for drive warnings too, so a non-zero exit still counts when a serial was
// printed. Devices whose serial cannot be read are skipped.
func Discover(ctx context.Context, exec executor.Executor, logger zerolog.Logger) (Map, error) {
	logger = logger.With().Str("component", "devicemap").Logger()

	out, err := exec.Execute(ctx, "smartctl --scan")
	if err != nil {
		return nil, fmt.Errorf("smartctl --scan: %w", err)
	}

	devices := parseScan(out)
	logger.Info().Int("devices", len(devices)).Msg("Scanned devices")

	m := Map{}
	for _, dev := range devices {
		if _, err := thresholds.ValidateDevicePath(dev); err != nil {
			logger.Warn().Err(err).Msg("Skipping scanned device")
			continue
		}
		info, err := exec.Execute(ctx, "smartctl -i "+executor.Quote(dev))
		var ee *executor.ExitError
		if err != nil && !errors.As(err, &ee) {
			logger.Warn().Err(err).Str("device", dev).Msg("Reading device identity failed")
			if ctx.Err() != nil {
				return m, ctx.Err()
			}
			continue
		}
		serial := parseSerial(info)
		if serial == "" {
			logger.Warn().Str("device", dev).Msg("No serial number reported")
			continue
		}
		logger.Debug().Str("device", dev).Str("serial", serial).Msg("Mapped device")
		m[serial] = dev
	}
	return m, nil
}

// DiscoverLocal builds a map from the block devices of this machine without
// running smartctl.
func DiscoverLocal(ctx context.Context) (Map, error) {
	serials, err := system.BlockDeviceSerials(ctx)
	if err != nil {
		return nil, err
	}
	return Map(serials), nil
}

// parseScan reads device paths from smartctl --scan output:
//
//	/dev/sda -d sat # /dev/sda [SAT], ATA device
//	/dev/nvme0 -d nvme # /dev/nvme0, NVMe device
func parseScan(out string) []string {
	var devices []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		devices = append(devices, strings.Fields(line)[0])
	}
	return devices
}

// parseSerial finds the "Serial Number:" line of smartctl -i output.
func parseSerial(out string) string {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "Serial Number" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
