package health

import (
	"strings"

	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// ThresholdSet holds the temperature limits of one device in Celsius.
// A nil field means the device has no such limit.
type ThresholdSet struct {
	Warning        *float64 `json:"warning"`
	Critical       *float64 `json:"critical"`
	OperationalMax *float64 `json:"operational_max"`
}

// DefaultThresholds returns the static limits used when a device cannot be
// queried. ATA drives report no warning limit.
func DefaultThresholds(f smartlog.Family) ThresholdSet {
	switch f {
	case smartlog.FamilyATA:
		return ThresholdSet{Critical: Celsius(70), OperationalMax: Celsius(60)}
	case smartlog.FamilyNVMe:
		return ThresholdSet{Warning: Celsius(85), Critical: Celsius(95), OperationalMax: Celsius(85)}
	}
	return ThresholdSet{}
}

// Celsius returns a pointer to v, for building ThresholdSet literals.
func Celsius(v float64) *float64 { return &v }

const placeholderPrefix = "/dev/unknown_"

// PlaceholderPath is the device path reported for a serial that has no
// entry in the device map.
func PlaceholderPath(serial string) string {
	if len(serial) > 8 {
		serial = serial[:8]
	}
	return placeholderPrefix + serial
}

// IsPlaceholderPath reports whether path was produced by PlaceholderPath.
func IsPlaceholderPath(path string) bool {
	return strings.HasPrefix(path, placeholderPrefix)
}
