package health

import (
	"fmt"
	"time"

	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// Severity is the health tier of one drive.
type Severity int

const (
	Healthy Severity = iota
	Warning
	Critical
)

// String returns the lower-case tier name.
func (s Severity) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// minSparePct is the NVMe spare capacity below which a drive is flagged.
const minSparePct = 10

// Classify assigns a tier. Rules are checked in order and the first match
// wins:
//
//   - Critical: new reallocated, pending or media errors in the window, or
//     the current temperature at or above the critical limit.
//   - Warning: any cumulative reallocated, pending or media errors, the
//     current temperature at or above the warning or operational limit, or
//     NVMe spare capacity below 10%.
//   - Healthy otherwise.
func Classify(d DriveHealth) Severity {
	cur := d.Temperature.Current

	w := d.Window
	if w.ReallocatedSectors > 0 || w.PendingSectors > 0 || w.MediaErrors > 0 {
		return Critical
	}
	if atOrAbove(cur, d.Thresholds.Critical) {
		return Critical
	}

	t := d.Total
	if t.ReallocatedSectors > 0 || t.PendingSectors > 0 || t.MediaErrors > 0 {
		return Warning
	}
	if atOrAbove(cur, d.Thresholds.Warning) || atOrAbove(cur, d.Thresholds.OperationalMax) {
		return Warning
	}
	if d.Family == smartlog.FamilyNVMe && d.AvailableSparePct != nil && *d.AvailableSparePct < minSparePct {
		return Warning
	}
	return Healthy
}

func atOrAbove(value, limit *float64) bool {
	return value != nil && limit != nil && *value >= *limit
}

// SystemHealth is the fleet summary of one analysis run.
type SystemHealth struct {
	Drives []DriveHealth

	TotalDrives    int
	HealthyDrives  int
	WarningDrives  int
	CriticalDrives int

	TotalErrors24h          int64
	MaxTemperature          float64
	TotalReallocatedSectors int64
	TotalPendingSectors     int64
	TotalMediaErrors        int64

	OldestDriveHours int64 // highest power-on hours, 0 when none report
	NewestDriveHours int64 // lowest non-zero power-on hours, 0 when none report
	NVMeDrives       int
	ATADrives        int
	LastUpdated      *time.Time
}

// Aggregate builds the fleet summary. Drive order is kept as given.
func Aggregate(drives []DriveHealth, now time.Time) SystemHealth {
	ts := now.Truncate(time.Second)
	sh := SystemHealth{
		Drives:      make([]DriveHealth, len(drives)),
		TotalDrives: len(drives),
		LastUpdated: &ts,
	}
	copy(sh.Drives, drives)

	var maxTemp *float64
	for _, d := range drives {
		switch Classify(d) {
		case Critical:
			sh.CriticalDrives++
		case Warning:
			sh.WarningDrives++
		default:
			sh.HealthyDrives++
		}

		switch d.Family {
		case smartlog.FamilyATA:
			sh.ATADrives++
		case smartlog.FamilyNVMe:
			sh.NVMeDrives++
		}

		sh.TotalErrors24h += d.Window.Sum()
		sh.TotalReallocatedSectors += d.Total.ReallocatedSectors
		sh.TotalPendingSectors += d.Total.PendingSectors
		sh.TotalMediaErrors += d.Total.MediaErrors

		if cur := d.Temperature.Current; cur != nil && (maxTemp == nil || *cur > *maxTemp) {
			maxTemp = cur
		}

		if h := d.PowerOnHours; h > 0 {
			if h > sh.OldestDriveHours {
				sh.OldestDriveHours = h
			}
			if sh.NewestDriveHours == 0 || h < sh.NewestDriveHours {
				sh.NewestDriveHours = h
			}
		}
	}
	if maxTemp != nil {
		sh.MaxTemperature = *maxTemp
	}
	return sh
}
