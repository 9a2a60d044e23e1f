package health

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// TimeLayout is the ISO-8601 form used for timestamps in JSON output.
// smartd logs carry no zone, so neither does the output.
const TimeLayout = "2006-01-02T15:04:05"

type temperatureJSON struct {
	Current        *float64 `json:"current"`
	Max24h         *float64 `json:"max_24h"`
	Mean24h        *float64 `json:"mean_24h"`
	Warning        *float64 `json:"warning"`
	Critical       *float64 `json:"critical"`
	OperationalMax *float64 `json:"operational_max"`
}

type errorsJSON struct {
	Total  ErrorCounters `json:"total"`
	Window ErrorCounters `json:"24h"`
}

type nvmeJSON struct {
	AvailableSparePct *float64 `json:"available_spare_pct"`
	PercentageUsed    *float64 `json:"percentage_used"`
	UnsafeShutdowns   *int64   `json:"unsafe_shutdowns"`
}

type infoJSON struct {
	PowerOnHours int64   `json:"power_on_hours"`
	PowerCycles  int64   `json:"power_cycles"`
	LastUpdated  *string `json:"last_updated"`
}

type driveJSON struct {
	DevicePath  string          `json:"device_path"`
	DriveType   smartlog.Family `json:"drive_type"`
	Serial      string          `json:"serial"`
	Temperature temperatureJSON `json:"temperature"`
	Errors      errorsJSON      `json:"errors"`
	NVMe        nvmeJSON        `json:"nvme_specific"`
	Info        infoJSON        `json:"info"`
}

type summaryJSON struct {
	TotalDrives             int     `json:"total_drives"`
	HealthyDrives           int     `json:"healthy_drives"`
	WarningDrives           int     `json:"warning_drives"`
	CriticalDrives          int     `json:"critical_drives"`
	TotalErrors24h          int64   `json:"total_errors_24h"`
	MaxTemperature          float64 `json:"max_temperature"`
	TotalReallocatedSectors int64   `json:"total_reallocated_sectors"`
	TotalPendingSectors     int64   `json:"total_pending_sectors"`
	TotalMediaErrors        int64   `json:"total_media_errors"`
}

type systemJSON struct {
	OldestDriveHours int64   `json:"oldest_drive_hours"`
	NewestDriveHours int64   `json:"newest_drive_hours"`
	NVMeDrives       int     `json:"nvme_drives"`
	ATADrives        int     `json:"ata_drives"`
	LastUpdated      *string `json:"last_updated"`
}

type systemHealthJSON struct {
	Summary summaryJSON   `json:"summary"`
	System  systemJSON    `json:"system"`
	Drives  []DriveHealth `json:"drives"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(TimeLayout)
	return &s
}

func parseTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(TimeLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", *s, err)
	}
	return &t, nil
}

// MarshalJSON writes the nested drive layout.
func (d DriveHealth) MarshalJSON() ([]byte, error) {
	return json.Marshal(driveJSON{
		DevicePath: d.DevicePath,
		DriveType:  d.Family,
		Serial:     d.Serial,
		Temperature: temperatureJSON{
			Current:        d.Temperature.Current,
			Max24h:         d.Temperature.Max24h,
			Mean24h:        d.Temperature.Mean24h,
			Warning:        d.Thresholds.Warning,
			Critical:       d.Thresholds.Critical,
			OperationalMax: d.Thresholds.OperationalMax,
		},
		Errors: errorsJSON{Total: d.Total, Window: d.Window},
		NVMe: nvmeJSON{
			AvailableSparePct: d.AvailableSparePct,
			PercentageUsed:    d.PercentageUsed,
			UnsafeShutdowns:   d.UnsafeShutdowns,
		},
		Info: infoJSON{
			PowerOnHours: d.PowerOnHours,
			PowerCycles:  d.PowerCycles,
			LastUpdated:  formatTime(d.LastUpdated),
		},
	})
}

// UnmarshalJSON reads the layout written by MarshalJSON.
func (d *DriveHealth) UnmarshalJSON(data []byte) error {
	var w driveJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	updated, err := parseTime(w.Info.LastUpdated)
	if err != nil {
		return err
	}
	*d = DriveHealth{
		Serial:     w.Serial,
		DevicePath: w.DevicePath,
		Family:     w.DriveType,
		Temperature: Temperature{
			Current: w.Temperature.Current,
			Max24h:  w.Temperature.Max24h,
			Mean24h: w.Temperature.Mean24h,
		},
		Thresholds: ThresholdSet{
			Warning:        w.Temperature.Warning,
			Critical:       w.Temperature.Critical,
			OperationalMax: w.Temperature.OperationalMax,
		},
		Total:             w.Errors.Total,
		Window:            w.Errors.Window,
		AvailableSparePct: w.NVMe.AvailableSparePct,
		PercentageUsed:    w.NVMe.PercentageUsed,
		UnsafeShutdowns:   w.NVMe.UnsafeShutdowns,
		PowerOnHours:      w.Info.PowerOnHours,
		PowerCycles:       w.Info.PowerCycles,
		LastUpdated:       updated,
	}
	return nil
}

// MarshalJSON writes the summary/system/drives layout.
func (s SystemHealth) MarshalJSON() ([]byte, error) {
	drives := s.Drives
	if drives == nil {
		drives = []DriveHealth{}
	}
	return json.Marshal(systemHealthJSON{
		Summary: summaryJSON{
			TotalDrives:             s.TotalDrives,
			HealthyDrives:           s.HealthyDrives,
			WarningDrives:           s.WarningDrives,
			CriticalDrives:          s.CriticalDrives,
			TotalErrors24h:          s.TotalErrors24h,
			MaxTemperature:          s.MaxTemperature,
			TotalReallocatedSectors: s.TotalReallocatedSectors,
			TotalPendingSectors:     s.TotalPendingSectors,
			TotalMediaErrors:        s.TotalMediaErrors,
		},
		System: systemJSON{
			OldestDriveHours: s.OldestDriveHours,
			NewestDriveHours: s.NewestDriveHours,
			NVMeDrives:       s.NVMeDrives,
			ATADrives:        s.ATADrives,
			LastUpdated:      formatTime(s.LastUpdated),
		},
		Drives: drives,
	})
}

// UnmarshalJSON reads the layout written by MarshalJSON.
func (s *SystemHealth) UnmarshalJSON(data []byte) error {
	var w systemHealthJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	updated, err := parseTime(w.System.LastUpdated)
	if err != nil {
		return err
	}
	*s = SystemHealth{
		Drives:                  w.Drives,
		TotalDrives:             w.Summary.TotalDrives,
		HealthyDrives:           w.Summary.HealthyDrives,
		WarningDrives:           w.Summary.WarningDrives,
		CriticalDrives:          w.Summary.CriticalDrives,
		TotalErrors24h:          w.Summary.TotalErrors24h,
		MaxTemperature:          w.Summary.MaxTemperature,
		TotalReallocatedSectors: w.Summary.TotalReallocatedSectors,
		TotalPendingSectors:     w.Summary.TotalPendingSectors,
		TotalMediaErrors:        w.Summary.TotalMediaErrors,
		OldestDriveHours:        w.System.OldestDriveHours,
		NewestDriveHours:        w.System.NewestDriveHours,
		NVMeDrives:              w.System.NVMeDrives,
		ATADrives:               w.System.ATADrives,
		LastUpdated:             updated,
	}
	return nil
}
