// Package health turns decoded device logs into per-drive health snapshots
// and aggregates them into a fleet summary.
package health

import (
	"time"

	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// Identity names the device a log belongs to.
type Identity struct {
	Serial     string
	DevicePath string
}

// ErrorCounters holds the five error kinds tracked per drive. Not every kind
// applies to every family; kinds a family does not report stay zero.
type ErrorCounters struct {
	ReallocatedSectors   int64 `json:"reallocated_sectors"`
	PendingSectors       int64 `json:"pending_sectors"`
	UncorrectableSectors int64 `json:"uncorrectable_sectors"`
	ReadErrors           int64 `json:"read_errors"`
	MediaErrors          int64 `json:"media_errors"`
}

// Sum adds up all five kinds.
func (c ErrorCounters) Sum() int64 {
	return c.ReallocatedSectors + c.PendingSectors + c.UncorrectableSectors + c.ReadErrors + c.MediaErrors
}

// Temperature is the current reading and the trailing-window extremes.
// Nil means no decodable reading.
type Temperature struct {
	Current *float64
	Max24h  *float64
	Mean24h *float64
}

// DriveHealth is the health snapshot of one device at the time of its
// newest log record.
type DriveHealth struct {
	Serial     string
	DevicePath string
	Family     smartlog.Family

	Temperature Temperature
	Thresholds  ThresholdSet

	Total  ErrorCounters // as of the newest record
	Window ErrorCounters // new occurrences within the trailing 24h

	// NVMe only.
	AvailableSparePct *float64
	PercentageUsed    *float64
	UnsafeShutdowns   *int64

	PowerOnHours int64
	PowerCycles  int64
	LastUpdated  *time.Time
}

// Evaluate computes the health of one device. A nil thresholds pointer
// selects DefaultThresholds for the log's family; a non-nil one is used as
// given. An empty log yields identity and thresholds only.
func Evaluate(log smartlog.DeviceLog, id Identity, thresholds *ThresholdSet) DriveHealth {
	d := DriveHealth{Serial: id.Serial, DevicePath: id.DevicePath}

	switch l := log.(type) {
	case smartlog.ATALog:
		d.Family = smartlog.FamilyATA
		evaluateATA(l, &d)
	case smartlog.NVMeLog:
		d.Family = smartlog.FamilyNVMe
		evaluateNVMe(l, &d)
	}

	if thresholds != nil {
		d.Thresholds = *thresholds
	} else {
		d.Thresholds = DefaultThresholds(d.Family)
	}
	return d
}

// ATATemperature decodes attribute 194. Drives pack min/max readings into
// the upper bytes; only the low byte is the current Celsius value.
func ATATemperature(raw int64) float64 {
	return float64(raw & 0xFF)
}

func evaluateATA(log smartlog.ATALog, d *DriveHealth) {
	latest, ok := log.Last()
	if !ok {
		return
	}
	now := latest.Time
	d.LastUpdated = &now
	window := log.Window(smartlog.Window24h)

	if raw, ok := latest.Raw(smartlog.AttrTemperatureCelsius); ok {
		d.Temperature.Current = float64Ptr(ATATemperature(raw))
	}
	var temps []float64
	for i := 0; i < window.Len(); i++ {
		if raw, ok := window.At(i).Raw(smartlog.AttrTemperatureCelsius); ok {
			temps = append(temps, ATATemperature(raw))
		}
	}
	d.Temperature.Max24h, d.Temperature.Mean24h = extremes(temps)

	total := func(id int) int64 {
		v, _ := latest.Raw(id)
		return v
	}
	d.Total = ErrorCounters{
		ReallocatedSectors:   total(smartlog.AttrReallocatedSectorCt),
		PendingSectors:       total(smartlog.AttrCurrentPendingSector),
		UncorrectableSectors: total(smartlog.AttrOfflineUncorrectable),
		ReadErrors:           total(smartlog.AttrRawReadErrorRate),
	}
	d.PowerOnHours = total(smartlog.AttrPowerOnHours)
	d.PowerCycles = total(smartlog.AttrPowerCycleCount)

	if window.Len() >= 2 {
		first := window.At(0)
		delta := func(id int) int64 {
			start, ok := first.Raw(id)
			if !ok {
				return 0
			}
			return clampDelta(total(id), start)
		}
		d.Window = ErrorCounters{
			ReallocatedSectors:   delta(smartlog.AttrReallocatedSectorCt),
			PendingSectors:       delta(smartlog.AttrCurrentPendingSector),
			UncorrectableSectors: delta(smartlog.AttrOfflineUncorrectable),
			ReadErrors:           delta(smartlog.AttrRawReadErrorRate),
		}
	}
}

func evaluateNVMe(log smartlog.NVMeLog, d *DriveHealth) {
	latest, ok := log.Last()
	if !ok {
		return
	}
	now := latest.Time
	d.LastUpdated = &now
	window := log.Window(smartlog.Window24h)

	if v, ok := latest.Number(smartlog.FieldTemperature); ok {
		d.Temperature.Current = float64Ptr(v)
	}
	var temps []float64
	for i := 0; i < window.Len(); i++ {
		if v, ok := window.At(i).Number(smartlog.FieldTemperature); ok {
			temps = append(temps, v)
		}
	}
	d.Temperature.Max24h, d.Temperature.Mean24h = extremes(temps)

	total := func(name string) int64 {
		v, _ := latest.Integer(name)
		return v
	}
	d.Total.MediaErrors = total(smartlog.FieldMediaErrors)
	d.PowerOnHours = total(smartlog.FieldPowerOnHours)
	d.PowerCycles = total(smartlog.FieldPowerCycles)
	unsafe := total(smartlog.FieldUnsafeShutdowns)
	d.UnsafeShutdowns = &unsafe

	if v, ok := latest.Number(smartlog.FieldAvailableSpare); ok {
		d.AvailableSparePct = float64Ptr(v)
	}
	if v, ok := latest.Number(smartlog.FieldPercentageUsed); ok {
		d.PercentageUsed = float64Ptr(v)
	}

	if window.Len() >= 2 {
		if start, ok := window.At(0).Integer(smartlog.FieldMediaErrors); ok {
			d.Window.MediaErrors = clampDelta(d.Total.MediaErrors, start)
		}
	}
}

// clampDelta treats a counter that went backwards (reset, rollover, drive
// swap) as no new errors.
func clampDelta(latest, first int64) int64 {
	if latest < first {
		return 0
	}
	return latest - first
}

func extremes(values []float64) (peak, mean *float64) {
	if len(values) == 0 {
		return nil, nil
	}
	hi, sum := values[0], 0.0
	for _, v := range values {
		if v > hi {
			hi = v
		}
		sum += v
	}
	avg := sum / float64(len(values))
	return &hi, &avg
}

func float64Ptr(v float64) *float64 { return &v }
