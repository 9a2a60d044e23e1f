package smartlog

import (
	"strconv"
	"time"
)

// ATA attribute IDs read by the health evaluator.
const (
	AttrRawReadErrorRate     = 1
	AttrReallocatedSectorCt  = 5
	AttrPowerOnHours         = 9
	AttrPowerCycleCount      = 12
	AttrTemperatureCelsius   = 194
	AttrCurrentPendingSector = 197
	AttrOfflineUncorrectable = 198
)

// NVMe field names read by the health evaluator.
const (
	FieldTemperature     = "temperature"
	FieldAvailableSpare  = "available_spare"
	FieldPercentageUsed  = "percentage_used"
	FieldPowerOnHours    = "power_on_hours"
	FieldPowerCycles     = "power_cycles"
	FieldUnsafeShutdowns = "unsafe_shutdowns"
	FieldMediaErrors     = "media_and_data_integrity_errors"
	FieldErrorLogEntries = "error_information_log_entries"
	FieldControllerBusy  = "controller_busy_time"
)

// Record is one decoded log line.
type Record interface {
	Timestamp() time.Time
}

// ATAAttribute is one id;normalized;raw triplet.
type ATAAttribute struct {
	ID         int
	Normalized int
	Raw        int64
}

// ATARecord is one attribute-table line.
type ATARecord struct {
	Time       time.Time
	Attributes map[int]ATAAttribute
}

// Timestamp implements Record.
func (r ATARecord) Timestamp() time.Time { return r.Time }

// Raw returns the raw value of attribute id.
func (r ATARecord) Raw(id int) (int64, bool) {
	a, ok := r.Attributes[id]
	return a.Raw, ok
}

// ValueKind tells how an NVMe field value was coerced.
type ValueKind uint8

const (
	KindText    ValueKind = iota // kept as the raw string
	KindInt                      // integer counter
	KindPercent                  // percentage with the trailing % removed
)

// NVMeValue is a single decoded key-value reading. Text always holds the
// original string so nothing is lost when coercion fails.
type NVMeValue struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
}

// Number returns the value as a float for integer and percent kinds.
func (v NVMeValue) Number() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindPercent:
		return v.Float, true
	}
	return 0, false
}

// Integer returns the value of an integer-kind reading.
func (v NVMeValue) Integer() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// String returns the reading as it appeared in the log.
func (v NVMeValue) String() string {
	if v.Text != "" {
		return v.Text
	}
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindPercent:
		return strconv.FormatFloat(v.Float, 'f', -1, 64) + "%"
	}
	return ""
}

// NVMeRecord is one key-value line.
type NVMeRecord struct {
	Time   time.Time
	Fields map[string]NVMeValue
}

// Timestamp implements Record.
func (r NVMeRecord) Timestamp() time.Time { return r.Time }

// Integer returns the integer value of field name.
func (r NVMeRecord) Integer(name string) (int64, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return 0, false
	}
	return v.Integer()
}

// Number returns the numeric value of field name.
func (r NVMeRecord) Number(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return 0, false
	}
	return v.Number()
}
