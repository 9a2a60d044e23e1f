package smartlog

import (
	"slices"
	"sort"
	"time"
)

// Window24h is the trailing window used for deltas and temperature extremes.
const Window24h = 24 * time.Hour

// Series is a timestamp-ordered sequence of records for one device.
// Records sharing a timestamp keep their input order.
type Series[R Record] struct {
	records []R
}

// NewSeries copies records and sorts them by timestamp with a stable sort.
func NewSeries[R Record](records []R) Series[R] {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b R) int {
		return a.Timestamp().Compare(b.Timestamp())
	})
	return Series[R]{records: sorted}
}

// Len returns the number of records.
func (s Series[R]) Len() int { return len(s.records) }

// Empty reports whether the series has no records.
func (s Series[R]) Empty() bool { return len(s.records) == 0 }

// At returns the i-th record in timestamp order.
func (s Series[R]) At(i int) R { return s.records[i] }

// Records returns a copy of the ordered records.
func (s Series[R]) Records() []R { return slices.Clone(s.records) }

// First returns the oldest record.
func (s Series[R]) First() (R, bool) {
	var zero R
	if len(s.records) == 0 {
		return zero, false
	}
	return s.records[0], true
}

// Last returns the newest record.
func (s Series[R]) Last() (R, bool) {
	var zero R
	if len(s.records) == 0 {
		return zero, false
	}
	return s.records[len(s.records)-1], true
}

// Window returns the records with timestamp >= newest - d. The bound is
// inclusive: a record exactly d older than the newest one is kept.
func (s Series[R]) Window(d time.Duration) Series[R] {
	last, ok := s.Last()
	if !ok {
		return s
	}
	cutoff := last.Timestamp().Add(-d)
	i := sort.Search(len(s.records), func(i int) bool {
		return !s.records[i].Timestamp().Before(cutoff)
	})
	return Series[R]{records: s.records[i:]}
}

// DeviceLog is the decoded history of one device. It is implemented only by
// ATALog and NVMeLog; consumers switch on the concrete type.
type DeviceLog interface {
	Family() Family
	Len() int
	deviceLog()
}

// ATALog is the history of an attribute-table device.
type ATALog struct {
	Series[ATARecord]
}

// Family implements DeviceLog.
func (ATALog) Family() Family { return FamilyATA }

func (ATALog) deviceLog() {}

// NVMeLog is the history of a key-value device.
type NVMeLog struct {
	Series[NVMeRecord]
}

// Family implements DeviceLog.
func (NVMeLog) Family() Family { return FamilyNVMe }

func (NVMeLog) deviceLog() {}
