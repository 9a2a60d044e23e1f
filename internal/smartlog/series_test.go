package smartlog

import (
	"testing"
	"time"
)

func ataAt(ts time.Time, reallocated int64) ATARecord {
	return ATARecord{
		Time:       ts,
		Attributes: map[int]ATAAttribute{5: {ID: 5, Normalized: 100, Raw: reallocated}},
	}
}

func TestWindowInclusiveBoundary(t *testing.T) {
	base := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)
	s := NewSeries([]ATARecord{
		ataAt(base.Add(-25*time.Hour), 0),
		ataAt(base.Add(-24*time.Hour), 1),
		ataAt(base.Add(-23*time.Hour), 2),
		ataAt(base, 3),
	})

	w := s.Window(Window24h)
	if w.Len() != 3 {
		t.Fatalf("Window(24h) len = %d, want 3", w.Len())
	}
	first, _ := w.First()
	if !first.Time.Equal(base.Add(-24 * time.Hour)) {
		t.Errorf("window starts at %v, want record exactly 24h old", first.Time)
	}
}

func TestWindowEmpty(t *testing.T) {
	var s Series[ATARecord]
	if w := s.Window(Window24h); !w.Empty() {
		t.Errorf("Window of empty series has %d records", w.Len())
	}
	if _, ok := s.First(); ok {
		t.Error("First() on empty series should report false")
	}
	if _, ok := s.Last(); ok {
		t.Error("Last() on empty series should report false")
	}
}

func TestWindowSingleRecord(t *testing.T) {
	s := NewSeries([]ATARecord{ataAt(time.Now(), 4)})
	if w := s.Window(Window24h); w.Len() != 1 {
		t.Errorf("Window len = %d, want 1", w.Len())
	}
}

func TestNewSeriesDoesNotAliasInput(t *testing.T) {
	base := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	in := []ATARecord{ataAt(base.Add(time.Hour), 2), ataAt(base, 1)}
	s := NewSeries(in)

	if in[0].Attributes[5].Raw != 2 {
		t.Error("NewSeries reordered the caller's slice")
	}
	if s.At(0).Attributes[5].Raw != 1 {
		t.Errorf("At(0) raw = %d, want 1", s.At(0).Attributes[5].Raw)
	}
}
