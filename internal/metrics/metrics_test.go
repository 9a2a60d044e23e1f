package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

// gauge returns the value of the series of family name whose labels
// include want.
func gauge(t *testing.T, m *Metrics, name string, want map[string]string) (float64, bool) {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matches(metric, want) {
				switch {
				case metric.GetGauge() != nil:
					return metric.GetGauge().GetValue(), true
				case metric.GetCounter() != nil:
					return metric.GetCounter().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

func matches(metric *dto.Metric, want map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(want)
}

func system(drives ...health.DriveHealth) health.SystemHealth {
	return health.Aggregate(drives, time.Unix(1_790_000_000, 0))
}

func TestObserveRun(t *testing.T) {
	m := New()
	temp, spare := 44.0, 5.0
	sh := system(
		health.DriveHealth{
			Serial:      "A1",
			DevicePath:  "/dev/sda",
			Family:      smartlog.FamilyATA,
			Temperature: health.Temperature{Current: &temp},
			Thresholds:  health.DefaultThresholds(smartlog.FamilyATA),
			Total:       health.ErrorCounters{ReallocatedSectors: 4},
			Window:      health.ErrorCounters{ReallocatedSectors: 1},
		},
		health.DriveHealth{
			Serial:            "N1",
			DevicePath:        "/dev/nvme0",
			Family:            smartlog.FamilyNVMe,
			Thresholds:        health.DefaultThresholds(smartlog.FamilyNVMe),
			AvailableSparePct: &spare,
		},
	)
	m.ObserveRun(sh, 2, 1500*time.Millisecond)

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"drivehealth_drives", map[string]string{"status": "critical"}, 1},
		{"drivehealth_drives", map[string]string{"status": "warning"}, 1},
		{"drivehealth_drives", map[string]string{"status": "healthy"}, 0},
		{"drivehealth_drive_temperature_celsius", map[string]string{"serial": "A1"}, 44},
		{"drivehealth_drive_errors", map[string]string{"serial": "A1", "kind": "reallocated"}, 4},
		{"drivehealth_drive_errors_24h", map[string]string{"serial": "A1", "kind": "reallocated"}, 1},
		{"drivehealth_drive_available_spare_percent", map[string]string{"serial": "N1", "type": "nvme"}, 5},
		{"drivehealth_drive_status", map[string]string{"serial": "A1"}, 2},
		{"drivehealth_drive_status", map[string]string{"serial": "N1"}, 1},
		{"drivehealth_analysis_runs_total", map[string]string{"result": "success"}, 1},
		{"drivehealth_device_log_failures_total", nil, 2},
		{"drivehealth_last_analysis_timestamp_seconds", nil, 1_790_000_000},
	}
	for _, c := range checks {
		got, ok := gauge(t, m, c.name, c.labels)
		if !ok {
			t.Errorf("%s%v not exported", c.name, c.labels)
			continue
		}
		if got != c.want {
			t.Errorf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}

	if _, ok := gauge(t, m, "drivehealth_drive_temperature_celsius", map[string]string{"serial": "N1"}); ok {
		t.Error("drive without a temperature reading should not export one")
	}
}

func TestObserveRunDropsVanishedDrives(t *testing.T) {
	m := New()
	m.ObserveRun(system(health.DriveHealth{Serial: "OLD", Family: smartlog.FamilyATA, PowerOnHours: 10}), 0, time.Second)
	m.ObserveRun(system(health.DriveHealth{Serial: "NEW", Family: smartlog.FamilyATA, PowerOnHours: 20}), 0, time.Second)

	if _, ok := gauge(t, m, "drivehealth_drive_power_on_hours", map[string]string{"serial": "OLD"}); ok {
		t.Error("series for a removed drive is still exported")
	}
	if v, ok := gauge(t, m, "drivehealth_drive_power_on_hours", map[string]string{"serial": "NEW"}); !ok || v != 20 {
		t.Errorf("NEW power_on_hours = %v, %v", v, ok)
	}
}

func TestBreakerHook(t *testing.T) {
	m := New()
	hook := m.BreakerHook()
	hook("ssh:nas01", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	if v, _ := gauge(t, m, "drivehealth_circuit_breaker_state", map[string]string{"name": "ssh:nas01"}); v != 1 {
		t.Errorf("breaker state = %v, want 1", v)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFailedRun(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `drivehealth_analysis_runs_total{result="error"} 1`) {
		t.Errorf("exposition missing failed run counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing runtime collector")
	}
}
