// Package system reports facts about the machine drivehealth runs on: host
// identity for the health endpoint and the serial numbers of local block
// devices for building a device map without smartctl.
package system

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
)

// Info is static host information.
type Info struct {
	Hostname     string    `json:"hostname"`
	OSName       string    `json:"os_name"`
	OSVersion    string    `json:"os_version"`
	Kernel       string    `json:"kernel"`
	Architecture string    `json:"architecture"`
	UptimeSecs   uint64    `json:"uptime_seconds"`
	UptimeHuman  string    `json:"uptime_human"`
	BootTime     time.Time `json:"boot_time"`
}

// GetInfo collects host information. Fields that cannot be read stay empty.
func GetInfo(ctx context.Context) Info {
	info := Info{Architecture: runtime.GOARCH}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err == nil {
		info.OSName = hostInfo.Platform
		info.OSVersion = hostInfo.PlatformVersion
		info.Kernel = hostInfo.KernelVersion
		info.UptimeSecs = hostInfo.Uptime
		info.UptimeHuman = formatUptime(hostInfo.Uptime)
		info.BootTime = time.Unix(int64(hostInfo.BootTime), 0)
	}

	return info
}

// formatUptime converts seconds to e.g. "2d 5h 30m 15s".
func formatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", secs))

	return strings.Join(parts, " ")
}

// BlockDeviceSerials maps the serial number of every local block device to
// its /dev path. Partitions share their disk's serial; the shortest name
// (the whole disk) wins.
func BlockDeviceSerials(ctx context.Context) (map[string]string, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block devices: %w", err)
	}
	names := make(map[string]string, len(counters))
	for name, c := range counters {
		names[name] = c.SerialNumber
	}
	return pickDisks(names), nil
}

// pickDisks turns device name → serial into serial → /dev path.
func pickDisks(names map[string]string) map[string]string {
	best := make(map[string]string)
	for name, serial := range names {
		serial = strings.TrimSpace(serial)
		if serial == "" {
			continue
		}
		if cur, ok := best[serial]; !ok || len(name) < len(cur) || (len(name) == len(cur) && name < cur) {
			best[serial] = name
		}
	}
	out := make(map[string]string, len(best))
	for serial, name := range best {
		out[serial] = "/dev/" + name
	}
	return out
}
