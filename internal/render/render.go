// Package render formats analysis results as terminal tables.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/smartlog"
)

var (
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorGray    = lipgloss.Color("#6272A4")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMagenta).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(colorCyan).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(colorGray)

	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	orangeStyle = lipgloss.NewStyle().Foreground(colorOrange)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed)
	boldCrit    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
)

// level is the colour band of a rendered value.
type level int

const (
	levelNone level = iota
	levelOK
	levelNear
	levelWarn
	levelCrit
)

func (l level) style() lipgloss.Style {
	switch l {
	case levelOK:
		return okStyle
	case levelNear:
		return warnStyle
	case levelWarn:
		return orangeStyle
	case levelCrit:
		return critStyle
	}
	return dimStyle
}

// tempLevel bands a temperature: red at or above critical, orange at or
// above warning, yellow within 10% of warning.
func tempLevel(temp, warning, critical *float64) level {
	switch {
	case temp == nil:
		return levelNone
	case critical != nil && *temp >= *critical:
		return levelCrit
	case warning != nil && *temp >= *warning:
		return levelWarn
	case warning != nil && *temp >= *warning*0.9:
		return levelNear
	}
	return levelOK
}

// fleetTempLevel bands the fleet maximum against the family defaults.
func fleetTempLevel(temp float64) level {
	switch {
	case temp >= 85:
		return levelCrit
	case temp >= 70:
		return levelWarn
	case temp >= 60:
		return levelNear
	}
	return levelOK
}

func spareLevel(pct float64) level {
	switch {
	case pct < 10:
		return levelCrit
	case pct < 20:
		return levelNear
	}
	return levelOK
}

func severityStyle(s health.Severity) lipgloss.Style {
	switch s {
	case health.Critical:
		return critStyle
	case health.Warning:
		return warnStyle
	}
	return okStyle
}

func statusMark(s health.Severity) string {
	return severityStyle(s).Render("●")
}

func formatTemp(temp, warning, critical *float64) string {
	if temp == nil {
		return dimStyle.Render("N/A")
	}
	return tempLevel(temp, warning, critical).style().Render(fmt.Sprintf("%.0f°C", *temp))
}

func formatLimit(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *v)
}

func formatLimits(t health.ThresholdSet) string {
	return formatLimit(t.Warning) + "/" + formatLimit(t.Critical)
}

func formatAge(hours int64) string {
	if hours <= 0 {
		return "N/A"
	}
	return humanize.Comma(hours/24) + "d"
}

// formatErrors shows a cumulative count, red with the 24h increase when the
// counter moved.
func formatErrors(total, window int64) string {
	switch {
	case total == 0 && window == 0:
		return dimStyle.Render("0")
	case window > 0:
		return boldCrit.Render(humanize.Comma(total)) + critStyle.Render(fmt.Sprintf(" (+%d)", window))
	}
	return warnStyle.Render(humanize.Comma(total))
}

func formatPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *v)
}

func formatSpare(d health.DriveHealth) string {
	if d.Family != smartlog.FamilyNVMe || d.AvailableSparePct == nil {
		return "-"
	}
	return spareLevel(*d.AvailableSparePct).style().Render(formatPercent(d.AvailableSparePct))
}

func familyLabel(f smartlog.Family) string {
	return strings.ToUpper(f.String())
}

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle)
}

// Summary renders the fleet totals.
func Summary(sh health.SystemHealth) string {
	errStyle := dimStyle
	if sh.TotalErrors24h > 0 {
		errStyle = boldCrit
	}
	updated := "N/A"
	if sh.LastUpdated != nil {
		updated = sh.LastUpdated.Format(health.TimeLayout) + " (" + humanize.Time(*sh.LastUpdated) + ")"
	}

	rows := [][]string{
		{"Total Drives", humanize.Comma(int64(sh.TotalDrives))},
		{"Healthy", okStyle.Render(fmt.Sprintf("%d ●", sh.HealthyDrives))},
		{"Warning", warnStyle.Render(fmt.Sprintf("%d ●", sh.WarningDrives))},
		{"Critical", critStyle.Render(fmt.Sprintf("%d ●", sh.CriticalDrives))},
		{"Max Temperature", fleetTempLevel(sh.MaxTemperature).style().Render(fmt.Sprintf("%.0f°C", sh.MaxTemperature))},
		{"Errors (24h)", errStyle.Render(humanize.Comma(sh.TotalErrors24h))},
		{"Drive Age Range", fmt.Sprintf("%s - %s days", humanize.Comma(sh.NewestDriveHours/24), humanize.Comma(sh.OldestDriveHours/24))},
		{"Drive Types", fmt.Sprintf("%d ATA, %d NVMe", sh.ATADrives, sh.NVMeDrives)},
		{"Last Updated", updated},
	}

	t := newTable().
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return cellStyle.Align(lipgloss.Right)
		})
	return titleStyle.Render("System Health Summary") + "\n" + t.String()
}

// CompactDrives renders two lines per drive: identity and temperature on
// the first, error counters and NVMe wear on the second.
func CompactDrives(sh health.SystemHealth) string {
	t := newTable().
		Headers("Device Info", "Type", "Stat", "Health Details").
		BorderRow(true).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return labelStyle
			}
			return cellStyle
		})

	for _, d := range sh.Drives {
		sev := health.Classify(d)
		w, c := d.Thresholds.Warning, d.Thresholds.Critical

		line1 := "Temp: " + formatTemp(d.Temperature.Current, w, c)
		if d.Temperature.Max24h != nil {
			line1 += " (max " + formatTemp(d.Temperature.Max24h, w, c)
		} else {
			line1 += " (max " + dimStyle.Render("N/A")
		}
		line1 += ", limits " + formatLimits(d.Thresholds) + ") • Age: " + formatAge(d.PowerOnHours)

		counts := []int64{d.Total.ReallocatedSectors, d.Total.PendingSectors, d.Total.MediaErrors, d.Total.UncorrectableSectors}
		parts := make([]string, len(counts))
		var sum int64
		for i, n := range counts {
			parts[i] = fmt.Sprint(n)
			sum += n
		}
		errStyle := dimStyle
		switch {
		case d.Window.ReallocatedSectors > 0 || d.Window.PendingSectors > 0 || d.Window.MediaErrors > 0 || d.Window.UncorrectableSectors > 0:
			errStyle = boldCrit
		case sum > 0:
			errStyle = warnStyle
		}
		line2 := "Errors: " + errStyle.Render(strings.Join(parts, "/")) + " (Real/Pend/Media/Uncorr)"
		if d.Family == smartlog.FamilyNVMe {
			if d.AvailableSparePct != nil {
				line2 += " • Spare: " + formatSpare(d)
			}
			if d.PercentageUsed != nil {
				line2 += " • Used: " + formatPercent(d.PercentageUsed)
			}
		}

		device := strings.TrimPrefix(d.DevicePath, "/dev/") + "\n" + dimStyle.Render("Serial: "+d.Serial)
		t.Row(device, familyLabel(d.Family), statusMark(sev), line1+"\n"+line2)
	}
	return titleStyle.Render("Drive Health Details (Compact)") + "\n" + t.String()
}

// DetailedDrives renders one wide row per drive.
func DetailedDrives(sh health.SystemHealth) string {
	t := newTable().
		Headers("Device", "Serial", "Type", "Status", "Temp", "Max 24h", "Limits (W/C)",
			"Power On", "Cycles", "Realloc", "Pending", "Uncorr", "Media", "Spare %", "Used %").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			case col >= 4:
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})

	for _, d := range sh.Drives {
		w, c := d.Thresholds.Warning, d.Thresholds.Critical
		used := "-"
		if d.Family == smartlog.FamilyNVMe {
			used = formatPercent(d.PercentageUsed)
		}
		t.Row(
			d.DevicePath,
			dimStyle.Render(d.Serial),
			familyLabel(d.Family),
			statusMark(health.Classify(d)),
			formatTemp(d.Temperature.Current, w, c),
			formatTemp(d.Temperature.Max24h, w, c),
			dimStyle.Render(formatLimits(d.Thresholds)),
			formatAge(d.PowerOnHours),
			humanize.Comma(d.PowerCycles),
			formatErrors(d.Total.ReallocatedSectors, d.Window.ReallocatedSectors),
			formatErrors(d.Total.PendingSectors, d.Window.PendingSectors),
			formatErrors(d.Total.UncorrectableSectors, d.Window.UncorrectableSectors),
			formatErrors(d.Total.MediaErrors, d.Window.MediaErrors),
			formatSpare(d),
			used,
		)
	}
	return titleStyle.Render("Drive Health Details") + "\n" + t.String()
}

// Legend explains the symbols used by the drive tables.
func Legend() string {
	return dimStyle.Render("Legend:\n  Temp Limits: W=Warning, C=Critical\n  Error counts: Total (24h changes in red)") +
		"\n" + dimStyle.Render("  Status: ") +
		statusMark(health.Healthy) + dimStyle.Render(" Healthy, ") +
		statusMark(health.Warning) + dimStyle.Render(" Warning, ") +
		statusMark(health.Critical) + dimStyle.Render(" Critical")
}

// System writes the summary, the drive table and the legend to w.
func System(w io.Writer, sh health.SystemHealth, detailed bool) error {
	drives := CompactDrives(sh)
	if detailed {
		drives = DetailedDrives(sh)
	}
	_, err := fmt.Fprintf(w, "%s\n\n%s\n\n%s\n", Summary(sh), drives, Legend())
	return err
}
