// Package display renders hardware snapshots for the terminal: a one-shot
// specs view and a live watch view.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
)

var (
	colorPrimary   = lipgloss.Color("#7D56F4")
	colorSecondary = lipgloss.Color("#04B575")
	colorChanged   = lipgloss.Color("#FF5F87")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary)
	labelStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	deltaStyle = lipgloss.NewStyle().Foreground(colorChanged).Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// RenderSpecs renders the current snapshot, with baseline deltas when a
// baseline exists. With styled=false (stdout is not a terminal) the output
// is plain text suitable for piping.
func RenderSpecs(curr hardware.Snapshot, prev *hardware.Snapshot, styled bool) string {
	rows := []struct {
		label string
		value string
		delta string
	}{
		{"Hostname", curr.Hostname, ""},
		{"Uptime", curr.Uptime, ""},
		{"CPU cores", fmt.Sprintf("%d", curr.CPUCores), deltaString(curr.CPUCores, prevField(prev, func(s hardware.Snapshot) int { return s.CPUCores }))},
		{"Memory", fmt.Sprintf("%d GB", curr.MemoryGB), deltaString(curr.MemoryGB, prevField(prev, func(s hardware.Snapshot) int { return s.MemoryGB }))},
		{"Disk free", fmt.Sprintf("%d GB", curr.DiskGB), deltaString(curr.DiskGB, prevField(prev, func(s hardware.Snapshot) int { return s.DiskGB }))},
	}

	var b strings.Builder

	if styled {
		b.WriteString(titleStyle.Render("Hardware Specs"))
	} else {
		b.WriteString("Hardware Specs")
	}
	b.WriteString("\n\n")

	for _, r := range rows {
		if styled {
			b.WriteString(labelStyle.Render(r.label))
			b.WriteString(" ")
			b.WriteString(valueStyle.Render(r.value))
			if r.delta != "" {
				b.WriteString(" ")
				b.WriteString(deltaStyle.Render(r.delta))
			}
		} else {
			b.WriteString(fmt.Sprintf("%-12s %s", r.label, r.value))
			if r.delta != "" {
				b.WriteString(" " + r.delta)
			}
		}
		b.WriteString("\n")
	}

	note := "sampled " + curr.Timestamp.Format("2006-01-02 15:04:05")
	if prev == nil {
		note += " (no baseline yet)"
	}
	b.WriteString("\n")
	if styled {
		b.WriteString(faintStyle.Render(note))
	} else {
		b.WriteString(note)
	}
	b.WriteString("\n")

	return b.String()
}

// prevField extracts one dimension from the baseline, or -1 when absent.
func prevField(prev *hardware.Snapshot, get func(hardware.Snapshot) int) int {
	if prev == nil {
		return -1
	}
	return get(*prev)
}

// deltaString formats the movement against the baseline, empty when there
// is none.
func deltaString(curr, prev int) string {
	if prev < 0 || curr == prev {
		return ""
	}
	if curr > prev {
		return fmt.Sprintf("(+%d from baseline)", curr-prev)
	}
	return fmt.Sprintf("(-%d from baseline)", prev-curr)
}
