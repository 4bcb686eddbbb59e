package display

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
	"gitlab.com/tinyland/lab/hardwatch/internal/format"
)

// watchInterval is how often the watch view resamples hardware.
const watchInterval = 2 * time.Second

// Sampler is the capacity reader the watch view polls.
type Sampler interface {
	Sample() hardware.Snapshot
}

// keyMap defines the watch view key bindings.
type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// tickMsg fires the periodic resample.
type tickMsg time.Time

// WatchModel is the Bubbletea model for the live watch view. It resamples
// hardware every few seconds and shows each dimension against the baseline
// and its change threshold.
type WatchModel struct {
	sampler     Sampler
	baseline    hardware.Snapshot
	hasBaseline bool
	thresholds  hardware.Thresholds

	curr    hardware.Snapshot
	report  hardware.ChangeReport
	table   table.Model
	width   int
	height  int
	ready   bool
	sampled time.Time
}

// NewWatch creates a watch model. The baseline pointer may be nil when no
// baseline file exists yet.
func NewWatch(sampler Sampler, baseline *hardware.Snapshot, th hardware.Thresholds) WatchModel {
	columns := []table.Column{
		{Title: "Dimension", Width: 12},
		{Title: "Baseline", Width: 10},
		{Title: "Current", Width: 10},
		{Title: "Delta", Width: 8},
		{Title: "Threshold", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(4),
	)

	m := WatchModel{
		sampler:    sampler,
		thresholds: th,
		table:      t,
	}
	if baseline != nil {
		m.baseline = *baseline
		m.hasBaseline = true
	}
	return m
}

// Init implements tea.Model: sample immediately, then tick.
func (m WatchModel) Init() tea.Cmd {
	return func() tea.Msg { return tickMsg(time.Now()) }
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m.resample(), m.tick()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tickMsg:
		return m.resample(), m.tick()
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if !m.ready || m.sampled.IsZero() {
		return "Sampling hardware..."
	}

	host := format.TruncateWithEllipsis(m.curr.Hostname, 40)
	header := titleStyle.Render("hardwatch") + faintStyle.Render(
		fmt.Sprintf("  %s  up %s", host, m.curr.Uptime))

	status := faintStyle.Render("no change")
	if !m.hasBaseline {
		status = faintStyle.Render("no baseline yet")
	} else if m.report.Changed {
		status = deltaStyle.Render("CHANGE DETECTED") + "\n" + m.report.Summary
	}

	footer := faintStyle.Render(fmt.Sprintf("sampled %s  |  r refresh  q quit",
		m.sampled.Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		m.table.View(),
		"",
		status,
		"",
		footer,
	)
}

// resample takes a fresh snapshot and rebuilds the table rows.
func (m WatchModel) resample() WatchModel {
	m.curr = m.sampler.Sample()
	m.sampled = time.Now()

	if m.hasBaseline {
		m.report = hardware.Detect(m.curr, m.baseline, m.thresholds)
	}

	base := func(v int) string {
		if !m.hasBaseline {
			return "-"
		}
		return fmt.Sprintf("%d", v)
	}
	delta := func(curr, prev int) string {
		if !m.hasBaseline || curr == prev {
			return ""
		}
		return fmt.Sprintf("%+d", curr-prev)
	}

	m.table.SetRows([]table.Row{
		{"CPU cores", base(m.baseline.CPUCores), fmt.Sprintf("%d", m.curr.CPUCores),
			delta(m.curr.CPUCores, m.baseline.CPUCores), fmt.Sprintf("%d", m.thresholds.CPUCores)},
		{"Memory GB", base(m.baseline.MemoryGB), fmt.Sprintf("%d", m.curr.MemoryGB),
			delta(m.curr.MemoryGB, m.baseline.MemoryGB), fmt.Sprintf("%d", m.thresholds.MemoryGB)},
		{"Disk GB", base(m.baseline.DiskGB), fmt.Sprintf("%d", m.curr.DiskGB),
			delta(m.curr.DiskGB, m.baseline.DiskGB), fmt.Sprintf("%d", m.thresholds.DiskGB)},
	})

	return m
}

// tick schedules the next resample.
func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
