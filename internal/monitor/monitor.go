// Package monitor implements the live sensor dashboard TUI using BubbleTea:
// one card per sensor with a sparkline, health verdict, threshold banner
// and the baseline controls.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/chart"
	"github.com/luki/sensordash/internal/dashboard"
	"github.com/luki/sensordash/internal/health"
	"github.com/luki/sensordash/internal/history"
	"github.com/luki/sensordash/internal/threshold"
)

// ExportGeometry is the size of charts written by the export key.
var ExportGeometry = chart.Geometry{CSSWidth: 600, CSSHeight: 320, DevicePixelRatio: 2}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg struct {
	snapshot dashboard.Snapshot
}

type exportMsg struct {
	paths []string
	err   error
}

type editMode int

const (
	editNone editMode = iota
	editBaseline
	editDrop
)

func (e editMode) String() string {
	switch e {
	case editBaseline:
		return "baseline"
	case editDrop:
		return "drop %"
	}
	return ""
}

// ── Model ────────────────────────────────────────────────────────────

// Options configures a Model.
type Options struct {
	Interval  time.Duration
	ExportDir string
	Recording bool
}

// Model is the BubbleTea model for the dashboard.
type Model struct {
	ctx       context.Context
	reg       *dashboard.Registry
	orch      *dashboard.Orchestrator
	logger    *zap.Logger
	opts      Options
	err       error
	notice    string
	width     int
	height    int
	scroll    int
	focus     int
	editing   editMode
	input     string
	lastPoll  time.Time
	startTime time.Time
	paused    bool
}

// New creates the initial model. Cycles fetch with ctx.
func New(ctx context.Context, reg *dashboard.Registry, orch *dashboard.Orchestrator, logger *zap.Logger, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = dashboard.DefaultInterval
	}
	return Model{
		ctx:       ctx,
		reg:       reg,
		orch:      orch,
		logger:    logger,
		opts:      opts,
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// startCycle returns the fetch command of a new cycle, or nil while the
// previous one is still in flight.
func (m Model) startCycle() tea.Cmd {
	if !m.orch.Begin() {
		m.logger.Debug("previous cycle still in flight, skipping tick")
		return nil
	}
	orch, ctx := m.orch, m.ctx
	return func() tea.Msg {
		return snapshotMsg{snapshot: orch.Fetch(ctx)}
	}
}

func (m Model) exportCmd(id string) tea.Cmd {
	reg, dir := m.reg, m.opts.ExportDir
	return func() tea.Msg {
		paths, err := ExportChart(reg, id, dir, time.Now())
		return exportMsg{paths: paths, err: err}
	}
}

// ExportChart writes the chart of one card as SVG and PNG into dir.
func ExportChart(reg *dashboard.Registry, id, dir string, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("export dir: %w", err)
	}
	base := filepath.Join(dir, fmt.Sprintf("%s-%s", safeName(id), now.Format("20060102-150405")))

	svg := chart.NewSVGCanvas()
	if !reg.RenderChart(id, svg, ExportGeometry) {
		return nil, fmt.Errorf("unknown sensor %q", id)
	}
	if err := os.WriteFile(base+".svg", svg.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write svg: %w", err)
	}

	raster := chart.NewRasterCanvas()
	reg.RenderChart(id, raster, ExportGeometry)
	f, err := os.Create(base + ".png")
	if err != nil {
		return nil, fmt.Errorf("write png: %w", err)
	}
	defer f.Close()
	if err := raster.EncodePNG(f); err != nil {
		return nil, fmt.Errorf("write png: %w", err)
	}
	return []string{base + ".svg", base + ".png"}, nil
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startCycle(), tickCmd(m.opts.Interval))
}

func (m Model) focusedID() (string, bool) {
	ids := m.reg.IDs()
	if len(ids) == 0 {
		return "", false
	}
	return ids[min(m.focus, len(ids)-1)], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.editing != editNone {
			return m.updateEditing(msg), nil
		}
		m.notice = ""
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		case "tab":
			if n := m.reg.Len(); n > 0 {
				m.focus = (m.focus + 1) % n
			}
		case "shift+tab":
			if n := m.reg.Len(); n > 0 {
				m.focus = (m.focus - 1 + n) % n
			}
		case "b":
			if _, ok := m.focusedID(); ok {
				m.editing, m.input = editBaseline, ""
			}
		case "d":
			if _, ok := m.focusedID(); ok {
				m.editing, m.input = editDrop, ""
			}
		case "c":
			if id, ok := m.focusedID(); ok && !m.reg.SetBaselineFromLatest(id) {
				m.notice = "no current value for " + id
			}
		case "a":
			if id, ok := m.focusedID(); ok && !m.reg.SetBaselineFromAverage(id, threshold.AverageWindow) {
				m.notice = "no history for " + id
			}
		case "e":
			if id, ok := m.focusedID(); ok {
				return m, m.exportCmd(id)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.paused {
			return m, tickCmd(m.opts.Interval)
		}
		return m, tea.Batch(m.startCycle(), tickCmd(m.opts.Interval))

	case snapshotMsg:
		rep := m.orch.Apply(m.ctx, msg.snapshot)
		m.orch.End()
		m.lastPoll = msg.snapshot.At
		m.err = rep.Err()
		if n := m.reg.Len(); m.focus >= n && n > 0 {
			m.focus = n - 1
		}

	case exportMsg:
		if msg.err != nil {
			m.notice = "export failed: " + msg.err.Error()
			m.logger.Warn("chart export failed", zap.Error(msg.err))
		} else {
			m.notice = "exported " + strings.Join(msg.paths, ", ")
			m.logger.Info("chart exported", zap.Strings("paths", msg.paths))
		}
	}

	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing, m.input = editNone, ""
	case tea.KeyEnter:
		id, ok := m.focusedID()
		if ok {
			var applied bool
			if m.editing == editBaseline {
				applied = m.reg.SetBaselineText(id, m.input)
			} else {
				applied = m.reg.SetDropPercentText(id, m.input)
			}
			if !applied {
				m.notice = fmt.Sprintf("ignored %s %q", m.editing, m.input)
			}
		}
		m.editing, m.input = editNone, ""
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				m.input += string(r)
			}
		}
	}
	return m
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorFocus    = lipgloss.Color("51")
	colorName     = lipgloss.Color("147")
	colorID       = lipgloss.Color("238")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	views := m.reg.Views()
	if len(views) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensors...")
		sections = append(sections, waiting)
	} else {
		for i, v := range views {
			sections = append(sections, m.renderCard(v, i == m.focus, contentWidth))
		}
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := m.height
	if visibleLines < 5 {
		visibleLines = 5
	}
	maxScroll := len(lines) - visibleLines
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}

	start := m.scroll
	end := start + visibleLines
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSOR DASHBOARD")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string

	statusParts = append(statusParts, dimS.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))

	if !m.orch.Initialized() {
		statusParts = append(statusParts, dimS.Render("connecting"))
	}
	if !m.lastPoll.IsZero() {
		statusParts = append(statusParts, dimS.Render(m.lastPoll.Format("15:04:05")))
	}

	if m.paused {
		p := lipgloss.NewStyle().
			Foreground(colorPaused).
			Bold(true).
			Render("PAUSED")
		statusParts = append(statusParts, p)
	}

	if m.opts.Recording {
		rec := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Render("REC") +
			dimS.Render(" "+m.opts.ExportDir)
		statusParts = append(statusParts, rec)
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + filler + right)
}

func verdictStyle(v dashboard.CardViewState) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch {
	case v.VerdictText != v.Verdict.String():
		return s.Foreground(colorDim)
	case v.Verdict == health.OK:
		return s.Foreground(colorOk)
	case v.Verdict == health.NotOK:
		return s.Foreground(colorCrit)
	}
	return s.Foreground(colorDim)
}

func (m Model) renderCard(v dashboard.CardViewState, focused bool, totalWidth int) string {
	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}
	chartWidth := innerWidth - 40
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string

	name := lipgloss.NewStyle().Bold(true).Foreground(colorName).Render(v.Name)
	id := lipgloss.NewStyle().Foreground(colorID).Render(v.ID)
	status := dimS.Render(v.StatusText)
	if v.Online {
		status = lipgloss.NewStyle().Foreground(colorOk).Render(v.StatusText)
	}
	rows = append(rows, name+"  "+id+"  "+status+"  "+verdictStyle(v).Render(v.VerdictText))

	if v.BannerVisible {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render(v.BannerText))
	}

	data, _ := m.reg.Chart(v.ID)
	value := dimS.Render(v.ValueText)
	if v.HasValue && v.Online {
		value = chart.RenderValue(v.Value, data.Profile.Unit, v.Threshold)
	}
	rows = append(rows, lipgloss.NewStyle().Width(12).Render(value)+" "+dimS.Render(v.UpdatedText))

	hist := &history.Buffer{Points: data.Points}
	pts := hist.LastNPoints(chartWidth)
	spark := chart.RenderSparklinePoints(pts, chartWidth, data.Profile, v.Threshold)
	row := frameL + spark + frameR
	if st, ok := hist.Stats(data.Profile.Display); ok {
		row += dimS.Render(" avg") + valS.Render(chart.FormatValue(st.Avg)) +
			dimS.Render(" lo") + valS.Render(chart.FormatValue(st.Min)) +
			dimS.Render(" pk") + valS.Render(chart.FormatValue(st.Peak))
	}
	rows = append(rows, row)
	if timeline := chart.RenderTimeline(pts, chartWidth); strings.TrimSpace(timeline) != "" {
		rows = append(rows, " "+timeline)
	}
	if v.HasValue {
		rows = append(rows, " "+chart.RenderThresholdScale(v.Value, data.Profile, v.Threshold, chartWidth))
	}

	baseline := v.BaselineText
	if baseline == "" {
		baseline = "unset"
	}
	settings := dimS.Render("baseline ") + valS.Render(baseline) +
		dimS.Render("  drop ") + valS.Render(v.DropText+"%") +
		dimS.Render("  threshold ") + lipgloss.NewStyle().Foreground(colorWarn).Render(v.ThresholdText)
	if v.Unit != "" {
		settings += dimS.Render(" " + v.Unit)
	}
	rows = append(rows, settings)

	if focused && m.editing != editNone {
		prompt := lipgloss.NewStyle().Foreground(colorLabel).Render(m.editing.String() + ": ")
		rows = append(rows, prompt+m.input+lipgloss.NewStyle().Foreground(colorFocus).Render("█"))
	}

	if len(v.Recent) > 0 {
		rows = append(rows, renderRecent(v.Recent, dimS))
	}

	border := colorBorder
	if focused {
		border = colorFocus
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderRecent lays the newest-first readings out in two columns.
func renderRecent(recent []string, style lipgloss.Style) string {
	half := (len(recent) + 1) / 2
	left := style.Width(22).Render(strings.Join(recent[:half], "\n"))
	right := style.Render(strings.Join(recent[half:], "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) renderFooter(width int) string {
	okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
	warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
	critS := lipgloss.NewStyle().Foreground(colorCrit).Render("██")
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	labelS := lipgloss.NewStyle().Foreground(colorLabel)

	left := okS + dimS.Render(" ok ") +
		warnS + dimS.Render(" near ") +
		critS + dimS.Render(" not ok ") +
		tickS + dimS.Render(" 1min")
	if m.notice != "" {
		left = labelS.Render(m.notice)
	}

	keys := dimS.Render("tab") + labelS.Render(":focus") +
		dimS.Render("  b/d") + labelS.Render(":baseline/drop") +
		dimS.Render("  c/a") + labelS.Render(":use current/avg") +
		dimS.Render("  e") + labelS.Render(":export") +
		dimS.Render("  p") + labelS.Render(":pause") +
		dimS.Render("  q") + labelS.Render(":quit")

	gap := width - lipgloss.Width(left) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(left + filler + keys)
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
