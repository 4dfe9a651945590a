// Package chart renders sensor history. Render draws the card chart onto a
// pixel Canvas (SVG, PNG or a recorder); the sparkline functions in this file
// are the terminal projection of the same data, colour-coded against the
// sensor's threshold.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensordash/internal/health"
	"github.com/luki/sensordash/internal/profile"
	"github.com/luki/sensordash/internal/telemetry"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// warnBand is how close above the threshold a value turns yellow, as a
// fraction of the threshold.
const warnBand = 0.05

// ValueColor returns the colour for a display value given the threshold.
func ValueColor(v, threshold float64) lipgloss.Color {
	switch {
	case health.Classify(true, v, threshold).Verdict == health.NotOK:
		return lipgloss.Color("196") // red
	case v < threshold+math.Abs(threshold)*warnBand:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

// RenderSparklinePoints renders raw readings through the profile transform
// over the profile's fixed range. A subtle pipe marks each minute boundary.
func RenderSparklinePoints(points []telemetry.ReadingPoint, width int, p profile.Profile, threshold float64) string {
	if width <= 0 {
		return ""
	}

	if len(points) == 0 {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := p.DisplayMax - p.DisplayMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i, pt := range points {
		v := p.Display(pt.RawValue)
		norm := (v - p.DisplayMin) / span
		norm = math.Max(0, math.Min(1, norm))

		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		if isMinuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}

		style := lipgloss.NewStyle().Foreground(ValueColor(v, threshold))
		if v < threshold {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

func isMinuteTick(points []telemetry.ReadingPoint, i int) bool {
	if points[i].Timestamp == 0 {
		return false
	}
	t := points[i].Time()
	if t.Second() == 0 {
		return true
	}
	if i > 0 && points[i-1].Timestamp != 0 {
		return t.Minute() != points[i-1].Time().Minute()
	}
	return false
}

// RenderTimeline renders the HH:MM labels under a sparkline at each minute
// tick position.
func RenderTimeline(points []telemetry.ReadingPoint, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)

	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}

	type tick struct {
		pos   int
		label string
	}
	var ticks []tick

	for i := range points {
		if isMinuteTick(points, i) {
			ticks = append(ticks, tick{pos: padLen + i, label: points[i].Time().Format("15:04")})
		}
	}

	lastEnd := -1
	for _, t := range ticks {
		start := t.pos - 2
		if start < 0 {
			start = 0
		}
		end := start + len(t.label)
		if end > width {
			continue
		}
		if start <= lastEnd+1 {
			continue
		}
		for j, ch := range t.label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render(string(line))
}

// RenderThresholdScale renders a bar over the profile range with the
// threshold marked and the current value as a diamond.
func RenderThresholdScale(current float64, p profile.Profile, threshold float64, width int) string {
	if width <= 0 {
		return ""
	}

	span := p.DisplayMax - p.DisplayMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		i := int(float64(width-1) * (v - p.DisplayMin) / span)
		return max(0, min(width-1, i))
	}

	thrPos := -1
	if threshold >= p.DisplayMin && threshold <= p.DisplayMax {
		thrPos = pos(threshold)
	}
	curPos := pos(current)

	dot := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	mark := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			style := lipgloss.NewStyle().Foreground(ValueColor(current, threshold)).Bold(true)
			sb.WriteString(style.Render("◆"))
		case thrPos:
			sb.WriteString(mark.Render("▪"))
		default:
			sb.WriteString(dot.Render("·"))
		}
	}

	return sb.String()
}

// RenderValue renders the display value with its unit, colour-coded.
func RenderValue(v float64, unit string, threshold float64) string {
	s := fmt.Sprintf("%s%s", FormatValue(v), unit)
	style := lipgloss.NewStyle().Foreground(ValueColor(v, threshold))
	if v < threshold {
		style = style.Bold(true)
	}
	return style.Render(s)
}

// FormatValue prints a display value without trailing zeros.
func FormatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
