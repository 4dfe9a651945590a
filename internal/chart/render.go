package chart

import (
	"math"
	"strconv"

	"github.com/luki/sensordash/internal/profile"
	"github.com/luki/sensordash/internal/telemetry"
)

// Plot padding in CSS pixels; the left side holds the y labels.
const (
	padLeft   = 50
	padRight  = 10
	padTop    = 10
	padBottom = 26
)

const (
	colorAxes      = "#ddd"
	colorGrid      = "#eee"
	colorLabel     = "#555"
	colorThreshold = "#b71c1c"
	colorSeries    = "#0066cc"

	defaultTick = 1000
	tickEpsilon = 0.001
	pointRadius = 3
	timeLayout  = "15:04:05"
)

var thresholdDash = []float64{4, 4}

// Render draws the chart for one sensor: axes, gridlines with labels, the
// threshold line, the series and first/last time labels. Readings are
// converted with the profile transform and clamped to the profile range for
// plotting only; x positions are evenly spaced by index.
func Render(c Canvas, p profile.Profile, threshold float64, points []telemetry.ReadingPoint, g Geometry) {
	g = g.normalize()
	dpr := g.DevicePixelRatio

	bw, bh := g.BufferSize()
	if cw, ch := c.Size(); cw != bw || ch != bh {
		c.Resize(bw, bh)
		c.SetScale(dpr)
	}
	w := float64(bw) / dpr
	h := float64(bh) / dpr

	c.ClearRect(0, 0, w, h)

	plotW := w - padLeft - padRight
	plotH := h - padTop - padBottom

	c.StrokePath([]Point{
		{padLeft, padTop},
		{padLeft, padTop + plotH},
		{padLeft + plotW, padTop + plotH},
	}, Stroke{Color: colorAxes, Width: 1})

	if len(points) == 0 {
		return
	}

	minV, maxV := p.DisplayMin, p.DisplayMax
	toY := func(v float64) float64 {
		return padTop + plotH - (v-minV)/(maxV-minV)*plotH
	}

	tick := p.TickSpacing
	if !(tick > 0) {
		tick = defaultTick
	}
	for i := 0; ; i++ {
		v := minV + float64(i)*tick
		if v > maxV+tickEpsilon {
			break
		}
		y := toY(v)
		c.StrokePath([]Point{{padLeft, y}, {padLeft + plotW, y}}, Stroke{Color: colorGrid, Width: 1})
		c.FillText(strconv.FormatFloat(profile.RoundHalfUp(v), 'f', -1, 64), Point{padLeft - 6, y + 4}, AlignRight, colorLabel)
	}

	if !math.IsNaN(threshold) && threshold >= minV && threshold <= maxV {
		y := toY(threshold)
		c.StrokePath([]Point{{padLeft, y}, {padLeft + plotW, y}}, Stroke{Color: colorThreshold, Width: 1, Dash: thresholdDash})
	}

	n := len(points)
	step := plotW
	if n > 1 {
		step = plotW / float64(n-1)
	}
	series := make([]Point, n)
	for i, pt := range points {
		v := clamp(p.Display(pt.RawValue), minV, maxV)
		series[i] = Point{padLeft + float64(i)*step, toY(v)}
	}

	c.StrokePath(series, Stroke{Color: colorSeries, Width: 2})
	for _, pt := range series {
		c.FillCircle(pt, pointRadius, colorSeries)
	}

	labelY := padTop + plotH + 18
	c.FillText(points[0].Time().Format(timeLayout), Point{padLeft, labelY}, AlignCenter, colorLabel)
	if n >= 2 {
		c.FillText(points[n-1].Time().Format(timeLayout), Point{padLeft + plotW, labelY}, AlignCenter, colorLabel)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
