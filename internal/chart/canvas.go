package chart

import "math"

// Point is a position in CSS (device-independent) units.
type Point struct {
	X, Y float64
}

// Align is the horizontal anchor of a text label.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Stroke describes how a path is stroked. Dash is the on/off pattern in CSS
// units; nil draws a solid line.
type Stroke struct {
	Color string
	Width float64
	Dash  []float64
}

// Canvas is the pixel surface the chart is drawn on. The backing buffer is
// Size() device pixels; after SetScale(s) every coordinate passed to the
// drawing calls is in CSS units and gets multiplied by s.
type Canvas interface {
	Size() (width, height int)
	Resize(width, height int)
	SetScale(s float64)
	ClearRect(x, y, w, h float64)
	StrokePath(pts []Point, st Stroke)
	FillCircle(center Point, r float64, color string)
	FillText(text string, at Point, align Align, color string)
}

// Geometry is the on-screen size of a chart in CSS pixels and the device
// pixel ratio of the display it is shown on.
type Geometry struct {
	CSSWidth         float64
	CSSHeight        float64
	DevicePixelRatio float64
}

const (
	fallbackWidth  = 300
	fallbackHeight = 160
)

// normalize applies the fallbacks for a collapsed or unmeasured canvas.
func (g Geometry) normalize() Geometry {
	if !(g.CSSWidth > 0) || math.IsInf(g.CSSWidth, 0) {
		g.CSSWidth = fallbackWidth
	}
	if !(g.CSSHeight > 0) || math.IsInf(g.CSSHeight, 0) {
		g.CSSHeight = fallbackHeight
	}
	if !(g.DevicePixelRatio > 0) || math.IsInf(g.DevicePixelRatio, 0) {
		g.DevicePixelRatio = 1
	}
	return g
}

// BufferSize returns the backing pixel size for the geometry.
func (g Geometry) BufferSize() (int, int) {
	g = g.normalize()
	return int(math.Floor(g.CSSWidth * g.DevicePixelRatio)), int(math.Floor(g.CSSHeight * g.DevicePixelRatio))
}
