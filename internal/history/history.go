// Package history holds the most recent readings of a sensor as supplied by
// the hub, with display-unit statistics for the dashboard.
package history

import (
	"math"

	"github.com/luki/sensordash/internal/telemetry"
)

// Buffer stores the latest history window for one sensor. The hub decides
// the window; a positive Max only caps what is kept if the hub sends more.
type Buffer struct {
	Points []telemetry.ReadingPoint
	Max    int // capacity, 0 for unbounded
}

// NewBuffer creates an empty history buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		Points: make([]telemetry.ReadingPoint, 0, max(capacity, 0)),
		Max:    capacity,
	}
}

// Replace swaps the whole window for points. The slice is copied so later
// changes by the caller do not leak in.
func (b *Buffer) Replace(points []telemetry.ReadingPoint) {
	if b.Max > 0 && len(points) > b.Max {
		points = points[len(points)-b.Max:]
	}
	b.Points = append(b.Points[:0:0], points...)
}

// Len returns the number of stored points.
func (b *Buffer) Len() int {
	return len(b.Points)
}

// Last returns the most recent point.
func (b *Buffer) Last() (telemetry.ReadingPoint, bool) {
	if len(b.Points) == 0 {
		return telemetry.ReadingPoint{}, false
	}
	return b.Points[len(b.Points)-1], true
}

// LastNPoints returns a copy of the last n points, fewer if the buffer is
// shorter.
func (b *Buffer) LastNPoints(n int) []telemetry.ReadingPoint {
	if n <= 0 || len(b.Points) == 0 {
		return nil
	}
	start := len(b.Points) - n
	if start < 0 {
		start = 0
	}
	out := make([]telemetry.ReadingPoint, len(b.Points[start:]))
	copy(out, b.Points[start:])
	return out
}

// LastN returns the last n values converted with display, for averaging and
// sparklines.
func (b *Buffer) LastN(n int, display func(float64) float64) []float64 {
	pts := b.LastNPoints(n)
	if pts == nil {
		return nil
	}
	vals := make([]float64, 0, len(pts))
	for _, p := range pts {
		vals = append(vals, display(p.RawValue))
	}
	return vals
}

// Stats holds display-unit statistics over the stored window.
type Stats struct {
	Min  float64
	Avg  float64
	Peak float64
}

// Stats computes min/avg/peak over the window in display units. ok is false
// for an empty buffer.
func (b *Buffer) Stats(display func(float64) float64) (Stats, bool) {
	if len(b.Points) == 0 {
		return Stats{}, false
	}
	s := Stats{Min: math.MaxFloat64, Peak: -math.MaxFloat64}
	sum := 0.0
	for _, p := range b.Points {
		v := display(p.RawValue)
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Peak {
			s.Peak = v
		}
	}
	s.Avg = sum / float64(len(b.Points))
	return s, true
}

// Mean returns the arithmetic mean of vals, or false when vals is empty.
func Mean(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}
