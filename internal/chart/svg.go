package chart

import (
	"bytes"
	"fmt"
	"html"
	"strings"
)

// SVGCanvas draws into an SVG document sized to the backing buffer.
type SVGCanvas struct {
	width, height int
	scale         float64
	body          bytes.Buffer
}

// NewSVGCanvas returns an empty SVG canvas.
func NewSVGCanvas() *SVGCanvas {
	return &SVGCanvas{scale: 1}
}

func (s *SVGCanvas) Size() (int, int) { return s.width, s.height }

func (s *SVGCanvas) Resize(w, h int) {
	s.width, s.height = w, h
	s.scale = 1
	s.body.Reset()
}

func (s *SVGCanvas) SetScale(f float64) { s.scale = f }

func (s *SVGCanvas) px(v float64) string {
	return trimFloat(v * s.scale)
}

// ClearRect paints the area white; the document is rebuilt on every draw so
// there is nothing underneath to erase.
func (s *SVGCanvas) ClearRect(x, y, w, h float64) {
	if x == 0 && y == 0 {
		s.body.Reset()
	}
	fmt.Fprintf(&s.body, "<rect x=\"%s\" y=\"%s\" width=\"%s\" height=\"%s\" fill=\"white\"/>\n",
		s.px(x), s.px(y), s.px(w), s.px(h))
}

func (s *SVGCanvas) StrokePath(pts []Point, st Stroke) {
	if len(pts) == 0 {
		return
	}
	coords := make([]string, len(pts))
	for i, p := range pts {
		coords[i] = s.px(p.X) + "," + s.px(p.Y)
	}
	dash := ""
	if len(st.Dash) > 0 {
		parts := make([]string, len(st.Dash))
		for i, d := range st.Dash {
			parts[i] = s.px(d)
		}
		dash = fmt.Sprintf(" stroke-dasharray=\"%s\"", strings.Join(parts, " "))
	}
	fmt.Fprintf(&s.body, "<polyline points=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"%s\"%s/>\n",
		strings.Join(coords, " "), st.Color, s.px(st.Width), dash)
}

func (s *SVGCanvas) FillCircle(c Point, r float64, color string) {
	fmt.Fprintf(&s.body, "<circle cx=\"%s\" cy=\"%s\" r=\"%s\" fill=\"%s\"/>\n",
		s.px(c.X), s.px(c.Y), s.px(r), color)
}

func (s *SVGCanvas) FillText(text string, at Point, align Align, color string) {
	anchor := "start"
	switch align {
	case AlignCenter:
		anchor = "middle"
	case AlignRight:
		anchor = "end"
	}
	fmt.Fprintf(&s.body, "<text x=\"%s\" y=\"%s\" fill=\"%s\" font-family=\"sans-serif\" font-size=\"%s\" text-anchor=\"%s\">%s</text>\n",
		s.px(at.X), s.px(at.Y), color, s.px(12), anchor, html.EscapeString(text))
}

// Bytes returns the complete SVG document.
func (s *SVGCanvas) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n",
		s.width, s.height, s.width, s.height)
	buf.Write(s.body.Bytes())
	buf.WriteString("</svg>")
	return buf.Bytes()
}

func trimFloat(v float64) string {
	out := strings.TrimRight(fmt.Sprintf("%.2f", v), "0")
	return strings.TrimSuffix(out, ".")
}
