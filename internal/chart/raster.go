package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterCanvas draws into an RGBA image using go-chart's rasterizer, with
// labels set in the 7x13 bitmap face.
type RasterCanvas struct {
	img   *image.RGBA
	gc    *drawing.RasterGraphicContext
	scale float64
	err   error
}

// NewRasterCanvas returns a canvas with no pixels allocated yet.
func NewRasterCanvas() *RasterCanvas {
	return &RasterCanvas{scale: 1}
}

func (r *RasterCanvas) Size() (int, int) {
	if r.img == nil {
		return 0, 0
	}
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

func (r *RasterCanvas) Resize(w, h int) {
	r.img = image.NewRGBA(image.Rect(0, 0, w, h))
	r.scale = 1
	r.gc, r.err = drawing.NewRasterGraphicContext(r.img)
}

func (r *RasterCanvas) SetScale(s float64) { r.scale = s }

func (r *RasterCanvas) ready() bool {
	return r.img != nil && r.gc != nil && r.err == nil
}

func (r *RasterCanvas) ClearRect(x, y, w, h float64) {
	if r.img == nil {
		return
	}
	rect := image.Rect(
		int(math.Floor(x*r.scale)), int(math.Floor(y*r.scale)),
		int(math.Ceil((x+w)*r.scale)), int(math.Ceil((y+h)*r.scale)),
	)
	draw.Draw(r.img, rect, image.White, image.Point{}, draw.Src)
}

func (r *RasterCanvas) StrokePath(pts []Point, st Stroke) {
	if !r.ready() || len(pts) == 0 {
		return
	}
	r.gc.BeginPath()
	r.gc.SetStrokeColor(parseColor(st.Color))
	r.gc.SetLineWidth(st.Width * r.scale)
	if len(st.Dash) > 0 {
		dash := make([]float64, len(st.Dash))
		for i, d := range st.Dash {
			dash[i] = d * r.scale
		}
		r.gc.SetLineDash(dash, 0)
	} else {
		r.gc.SetLineDash(nil, 0)
	}
	r.gc.MoveTo(pts[0].X*r.scale, pts[0].Y*r.scale)
	for _, p := range pts[1:] {
		r.gc.LineTo(p.X*r.scale, p.Y*r.scale)
	}
	r.gc.Stroke()
}

func (r *RasterCanvas) FillCircle(c Point, radius float64, col string) {
	if !r.ready() {
		return
	}
	r.gc.BeginPath()
	r.gc.SetFillColor(parseColor(col))
	r.gc.ArcTo(c.X*r.scale, c.Y*r.scale, radius*r.scale, radius*r.scale, 0, 2*math.Pi)
	r.gc.Close()
	r.gc.Fill()
}

func (r *RasterCanvas) FillText(text string, at Point, align Align, col string) {
	if r.img == nil {
		return
	}
	face := basicfont.Face7x13
	x := at.X * r.scale
	width := float64(font.MeasureString(face, text).Ceil())
	switch align {
	case AlignCenter:
		x -= width / 2
	case AlignRight:
		x -= width
	}
	dr := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(parseColor(col)),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(int(math.Round(x))), Y: fixed.I(int(math.Round(at.Y * r.scale)))},
	}
	dr.DrawString(text)
}

// Image returns the rendered image, or an error if the rasterizer could not
// be set up.
func (r *RasterCanvas) Image() (image.Image, error) {
	if r.err != nil {
		return nil, fmt.Errorf("raster context: %w", r.err)
	}
	if r.img == nil {
		return nil, fmt.Errorf("raster canvas not sized")
	}
	return r.img, nil
}

// EncodePNG writes the rendered image as PNG.
func (r *RasterCanvas) EncodePNG(w io.Writer) error {
	img, err := r.Image()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// parseColor converts "#rgb" or "#rrggbb" to a colour. Anything else is
// black.
func parseColor(s string) color.Color {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 3 && len(hex) != 6 {
		return drawing.ColorBlack
	}
	return drawing.ColorFromHex(hex)
}
