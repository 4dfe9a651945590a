package chart

// OpKind identifies a recorded drawing call.
type OpKind int

const (
	OpResize OpKind = iota
	OpScale
	OpClear
	OpStroke
	OpCircle
	OpText
)

// Op is one recorded drawing call.
type Op struct {
	Kind   OpKind
	Points []Point
	Stroke Stroke
	Radius float64
	Text   string
	Align  Align
	Color  string
	Scale  float64
	Width  int
	Height int
}

// Recorder is a Canvas that only remembers what was drawn. It backs
// headless checks of the chart layout.
type Recorder struct {
	width, height int
	scale         float64
	Ops           []Op
}

// NewRecorder returns a recorder with an unallocated buffer.
func NewRecorder() *Recorder {
	return &Recorder{scale: 1}
}

func (r *Recorder) Size() (int, int) { return r.width, r.height }

func (r *Recorder) Resize(w, h int) {
	r.width, r.height = w, h
	r.scale = 1
	r.Ops = append(r.Ops, Op{Kind: OpResize, Width: w, Height: h})
}

func (r *Recorder) SetScale(s float64) {
	r.scale = s
	r.Ops = append(r.Ops, Op{Kind: OpScale, Scale: s})
}

func (r *Recorder) ClearRect(x, y, w, h float64) {
	r.Ops = append(r.Ops, Op{Kind: OpClear, Points: []Point{{x, y}, {x + w, y + h}}})
}

func (r *Recorder) StrokePath(pts []Point, st Stroke) {
	r.Ops = append(r.Ops, Op{Kind: OpStroke, Points: append([]Point(nil), pts...), Stroke: st, Color: st.Color})
}

func (r *Recorder) FillCircle(c Point, radius float64, color string) {
	r.Ops = append(r.Ops, Op{Kind: OpCircle, Points: []Point{c}, Radius: radius, Color: color})
}

func (r *Recorder) FillText(text string, at Point, align Align, color string) {
	r.Ops = append(r.Ops, Op{Kind: OpText, Points: []Point{at}, Text: text, Align: align, Color: color})
}

// Reset forgets recorded ops but keeps the buffer size and scale.
func (r *Recorder) Reset() {
	r.Ops = r.Ops[:0]
}

// Count returns how many ops of kind were recorded.
func (r *Recorder) Count(kind OpKind) int {
	n := 0
	for _, op := range r.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Scale returns the current CSS-to-device scale.
func (r *Recorder) Scale() float64 { return r.scale }
