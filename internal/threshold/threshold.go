// Package threshold derives a sensor's operating threshold from a
// user-set baseline and allowed drop percentage, and persists the inputs.
package threshold

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/history"
	"github.com/luki/sensordash/internal/profile"
	"github.com/luki/sensordash/internal/store"
)

const (
	// DefaultDropPercent applies until the user sets one.
	DefaultDropPercent = 10.0
	// AverageWindow is the number of readings behind "use avg(10)".
	AverageWindow = 10
)

// Storage keys. threshold:<id> is written for inspection only and never read.
func BaselineKey(id string) string  { return "baseline:" + id }
func DropKey(id string) string      { return "dropPct:" + id }
func ThresholdKey(id string) string { return "threshold:" + id }

// State is the per-sensor threshold configuration. Threshold is always
// derived from the other fields.
type State struct {
	Baseline    float64
	HasBaseline bool
	DropPercent float64
	Threshold   float64
}

// Derive computes the threshold for a baseline/drop pair, falling back to
// def when no baseline is set.
func Derive(baseline float64, hasBaseline bool, dropPercent, def float64) float64 {
	if !hasBaseline {
		return def
	}
	return profile.RoundHalfUp(baseline * (1 - dropPercent/100))
}

// ClampPercent limits p to [0,100].
func ClampPercent(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Engine owns the threshold state of one sensor card. Every mutation
// persists its input, recomputes synchronously and fires onChange.
type Engine struct {
	id       string
	profile  profile.Profile
	kv       store.KV
	logger   *zap.Logger
	onChange func(State)
	state    State
}

// New creates an engine with default state; call Load to rehydrate.
func New(id string, p profile.Profile, kv store.KV, logger *zap.Logger, onChange func(State)) *Engine {
	e := &Engine{
		id:       id,
		profile:  p,
		kv:       kv,
		logger:   logger.With(zap.String("sensor_id", id)),
		onChange: onChange,
		state:    State{DropPercent: DefaultDropPercent},
	}
	e.state.Threshold = p.DefaultThreshold
	return e
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	return e.state
}

// Load restores baseline and drop percent from the store and recomputes.
// Missing or unreadable values fall back to defaults.
func (e *Engine) Load(ctx context.Context) {
	if v, ok := e.load(ctx, BaselineKey(e.id)); ok {
		e.state.Baseline = v
		e.state.HasBaseline = true
	}
	if v, ok := e.load(ctx, DropKey(e.id)); ok {
		e.state.DropPercent = ClampPercent(v)
	}
	e.Recompute()
}

func (e *Engine) load(ctx context.Context, key string) (float64, bool) {
	raw, ok, err := e.kv.Get(ctx, key)
	if err != nil {
		e.logger.Warn("settings read failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !finite(v) {
		e.logger.Warn("ignoring unreadable setting", zap.String("key", key), zap.String("value", raw))
		return 0, false
	}
	return v, true
}

func (e *Engine) persist(key string, v float64) {
	if err := e.kv.Set(context.Background(), key, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		e.logger.Warn("settings write failed", zap.String("key", key), zap.Error(err))
	}
}

// SetBaseline stores a new baseline. Non-finite values are ignored.
func (e *Engine) SetBaseline(v float64) {
	if !finite(v) {
		return
	}
	e.state.Baseline = v
	e.state.HasBaseline = true
	e.persist(BaselineKey(e.id), v)
	e.Recompute()
}

// SetDropPercent stores a new allowed drop, clamped to [0,100]. Non-finite
// values are ignored.
func (e *Engine) SetDropPercent(p float64) {
	if !finite(p) {
		return
	}
	p = ClampPercent(p)
	e.state.DropPercent = p
	e.persist(DropKey(e.id), p)
	e.Recompute()
}

// ParseAndSetBaseline applies text typed by the user. Unparsable or empty
// text leaves the state unchanged.
func (e *Engine) ParseAndSetBaseline(text string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || !finite(v) {
		return false
	}
	e.SetBaseline(v)
	return true
}

// ParseAndSetDropPercent is ParseAndSetBaseline for the drop percent.
func (e *Engine) ParseAndSetDropPercent(text string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || !finite(v) {
		return false
	}
	e.SetDropPercent(v)
	return true
}

// SetBaselineFromLatest uses the latest rendered display value when there
// is one, else the last history point. The baseline is rounded to a whole
// display unit.
func (e *Engine) SetBaselineFromLatest(latest float64, hasLatest bool, h *history.Buffer) bool {
	var disp float64
	switch {
	case hasLatest && finite(latest):
		disp = latest
	case h != nil:
		p, ok := h.Last()
		if !ok {
			return false
		}
		disp = e.profile.Display(p.RawValue)
	default:
		return false
	}
	e.SetBaseline(profile.RoundHalfUp(disp))
	return true
}

// SetBaselineFromAverage uses the rounded mean display value of the last n
// history points. An empty history is a no-op.
func (e *Engine) SetBaselineFromAverage(h *history.Buffer, n int) bool {
	if h == nil {
		return false
	}
	avg, ok := history.Mean(h.LastN(n, e.profile.Display))
	if !ok {
		return false
	}
	e.SetBaseline(profile.RoundHalfUp(avg))
	return true
}

// Recompute re-derives the threshold and notifies the redraw hook.
func (e *Engine) Recompute() {
	e.state.Threshold = Derive(e.state.Baseline, e.state.HasBaseline, e.state.DropPercent, e.profile.DefaultThreshold)
	if e.state.HasBaseline {
		e.persist(ThresholdKey(e.id), e.state.Threshold)
	}
	if e.onChange != nil {
		e.onChange(e.state)
	}
}
