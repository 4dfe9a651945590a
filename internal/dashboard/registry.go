// Package dashboard owns the per-sensor card state of the dashboard and the
// poll cycle that refreshes it.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/chart"
	"github.com/luki/sensordash/internal/history"
	"github.com/luki/sensordash/internal/profile"
	"github.com/luki/sensordash/internal/store"
	"github.com/luki/sensordash/internal/telemetry"
	"github.com/luki/sensordash/internal/threshold"
)

// DefaultHistoryCapacity keeps whatever window the hub sends. The hub owns
// truncation; a positive capacity only guards against runaway responses.
const DefaultHistoryCapacity = 0

type card struct {
	id        string
	name      string
	profile   profile.Profile
	engine    *threshold.Engine
	history   *history.Buffer
	live      telemetry.LiveStatus
	latest    float64 // most recently rendered display value
	hasLatest bool
	polled    bool
	redraws   int
}

// Registry maps sensor ids to their cards. It is created once at start-up
// and shared by the poll loop, the UI and the chart server.
type Registry struct {
	mu         sync.RWMutex
	cards      map[string]*card
	order      []string
	kv         store.KV
	logger     *zap.Logger
	historyCap int
}

// NewRegistry creates an empty registry persisting thresholds in kv.
func NewRegistry(kv store.KV, logger *zap.Logger, historyCap int) *Registry {
	return &Registry{
		cards:      make(map[string]*card),
		kv:         kv,
		logger:     logger,
		historyCap: historyCap,
	}
}

// Ensure creates cards for sensors not seen before and returns how many
// were created. Existing cards are never recreated. Saved settings are read
// before the write lock is taken so slow KV backends do not block readers.
func (r *Registry) Ensure(ctx context.Context, sensors []telemetry.Sensor) int {
	var fresh []*card
	r.mu.RLock()
	for _, s := range sensors {
		if _, ok := r.cards[s.ID]; !ok && s.ID != "" {
			fresh = append(fresh, r.newCard(s))
		}
	}
	r.mu.RUnlock()
	if len(fresh) == 0 {
		return 0
	}

	for _, c := range fresh {
		c.engine.Load(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	created := 0
	for _, c := range fresh {
		if _, ok := r.cards[c.id]; ok {
			continue
		}
		r.cards[c.id] = c
		r.order = append(r.order, c.id)
		created++

		r.logger.Info("card created",
			zap.String("sensor_id", c.id),
			zap.String("profile", c.profile.Name),
			zap.Float64("threshold", c.engine.State().Threshold),
		)
	}
	return created
}

// newCard builds an unregistered card. Its engine bumps the redraw counter
// on every threshold change.
func (r *Registry) newCard(s telemetry.Sensor) *card {
	c := &card{
		id:      s.ID,
		name:    s.Name,
		profile: profile.For(s.ID),
		history: history.NewBuffer(r.historyCap),
	}
	c.engine = threshold.New(s.ID, c.profile, r.kv, r.logger, func(threshold.State) {
		c.redraws++
	})
	return c
}

// IDs returns the card ids in creation order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of cards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}

func (c *card) inputs() ViewInputs {
	return ViewInputs{
		ID:        c.id,
		Name:      c.name,
		Profile:   c.profile,
		Threshold: c.engine.State(),
		Live:      c.live,
		History:   c.history.Points,
		Polled:    c.polled,
	}
}

// View returns the current view of one card.
func (r *Registry) View(id string) (CardViewState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cards[id]
	if !ok {
		return CardViewState{}, false
	}
	return Project(c.inputs()), true
}

// Views returns the views of all cards in creation order.
func (r *Registry) Views() []CardViewState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]CardViewState, 0, len(r.order))
	for _, id := range r.order {
		views = append(views, Project(r.cards[id].inputs()))
	}
	return views
}

// ChartData is a copy of what the chart of one card is drawn from.
type ChartData struct {
	Profile   profile.Profile
	Threshold float64
	Points    []telemetry.ReadingPoint
}

// Chart returns a copy of the chart inputs of one card.
func (r *Registry) Chart(id string) (ChartData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cards[id]
	if !ok {
		return ChartData{}, false
	}
	return ChartData{
		Profile:   c.profile,
		Threshold: c.engine.State().Threshold,
		Points:    append([]telemetry.ReadingPoint(nil), c.history.Points...),
	}, true
}

// RenderChart draws the chart of one card onto cv.
func (r *Registry) RenderChart(id string, cv chart.Canvas, g chart.Geometry) bool {
	d, ok := r.Chart(id)
	if !ok {
		return false
	}
	chart.Render(cv, d.Profile, d.Threshold, d.Points, g)
	return true
}

// Redraws reports how many times the chart of a card was invalidated.
// Charts are never cached: the TUI and the chart server draw them on demand
// from the current state, so this counter is instrumentation only.
func (r *Registry) Redraws(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cards[id]; ok {
		return c.redraws
	}
	return 0
}

// Threshold returns the threshold state of one card.
func (r *Registry) Threshold(id string) (threshold.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cards[id]
	if !ok {
		return threshold.State{}, false
	}
	return c.engine.State(), true
}

func (r *Registry) withCard(id string, fn func(c *card) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return false
	}
	return fn(c)
}

// SetBaseline sets a card's baseline in display units.
func (r *Registry) SetBaseline(id string, v float64) bool {
	return r.withCard(id, func(c *card) bool {
		c.engine.SetBaseline(v)
		return true
	})
}

// SetDropPercent sets a card's allowed drop, clamped to [0,100].
func (r *Registry) SetDropPercent(id string, p float64) bool {
	return r.withCard(id, func(c *card) bool {
		c.engine.SetDropPercent(p)
		return true
	})
}

// SetBaselineText applies user-typed baseline text; garbage is ignored.
func (r *Registry) SetBaselineText(id, text string) bool {
	return r.withCard(id, func(c *card) bool {
		return c.engine.ParseAndSetBaseline(text)
	})
}

// SetDropPercentText applies user-typed drop percent text.
func (r *Registry) SetDropPercentText(id, text string) bool {
	return r.withCard(id, func(c *card) bool {
		return c.engine.ParseAndSetDropPercent(text)
	})
}

// SetBaselineFromLatest uses the card's current value as baseline.
func (r *Registry) SetBaselineFromLatest(id string) bool {
	return r.withCard(id, func(c *card) bool {
		return c.engine.SetBaselineFromLatest(c.latest, c.hasLatest, c.history)
	})
}

// SetBaselineFromAverage uses the mean of the last n readings as baseline.
func (r *Registry) SetBaselineFromAverage(id string, n int) bool {
	return r.withCard(id, func(c *card) bool {
		return c.engine.SetBaselineFromAverage(c.history, n)
	})
}

// Recompute re-derives a card's threshold and counts a redraw.
func (r *Registry) Recompute(id string) bool {
	return r.withCard(id, func(c *card) bool {
		c.engine.Recompute()
		return true
	})
}

// setLive replaces the live status of a card. It returns the display value
// when the card is online.
func (r *Registry) setLive(id string, status telemetry.LiveStatus) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return 0, false
	}
	c.live = status
	c.polled = true
	if !status.Online || status.LastReading == nil {
		return 0, false
	}
	c.latest = c.profile.Display(status.LastReading.RawValue)
	c.hasLatest = true
	return c.latest, true
}

// setHistory replaces a card's history wholesale and redraws its chart.
func (r *Registry) setHistory(id string, points []telemetry.ReadingPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return
	}
	c.history.Replace(points)
	c.redraws++
}
