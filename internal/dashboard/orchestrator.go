package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/telemetry"
)

// DefaultInterval is the poll period of the refresh loop.
const DefaultInterval = 2 * time.Second

// ErrCycleInFlight is returned when a cycle is requested while the previous
// one is still running.
var ErrCycleInFlight = errors.New("refresh cycle already in flight")

// Step identifies one fetch of a refresh cycle.
type Step int

const (
	StepSensors Step = iota
	StepLive
	StepHistory
)

func (s Step) String() string {
	switch s {
	case StepSensors:
		return "sensors"
	case StepLive:
		return "live"
	case StepHistory:
		return "history"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepOutcome is the result of one fetch.
type StepOutcome struct {
	Step     Step
	SensorID string // set for StepHistory
	Err      error
}

// Snapshot is everything fetched during one cycle. It is built without
// touching the registry so it can be produced off the UI goroutine.
type Snapshot struct {
	At        time.Time
	Sensors   []telemetry.Sensor
	Live      map[string]telemetry.ReadingPoint
	Histories map[string][]telemetry.ReadingPoint
	Outcomes  []StepOutcome
}

// Aborted reports whether the sensor list or live fetch failed.
func (s Snapshot) Aborted() bool {
	for _, o := range s.Outcomes {
		if o.Err != nil && o.Step != StepHistory {
			return true
		}
	}
	return false
}

// Err joins all failed steps, or nil.
func (s Snapshot) Err() error {
	var errs []error
	for _, o := range s.Outcomes {
		if o.Err == nil {
			continue
		}
		if o.SensorID != "" {
			errs = append(errs, fmt.Errorf("%s %s: %w", o.Step, o.SensorID, o.Err))
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", o.Step, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Report summarises an applied cycle.
type Report struct {
	Snapshot
	Created int
	Online  int
}

// ReadingRecorder receives every live reading applied to a card.
type ReadingRecorder interface {
	Record(sensorID string, p telemetry.ReadingPoint, display float64) error
}

// Orchestrator runs the refresh cycle against a hub.
type Orchestrator struct {
	src         telemetry.Source
	reg         *Registry
	logger      *zap.Logger
	recorder    ReadingRecorder
	inFlight    atomic.Bool
	initialized atomic.Bool
}

// NewOrchestrator wires a hub source to a registry. recorder may be nil.
func NewOrchestrator(src telemetry.Source, reg *Registry, recorder ReadingRecorder, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		src:      src,
		reg:      reg,
		logger:   logger,
		recorder: recorder,
	}
}

// Initialized reports whether cards were created from a sensor list.
func (o *Orchestrator) Initialized() bool {
	return o.initialized.Load()
}

// Begin marks a cycle as in flight. It returns false if one already is.
func (o *Orchestrator) Begin() bool {
	return o.inFlight.CompareAndSwap(false, true)
}

// End clears the in-flight mark set by Begin.
func (o *Orchestrator) End() {
	o.inFlight.Store(false)
}

// Fetch performs the network part of a cycle. A failing sensor list or
// live fetch stops it; a failing history fetch only skips that sensor.
func (o *Orchestrator) Fetch(ctx context.Context) Snapshot {
	s := Snapshot{At: time.Now(), Histories: make(map[string][]telemetry.ReadingPoint)}

	sensors, err := o.src.Sensors(ctx)
	s.Outcomes = append(s.Outcomes, StepOutcome{Step: StepSensors, Err: err})
	if err != nil {
		return s
	}
	s.Sensors = sensors

	live, err := o.src.Live(ctx)
	s.Outcomes = append(s.Outcomes, StepOutcome{Step: StepLive, Err: err})
	if err != nil {
		return s
	}
	s.Live = live

	for _, sensor := range sensors {
		pts, err := o.src.History(ctx, sensor.ID)
		s.Outcomes = append(s.Outcomes, StepOutcome{Step: StepHistory, SensorID: sensor.ID, Err: err})
		if err != nil {
			continue
		}
		s.Histories[sensor.ID] = pts
	}
	return s
}

// Apply folds a snapshot into the registry. Cards whose history fetch
// failed keep their previous history.
func (o *Orchestrator) Apply(ctx context.Context, s Snapshot) Report {
	rep := Report{Snapshot: s}
	if s.Sensors != nil {
		rep.Created = o.reg.Ensure(ctx, s.Sensors)
		if o.reg.Len() > 0 && o.initialized.CompareAndSwap(false, true) {
			o.logger.Info("dashboard initialized", zap.Int("cards", o.reg.Len()))
		}
	}
	if s.Aborted() {
		o.logger.Debug("refresh cycle aborted", zap.Error(s.Err()))
		return rep
	}

	for _, sensor := range s.Sensors {
		status := telemetry.StatusFrom(s.Live, sensor.ID)
		if display, ok := o.reg.setLive(sensor.ID, status); ok {
			rep.Online++
			if o.recorder != nil {
				if err := o.recorder.Record(sensor.ID, *status.LastReading, display); err != nil {
					o.logger.Warn("recording reading failed", zap.String("sensor_id", sensor.ID), zap.Error(err))
				}
			}
		}
		if pts, ok := s.Histories[sensor.ID]; ok {
			o.reg.setHistory(sensor.ID, pts)
		}
	}

	if err := s.Err(); err != nil {
		o.logger.Debug("refresh cycle partially failed", zap.Error(err))
	}
	return rep
}

// RunOnce runs a complete cycle unless one is already in flight.
func (o *Orchestrator) RunOnce(ctx context.Context) (Report, error) {
	if !o.Begin() {
		return Report{}, ErrCycleInFlight
	}
	defer o.End()
	return o.Apply(ctx, o.Fetch(ctx)), nil
}

// Run polls every interval until ctx is done. Cycle failures are logged and
// never stop the loop.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration, onCycle func(Report)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := o.RunOnce(ctx)
		switch {
		case err != nil:
			o.logger.Warn("skipping tick", zap.Error(err))
		case onCycle != nil:
			onCycle(rep)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}
