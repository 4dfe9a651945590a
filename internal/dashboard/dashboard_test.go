package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/chart"
	"github.com/luki/sensordash/internal/health"
	"github.com/luki/sensordash/internal/store"
	"github.com/luki/sensordash/internal/telemetry"
)

var t0 = time.Date(2026, 2, 21, 14, 0, 0, 0, time.Local).UnixMilli()

type fakeHub struct {
	sensors    []telemetry.Sensor
	live       map[string]telemetry.ReadingPoint
	history    map[string][]telemetry.ReadingPoint
	sensorsErr error
	liveErr    error
	historyErr map[string]error
}

func (f *fakeHub) Sensors(context.Context) ([]telemetry.Sensor, error) {
	if f.sensorsErr != nil {
		return nil, f.sensorsErr
	}
	return f.sensors, nil
}

func (f *fakeHub) Live(context.Context) (map[string]telemetry.ReadingPoint, error) {
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	return f.live, nil
}

func (f *fakeHub) History(_ context.Context, id string) ([]telemetry.ReadingPoint, error) {
	if err := f.historyErr[id]; err != nil {
		return nil, err
	}
	return f.history[id], nil
}

func reading(i int, raw float64) telemetry.ReadingPoint {
	return telemetry.ReadingPoint{Timestamp: t0 + int64(i)*2000, RawValue: raw}
}

func hubWith(raw ...float64) *fakeHub {
	var pts []telemetry.ReadingPoint
	for i, v := range raw {
		pts = append(pts, reading(i, v))
	}
	h := &fakeHub{
		sensors: []telemetry.Sensor{{ID: "current", Name: "Pump current"}, {ID: "photo", Name: "Light"}},
		live:    map[string]telemetry.ReadingPoint{},
		history: map[string][]telemetry.ReadingPoint{"current": pts},
	}
	if len(pts) > 0 {
		h.live["current"] = pts[len(pts)-1]
	}
	return h
}

func setup(t *testing.T, hub *fakeHub, kv store.KV) (*Registry, *Orchestrator) {
	t.Helper()
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	reg := NewRegistry(kv, zap.NewNop(), DefaultHistoryCapacity)
	return reg, NewOrchestrator(hub, reg, nil, zap.NewNop())
}

func runOnce(t *testing.T, o *Orchestrator) Report {
	t.Helper()
	rep, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	return rep
}

func TestScenarioBaselineSetIsOK(t *testing.T) {
	reg, o := setup(t, hubWith(0.41, 0.39), nil)
	runOnce(t, o)

	require.True(t, reg.SetBaseline("current", 420))
	require.True(t, reg.SetDropPercent("current", 10))

	v, ok := reg.View("current")
	require.True(t, ok)
	assert.Equal(t, 378.0, v.Threshold)
	assert.Equal(t, "378", v.ThresholdText)
	assert.Equal(t, 390.0, v.Value)
	assert.Equal(t, "390 mA", v.ValueText)
	assert.Equal(t, health.OK, v.Verdict)
	assert.Equal(t, "Sensor OK", v.VerdictText)
	assert.False(t, v.BannerVisible)
}

func TestScenarioDefaultThresholdIsNotOK(t *testing.T) {
	reg, o := setup(t, hubWith(0.35), nil)
	runOnce(t, o)

	v, _ := reg.View("current")
	assert.Equal(t, 400.0, v.Threshold)
	assert.Equal(t, 350.0, v.Value)
	assert.Equal(t, health.NotOK, v.Verdict)
	assert.True(t, v.BannerVisible)
	assert.Equal(t, health.BannerText, v.BannerText)
}

func TestOfflineSensor(t *testing.T) {
	reg, o := setup(t, hubWith(0.45), nil)
	runOnce(t, o)

	v, _ := reg.View("photo")
	assert.False(t, v.Online)
	assert.Equal(t, "offline", v.StatusText)
	assert.Equal(t, "OFFLINE", v.VerdictText)
	assert.False(t, v.BannerVisible)
	assert.Equal(t, "–", v.ValueText)
}

func TestCardsCreatedOnce(t *testing.T) {
	hub := hubWith(0.45)
	reg, o := setup(t, hub, nil)
	assert.False(t, o.Initialized())

	rep := runOnce(t, o)
	assert.Equal(t, 2, rep.Created)
	assert.True(t, o.Initialized())

	require.True(t, reg.SetBaseline("current", 500))
	rep = runOnce(t, o)
	assert.Zero(t, rep.Created)
	st, _ := reg.Threshold("current")
	assert.Equal(t, 500.0, st.Baseline, "existing card was not recreated")

	hub.sensors = append(hub.sensors, telemetry.Sensor{ID: "humidity", Name: "Humidity"})
	rep = runOnce(t, o)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, []string{"current", "photo", "humidity"}, reg.IDs())
}

func TestCardRehydratesThreshold(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "baseline:current", "420"))
	require.NoError(t, kv.Set(ctx, "dropPct:current", "10"))

	reg, o := setup(t, hubWith(0.39), kv)
	runOnce(t, o)

	v, _ := reg.View("current")
	assert.Equal(t, "420", v.BaselineText)
	assert.Equal(t, "10", v.DropText)
	assert.Equal(t, 378.0, v.Threshold)
}

func TestHistoryFailureKeepsPreviousChart(t *testing.T) {
	hub := hubWith(0.41, 0.40, 0.39)
	reg, o := setup(t, hub, nil)
	runOnce(t, o)

	before, _ := reg.View("current")
	beforeChart, _ := reg.Chart("current")

	hub.historyErr = map[string]error{"current": errors.New("timeout")}
	hub.live["current"] = reading(3, 0.38)
	rep := runOnce(t, o)

	assert.False(t, rep.Aborted())
	require.Error(t, rep.Err())
	assert.Contains(t, rep.Err().Error(), "history current")

	after, _ := reg.View("current")
	afterChart, _ := reg.Chart("current")
	assert.Equal(t, before.Recent, after.Recent)
	assert.Equal(t, beforeChart.Points, afterChart.Points)
	assert.Equal(t, 380.0, after.Value, "live update of the same cycle still applies")
}

func TestLiveFailureAbortsCycle(t *testing.T) {
	hub := hubWith(0.41)
	reg, o := setup(t, hub, nil)
	runOnce(t, o)
	before, _ := reg.View("current")

	hub.liveErr = errors.New("connection refused")
	hub.history["current"] = nil
	rep := runOnce(t, o)

	assert.True(t, rep.Aborted())
	after, _ := reg.View("current")
	assert.Equal(t, before, after)
}

func TestSensorsFailureBeforeInit(t *testing.T) {
	hub := hubWith(0.41)
	hub.sensorsErr = errors.New("502")
	reg, o := setup(t, hub, nil)

	rep := runOnce(t, o)
	assert.True(t, rep.Aborted())
	assert.False(t, o.Initialized())
	assert.Zero(t, reg.Len())

	hub.sensorsErr = nil
	runOnce(t, o)
	assert.True(t, o.Initialized())
	assert.Equal(t, 2, reg.Len())
}

func TestCycleInFlightGuard(t *testing.T) {
	_, o := setup(t, hubWith(0.41), nil)

	require.True(t, o.Begin())
	_, err := o.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)
	o.End()

	_, err = o.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestBaselineButtons(t *testing.T) {
	raw := []float64{0.40, 0.40, 0.40, 0.40, 0.40, 0.41, 0.41, 0.41, 0.41, 0.41, 0.42, 0.43}
	reg, o := setup(t, hubWith(raw...), nil)
	runOnce(t, o)

	require.True(t, reg.SetBaselineFromLatest("current"))
	st, _ := reg.Threshold("current")
	assert.Equal(t, 430.0, st.Baseline)

	// window is the last 10 of 12: 3×400, 5×410, 420, 430
	require.True(t, reg.SetBaselineFromAverage("current", 10))
	st, _ = reg.Threshold("current")
	assert.Equal(t, 410.0, st.Baseline)

	assert.False(t, reg.SetBaselineFromAverage("photo", 10), "no history")
	assert.False(t, reg.SetBaselineFromLatest("photo"), "no value")
	assert.False(t, reg.SetBaseline("missing", 1))
}

func TestUserEditTriggersRedraw(t *testing.T) {
	reg, o := setup(t, hubWith(0.41), nil)
	runOnce(t, o)
	n := reg.Redraws("current")

	reg.SetDropPercentText("current", "15")
	assert.Equal(t, n+1, reg.Redraws("current"))

	reg.SetBaselineText("current", "abc")
	assert.Equal(t, n+1, reg.Redraws("current"), "ignored input does not redraw")

	reg.Recompute("current")
	assert.Equal(t, n+2, reg.Redraws("current"))
}

func TestChartClampDoesNotAffectVerdict(t *testing.T) {
	hub := hubWith(1.5) // 1500 mA, far above the 500 mA axis
	reg, o := setup(t, hub, nil)
	runOnce(t, o)

	rec := chart.NewRecorder()
	require.True(t, reg.RenderChart("current", rec, chart.Geometry{CSSWidth: 300, CSSHeight: 160, DevicePixelRatio: 1}))

	var circles []chart.Op
	for _, op := range rec.Ops {
		if op.Kind == chart.OpCircle {
			circles = append(circles, op)
		}
	}
	require.Len(t, circles, 1)
	assert.InDelta(t, 10.0, circles[0].Points[0].Y, 1e-9)

	v, _ := reg.View("current")
	assert.Equal(t, 1500.0, v.Value)
	assert.Equal(t, health.OK, v.Verdict)
}

func TestProjectRecentList(t *testing.T) {
	var pts []telemetry.ReadingPoint
	for i := 0; i < 15; i++ {
		pts = append(pts, reading(i, float64(i)))
	}
	v := Project(ViewInputs{ID: "photo", History: pts, Polled: true})

	require.Len(t, v.Recent, RecentCount)
	assert.Equal(t, "14:00:28: 14", v.Recent[0])
	assert.Equal(t, "14:00:10: 5", v.Recent[9])
	assert.Equal(t, "photo", v.Name)
}

func TestProjectBeforeFirstPoll(t *testing.T) {
	v := Project(ViewInputs{ID: "photo"})
	assert.Equal(t, "Loading…", v.VerdictText)
	assert.Equal(t, "never", v.UpdatedText)
}

type memRecorder struct{ n int }

func (m *memRecorder) Record(string, telemetry.ReadingPoint, float64) error {
	m.n++
	return nil
}

func TestRecorderReceivesLiveReadings(t *testing.T) {
	rec := &memRecorder{}
	reg := NewRegistry(store.NewMemoryKV(), zap.NewNop(), DefaultHistoryCapacity)
	o := NewOrchestrator(hubWith(0.41), reg, rec, zap.NewNop())

	rep := runOnce(t, o)
	assert.Equal(t, 1, rep.Online)
	assert.Equal(t, 1, rec.n)
}

func TestRunStopsOnCancel(t *testing.T) {
	_, o := setup(t, hubWith(0.41), nil)
	ctx, cancel := context.WithCancel(context.Background())

	cycles := 0
	err := o.Run(ctx, 10*time.Millisecond, func(Report) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, cycles)
}

func TestLiveFailureStillCreatesCards(t *testing.T) {
	hub := hubWith(0.41)
	hub.liveErr = errors.New("connection reset")
	reg, o := setup(t, hub, nil)

	rep := runOnce(t, o)
	assert.True(t, rep.Aborted())
	assert.True(t, o.Initialized())
	assert.Equal(t, 2, reg.Len())

	v, _ := reg.View("current")
	assert.Equal(t, "Loading…", v.VerdictText)
	assert.Empty(t, v.Recent)
}

// switchableHub serves valid JSON until html is set, then answers the live
// and history requests with a 200 HTML page.
func switchableHub(t *testing.T, html *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(body string, switches bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if switches && html.Load() {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html>proxy error</html>"))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/api/sensors", serve(`[{"id":"current","name":"Pump current"}]`, false))
	mux.HandleFunc("/api/live", serve(`{"current":{"t":1771682402000,"v":0.39}}`, true))
	mux.HandleFunc("/api/history/current", serve(`[{"t":1771682400000,"v":0.41},{"t":1771682402000,"v":0.39}]`, true))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNonJSONResponseKeepsRenderedState(t *testing.T) {
	var html atomic.Bool
	srv := switchableHub(t, &html)
	client := telemetry.NewClient(srv.URL, time.Second, zap.NewNop())
	reg := NewRegistry(store.NewMemoryKV(), zap.NewNop(), DefaultHistoryCapacity)
	o := NewOrchestrator(client, reg, nil, zap.NewNop())

	rep := runOnce(t, o)
	require.NoError(t, rep.Err())
	before, _ := reg.View("current")
	beforeChart, _ := reg.Chart("current")
	require.True(t, before.Online)
	require.Len(t, before.Recent, 2)

	html.Store(true)
	rep = runOnce(t, o)
	assert.True(t, rep.Aborted())
	require.Error(t, rep.Err())

	after, _ := reg.View("current")
	afterChart, _ := reg.Chart("current")
	assert.Equal(t, before, after)
	assert.True(t, after.Online)
	assert.Equal(t, beforeChart.Points, afterChart.Points)
}

func TestFullBackendHistoryIsKept(t *testing.T) {
	raw := make([]float64, 80)
	for i := range raw {
		raw[i] = 0.40
	}
	reg, o := setup(t, hubWith(raw...), nil)
	runOnce(t, o)

	d, ok := reg.Chart("current")
	require.True(t, ok)
	require.Len(t, d.Points, 80)
	assert.Equal(t, t0, d.Points[0].Timestamp)

	rec := chart.NewRecorder()
	reg.RenderChart("current", rec, chart.Geometry{CSSWidth: 300, CSSHeight: 160, DevicePixelRatio: 1})
	circles := 0
	for _, op := range rec.Ops {
		if op.Kind == chart.OpCircle {
			circles++
		}
	}
	assert.Equal(t, 80, circles)
}

type slowKV struct {
	store.KV
	gets atomic.Int32
	wait chan struct{}
}

func (k *slowKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.gets.Add(1)
	<-k.wait
	return k.KV.Get(ctx, key)
}

func TestEnsureDoesNotBlockReadersDuringLoad(t *testing.T) {
	kv := &slowKV{KV: store.NewMemoryKV(), wait: make(chan struct{})}
	reg := NewRegistry(kv, zap.NewNop(), DefaultHistoryCapacity)

	done := make(chan int, 1)
	go func() {
		done <- reg.Ensure(context.Background(), []telemetry.Sensor{{ID: "current"}})
	}()
	require.Eventually(t, func() bool { return kv.gets.Load() > 0 }, time.Second, time.Millisecond)

	read := make(chan []CardViewState, 1)
	go func() { read <- reg.Views() }()
	select {
	case views := <-read:
		assert.Empty(t, views, "card is inserted only after loading")
	case <-time.After(time.Second):
		t.Fatal("reader blocked while settings were loading")
	}

	close(kv.wait)
	assert.Equal(t, 1, <-done)
	assert.Equal(t, 1, reg.Len())
}
