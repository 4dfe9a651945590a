package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/dashboard"
	"github.com/luki/sensordash/internal/store"
	"github.com/luki/sensordash/internal/telemetry"
)

type hub struct{}

func (hub) Sensors(context.Context) ([]telemetry.Sensor, error) {
	return []telemetry.Sensor{{ID: "current", Name: "Pump current"}}, nil
}

func (hub) Live(context.Context) (map[string]telemetry.ReadingPoint, error) {
	return map[string]telemetry.ReadingPoint{"current": {Timestamp: time.Now().UnixMilli(), RawValue: 0.39}}, nil
}

func (hub) History(context.Context, string) ([]telemetry.ReadingPoint, error) {
	now := time.Now().UnixMilli()
	return []telemetry.ReadingPoint{
		{Timestamp: now - 4000, RawValue: 0.41},
		{Timestamp: now - 2000, RawValue: 0.40},
		{Timestamp: now, RawValue: 0.39},
	}, nil
}

func newServer(t *testing.T) *Server {
	return newServerIn(t, t.TempDir())
}

func newServerIn(t *testing.T, dir string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := dashboard.NewRegistry(store.NewMemoryKV(), zap.NewNop(), dashboard.DefaultHistoryCapacity)
	_, err := dashboard.NewOrchestrator(hub{}, reg, nil, zap.NewNop()).RunOnce(context.Background())
	require.NoError(t, err)
	return New(reg, dir, zap.NewNop())
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(newServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestListCards(t *testing.T) {
	rec := do(newServer(t), http.MethodGet, "/api/cards", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cards []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "current", cards[0]["id"])
	assert.Equal(t, "390 mA", cards[0]["value_text"])
	assert.Equal(t, "SENSOR NOT OK", cards[0]["verdict"])
	assert.Equal(t, true, cards[0]["banner_visible"])
}

func TestGetCardUnknown(t *testing.T) {
	rec := do(newServer(t), http.MethodGet, "/api/cards/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutSettings(t *testing.T) {
	s := newServer(t)

	rec := do(s, http.MethodPut, "/api/cards/current/settings", `{"baseline":"420","drop_pct":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var v map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 378.0, v["threshold"])
	assert.Equal(t, "Sensor OK", v["verdict"])

	rec = do(s, http.MethodPut, "/api/cards/current/settings", `{"baseline":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "420", v["baseline"], "garbage is ignored")

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPut, "/api/cards/current/settings", `{`).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPut, "/api/cards/nope/settings", `{}`).Code)
}

func TestChartSVG(t *testing.T) {
	rec := do(newServer(t), http.MethodGet, "/chart/current.svg?w=400&h=200&dpr=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `width="800" height="400"`)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "<circle"))
}

func TestChartPNG(t *testing.T) {
	rec := do(newServer(t), http.MethodGet, "/chart/current.png?w=0&dpr=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx(), "zero width falls back")
	assert.Equal(t, 160, img.Bounds().Dy())
}

func TestChartNotFound(t *testing.T) {
	s := newServer(t)
	for _, target := range []string{"/chart/nope.svg", "/chart/nope.png", "/chart/current.gif", "/chart/current"} {
		assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, target, "").Code, target)
	}
}

func TestRecordings(t *testing.T) {
	dir := t.TempDir()
	rec, err := store.NewRecorder(dir)
	require.NoError(t, err)
	ts := time.Date(2026, 2, 21, 14, 30, 0, 0, time.Local)
	require.NoError(t, rec.Record("current", telemetry.ReadingPoint{Timestamp: ts.UnixMilli(), RawValue: 0.39}, 390))
	require.NoError(t, rec.Record("photo", telemetry.ReadingPoint{Timestamp: ts.UnixMilli(), RawValue: 812}, 812))
	rec.Close()
	s := newServerIn(t, dir)

	resp := do(s, http.MethodGet, "/api/recordings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Days []string `json:"days"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, []string{"2026-02-21"}, list.Days)

	resp = do(s, http.MethodGet, "/api/recordings/2026-02-21?sensor=current", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var readings []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, "current", readings[0]["sensor"])
	assert.Equal(t, 390.0, readings[0]["display"])

	resp = do(s, http.MethodGet, "/api/recordings/2026-02-21", "")
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &readings))
	assert.Len(t, readings, 2)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/recordings/2026-02-22", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/recordings/yesterday", "").Code)
}

func TestRecordingsMissingDir(t *testing.T) {
	s := newServerIn(t, filepath.Join(t.TempDir(), "absent"))

	resp := do(s, http.MethodGet, "/api/recordings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"days":[]}`, resp.Body.String())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
