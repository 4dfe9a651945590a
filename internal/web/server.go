// Package web serves the dashboard cards as JSON, their charts as SVG or
// PNG and the recorded readings over HTTP.
package web

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/chart"
	"github.com/luki/sensordash/internal/dashboard"
	"github.com/luki/sensordash/internal/store"
)

// DefaultGeometry is used for chart requests without w/h/dpr.
var DefaultGeometry = chart.Geometry{CSSWidth: 300, CSSHeight: 160, DevicePixelRatio: 1}

// Server exposes a registry over HTTP.
type Server struct {
	reg       *dashboard.Registry
	recordDir string
	logger    *zap.Logger
	engine    *gin.Engine
}

// New builds the router. recordDir is where the reading recorder writes its
// daily CSV files. Call gin.SetMode before New to change the mode.
func New(reg *dashboard.Registry, recordDir string, logger *zap.Logger) *Server {
	s := &Server{reg: reg, recordDir: recordDir, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.logRequests())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.engine.GET("/api/cards", s.listCards)
	s.engine.GET("/api/cards/:id", s.getCard)
	s.engine.PUT("/api/cards/:id/settings", s.putSettings)
	s.engine.GET("/chart/:file", s.getChart)
	s.engine.GET("/api/recordings", s.listRecordings)
	s.engine.GET("/api/recordings/:day", s.getRecording)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("chart server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) listCards(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Views())
}

func (s *Server) getCard(c *gin.Context) {
	v, ok := s.reg.View(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sensor"})
		return
	}
	c.JSON(http.StatusOK, v)
}

type settingsRequest struct {
	Baseline    *string `json:"baseline"`
	DropPercent *string `json:"drop_pct"`
}

// putSettings applies the same text inputs as the card's baseline and drop
// fields. Unparsable values are ignored like in the UI.
func (s *Server) putSettings(c *gin.Context) {
	id := c.Param("id")
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.reg.View(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sensor"})
		return
	}
	if req.Baseline != nil {
		s.reg.SetBaselineText(id, *req.Baseline)
	}
	if req.DropPercent != nil {
		s.reg.SetDropPercentText(id, *req.DropPercent)
	}
	v, _ := s.reg.View(id)
	c.JSON(http.StatusOK, v)
}

func (s *Server) listRecordings(c *gin.Context) {
	days, err := store.ListDays(s.recordDir)
	if errors.Is(err, fs.ErrNotExist) {
		days = []string{}
	} else if err != nil {
		s.logger.Error("listing recordings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list recordings"})
		return
	}
	if days == nil {
		days = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// getRecording returns the readings recorded on one day, optionally only
// those of ?sensor=<id>.
func (s *Server) getRecording(c *gin.Context) {
	day := c.Param("day")
	readings, err := store.LoadDay(s.recordDir, day)
	switch {
	case errors.Is(err, store.ErrInvalidDay):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording for " + day})
		return
	case err != nil:
		s.logger.Error("loading recording failed", zap.String("day", day), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read recording"})
		return
	}

	out := []store.StoredReading{}
	sensor := c.Query("sensor")
	for _, r := range readings {
		if sensor == "" || r.Sensor == sensor {
			out = append(out, r)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getChart(c *gin.Context) {
	file := c.Param("file")
	dot := strings.LastIndexByte(file, '.')
	if dot <= 0 {
		c.Status(http.StatusNotFound)
		return
	}
	id, ext := file[:dot], file[dot+1:]
	g := geometryFrom(c)

	switch ext {
	case "svg":
		cv := chart.NewSVGCanvas()
		if !s.reg.RenderChart(id, cv, g) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", cv.Bytes())
	case "png":
		cv := chart.NewRasterCanvas()
		if !s.reg.RenderChart(id, cv, g) {
			c.Status(http.StatusNotFound)
			return
		}
		var buf bytes.Buffer
		if err := cv.EncodePNG(&buf); err != nil {
			s.logger.Error("png encode failed", zap.String("sensor_id", id), zap.Error(err))
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	default:
		c.Status(http.StatusNotFound)
	}
}

// Request limits for chart sizes.
const (
	maxCSSSide = 4096
	maxDPR     = 4
)

// geometryFrom reads w, h and dpr. Missing or unparsable values keep the
// defaults; the renderer handles degenerate sizes itself.
func geometryFrom(c *gin.Context) chart.Geometry {
	g := DefaultGeometry
	if v, err := strconv.ParseFloat(c.Query("w"), 64); err == nil {
		g.CSSWidth = min(v, maxCSSSide)
	}
	if v, err := strconv.ParseFloat(c.Query("h"), 64); err == nil {
		g.CSSHeight = min(v, maxCSSSide)
	}
	if v, err := strconv.ParseFloat(c.Query("dpr"), 64); err == nil {
		g.DevicePixelRatio = min(v, maxDPR)
	}
	return g
}
