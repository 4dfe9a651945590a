// Command sensordash polls a sensor hub and shows one card per sensor with
// its current value, health verdict and threshold, either as a terminal
// dashboard or headless with an optional HTTP chart server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luki/sensordash/internal/config"
	"github.com/luki/sensordash/internal/dashboard"
	"github.com/luki/sensordash/internal/logger"
	"github.com/luki/sensordash/internal/monitor"
	"github.com/luki/sensordash/internal/store"
	"github.com/luki/sensordash/internal/telemetry"
	"github.com/luki/sensordash/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("cannot create data dir: %w", err)
	}
	if !cfg.Headless && cfg.Log.Output == "" {
		cfg.Log.Output = filepath.Join(cfg.DataDir, "sensordash.log")
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "sensordash", cfg.Log.Output)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openKV(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	var recorder dashboard.ReadingRecorder
	if cfg.Record {
		rec, err := store.NewRecorder(cfg.DataDir)
		if err != nil {
			return err
		}
		defer rec.Close()
		recorder = rec
		log.Info("recording readings", zap.String("dir", rec.Dir()))
	}

	client := telemetry.NewClient(cfg.API.BaseURL, cfg.API.Timeout, log)
	reg := dashboard.NewRegistry(kv, log, cfg.Poll.HistoryCapacity)
	orch := dashboard.NewOrchestrator(client, reg, recorder, log)

	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := web.New(reg, cfg.DataDir, log)
		go func() {
			if err := srv.Run(ctx, cfg.HTTP.Addr); err != nil {
				log.Error("chart server stopped", zap.Error(err))
			}
		}()
	}

	log.Info("starting",
		zap.String("api", cfg.API.BaseURL),
		zap.Duration("interval", cfg.Poll.Interval),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("headless", cfg.Headless),
	)

	if cfg.Headless {
		err := orch.Run(ctx, cfg.Poll.Interval, func(rep dashboard.Report) {
			fields := []zap.Field{
				zap.Int("cards", reg.Len()),
				zap.Int("created", rep.Created),
				zap.Int("online", rep.Online),
			}
			if err := rep.Err(); err != nil {
				log.Warn("refresh cycle failed", append(fields, zap.Bool("aborted", rep.Aborted()), zap.Error(err))...)
				return
			}
			log.Debug("refresh cycle", fields...)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	p := tea.NewProgram(
		monitor.New(ctx, reg, orch, log, monitor.Options{
			Interval:  cfg.Poll.Interval,
			ExportDir: cfg.DataDir,
			Recording: cfg.Record,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// openKV opens the configured settings backend and returns its closer.
func openKV(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.KV, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := store.DialRedis(ctx, cfg.Store.Redis.Options())
		if err != nil {
			return nil, nil, err
		}
		log.Info("settings in redis", zap.String("addr", cfg.Store.Redis.Addr))
		return store.NewRedisKV(client, cfg.Store.Redis.Prefix), func() { client.Close() }, nil
	case config.BackendMemory:
		log.Info("settings in memory, not persisted")
		return store.NewMemoryKV(), func() {}, nil
	default:
		kv, err := store.OpenFileKV(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("settings on disk", zap.String("path", cfg.Store.Path))
		return kv, func() {}, nil
	}
}
