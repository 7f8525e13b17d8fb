// Command emberfell runs the world server: it binds the entity engine to a
// persistence backend, bootstraps the world, and sweeps dirty entities to
// disk on an interval until told to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberfell/emberfell/internal/config"
	"github.com/emberfell/emberfell/internal/entity"
	"github.com/emberfell/emberfell/internal/store"
	"github.com/emberfell/emberfell/internal/store/bolt"
	"github.com/emberfell/emberfell/internal/store/jsonfile"
	"github.com/emberfell/emberfell/internal/store/memory"
	"github.com/emberfell/emberfell/internal/world"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "emberfell: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "emberfell.yaml", "Configuration file")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error; overrides config)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	var rooms, characters store.Store
	switch cfg.Store {
	case "memory":
		rooms = memory.New()
		characters = memory.New()
	case "json":
		roomsDir, err := jsonfile.New(filepath.Join(cfg.DataDir, "rooms"))
		if err != nil {
			return err
		}
		charsDir, err := jsonfile.New(filepath.Join(cfg.DataDir, "characters"))
		if err != nil {
			return err
		}
		rooms, characters = roomsDir, charsDir
		go watchStore(ctx, logger, "room", roomsDir)
		go watchStore(ctx, logger, "character", charsDir)
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
		db, err := bolt.Open(filepath.Join(cfg.DataDir, "world.db"))
		if err != nil {
			return err
		}
		defer db.Close()
		if rooms, err = db.Bucket("rooms"); err != nil {
			return err
		}
		if characters, err = db.Bucket("characters"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	reg := entity.New(logger)
	reg.SetMetrics(entity.NewMetrics(prometheus.DefaultRegisterer))
	w, err := world.Register(reg, world.Options{
		Rooms:      rooms,
		Characters: characters,
		CacheSize:  cfg.CacheSize,
	})
	if err != nil {
		return err
	}
	origin, err := w.EnsureOrigin()
	if err != nil {
		return fmt.Errorf("bootstrapping world: %w", err)
	}
	logger.Info("World ready", "store", cfg.Store, "origin", origin.UID())

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(time.Duration(cfg.SaveInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := reg.SaveAll(); err != nil {
				logger.Error("Save sweep failed", "err", err)
			}
		case <-ctx.Done():
			logger.Info("Shutting down")
			if _, err := reg.SaveAll(); err != nil {
				return fmt.Errorf("final save sweep: %w", err)
			}
			logger.Info("World saved")
			return nil
		}
	}
}

// watchStore logs store records modified outside this process. Hand-editing a
// record while the entity is live means the next save sweep will overwrite
// the edit; the log line makes that visible.
func watchStore(ctx context.Context, logger *slog.Logger, typeName string, s *jsonfile.Store) {
	err := s.Watch(ctx, func(key string) {
		logger.Info("Record changed on disk", "type", typeName, "key", key)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Store watch stopped", "type", typeName, "err", err)
	}
}
