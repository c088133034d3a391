// Command voxgate is the main entry point for the Voxgate speech
// segmentation service. It runs either as a streaming WebSocket server or,
// with -analyze, as an offline WAV file analyzer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/server"
	"github.com/voxgate/voxgate/pkg/vad"
)

// version is stamped into /healthz responses and telemetry.
const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	analyzePath := flag.String("analyze", "", "analyze a WAV file offline instead of serving")
	segmentsDir := flag.String("segments-dir", "", "with -analyze, write finalized segments as WAV files here")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *analyzePath != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if *analyzePath != "" {
		if err := analyzeFile(os.Stdout, *analyzePath, *segmentsDir, cfg.Detector); err != nil {
			slog.Error("analysis failed", "file", *analyzePath, "err", err)
			return 1
		}
		return 0
	}

	slog.Info("voxgate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"sample_rate", cfg.Detector.SampleRate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	srv := server.New(cfg, observe.DefaultMetrics(), version)

	// Push energy-threshold and silence-timeout edits from config rewrites
	// into already-running streams.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		srv.ApplyDetectorUpdate(detectorUpdate(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig loads the YAML config. A missing file is fatal in server mode
// but falls back to defaults in analyze mode.
func loadConfig(path string, analyzing bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if analyzing {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	}
	return nil, err
}

// detectorUpdate extracts the live-updatable settings that changed between
// two config revisions.
func detectorUpdate(old, new *config.Config) vad.Update {
	var u vad.Update
	if old.Detector.EnergyThreshold != new.Detector.EnergyThreshold {
		thr := new.Detector.EnergyThreshold
		u.EnergyThreshold = &thr
	}
	if old.Detector.SilenceTimeoutMs != new.Detector.SilenceTimeoutMs {
		d := time.Duration(new.Detector.SilenceTimeoutMs) * time.Millisecond
		u.SilenceTimeout = &d
	}
	return u
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
