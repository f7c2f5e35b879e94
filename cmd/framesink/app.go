package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/gstreamer"
	"github.com/open-beagle/framesink/internal/ingest"
	"github.com/open-beagle/framesink/internal/metrics"
	"github.com/open-beagle/framesink/internal/nvmm"
	"github.com/open-beagle/framesink/internal/recording"
	"github.com/open-beagle/framesink/internal/session"
)

// App wires the pipeline, the session lifecycle and the metrics endpoint
type App struct {
	config     *config.Config
	configPath string
	logger     *logrus.Entry

	lifecycle     *session.Lifecycle
	metrics       metrics.Metrics
	ingestMetrics *metrics.IngestMetrics

	wg sync.WaitGroup
}

// NewApp creates the application; configPath enables restart on change when set
func NewApp(cfg *config.Config, configPath string) (*App, error) {
	m, err := metrics.NewMetrics(cfg.GetMetricsConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	ingestMetrics, err := metrics.NewIngestMetrics(m)
	if err != nil {
		return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
	}

	lifecycle := session.NewLifecycle(cfg.GetSinkConfig(), recording.Open)
	lifecycle.OnTransition(func(from, to session.State, target recording.Target) {
		switch {
		case to == session.StateActive:
			ingestMetrics.SessionStarted(target.Mode.String())
		case from == session.StateActive:
			ingestMetrics.SessionStopped()
		}
	})

	m.SetHealthCheck(func() error {
		if state := lifecycle.State(); state != session.StateActive {
			return fmt.Errorf("session is %s", state)
		}
		return nil
	})

	return &App{
		config:        cfg,
		configPath:    configPath,
		logger:        config.GetLoggerWithPrefix("app"),
		lifecycle:     lifecycle,
		metrics:       m,
		ingestMetrics: ingestMetrics,
	}, nil
}

// newPipeline builds a renderer and a pipeline runner for cfg
func (a *App) newPipeline(cfg *config.Config) (*gstreamer.SinkPipeline, error) {
	opts := ingest.RendererOptions{
		ImagePath:        cfg.Sink.ImagePath,
		VideoPath:        cfg.Sink.VideoPath,
		DeviceAllocators: cfg.Sink.DeviceAllocators,
		Observer:         a.ingestMetrics,
	}

	if cfg.Pipeline.Device {
		if resolver, ok := nvmm.NewResolver(); ok {
			opts.Device = ingest.NewDeviceExtractor(resolver, a.ingestMetrics)
		} else {
			a.logger.Warn("Device memory requested but this build has no NVMM support, rebuild with -tags nvmm")
		}
	}

	renderer := ingest.NewRenderer(a.lifecycle, opts)
	return gstreamer.NewSinkPipeline(cfg.Pipeline, a.lifecycle, renderer)
}

// Run plays the pipeline until ctx ends, the stream ends or the pipeline fails.
// A changed configuration file restarts the pipeline with a fresh session.
func (a *App) Run(ctx context.Context) error {
	if err := a.metrics.Start(); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}
	defer a.stopMetrics()

	var updates <-chan *config.Config
	if a.configPath != "" && a.config.Lifecycle.RestartOnChange {
		watcher := config.NewWatcher(a.configPath)
		updates = watcher.Updates()

		watchCtx, cancel := context.WithCancel(ctx)
		defer func() {
			cancel()
			a.wg.Wait()
		}()

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := watcher.Run(watchCtx); err != nil {
				a.logger.Warnf("Configuration watcher stopped: %v", err)
			}
		}()
	}

	pipeline, err := a.newPipeline(a.config)
	if err != nil {
		return err
	}
	if err := pipeline.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return pipeline.Stop()

		case err := <-pipeline.Done():
			stopErr := pipeline.Stop()
			if err != nil {
				return err
			}
			return stopErr

		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}

			a.logger.Infof("Configuration changed, restarting with %s", cfg.Sink)
			if err := pipeline.Stop(); err != nil {
				a.logger.Warnf("Failed to stop pipeline cleanly: %v", err)
			}

			if err := config.SetupLogger(cfg.Logging); err != nil {
				a.logger.Warnf("Keeping previous logging setup: %v", err)
			}
			a.config = cfg
			a.lifecycle.SetConfig(cfg.GetSinkConfig())

			pipeline, err = a.newPipeline(cfg)
			if err != nil {
				return err
			}
			if err := pipeline.Start(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *App) stopMetrics() {
	if err := a.metrics.Stop(); err != nil && !errors.Is(err, metrics.ErrServerNotRunning) {
		a.logger.Warnf("Failed to stop metrics server: %v", err)
	}
}
