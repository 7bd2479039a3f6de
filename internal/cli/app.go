package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/media/vips"
	"gallery-pipeline/internal/memory"
	"gallery-pipeline/internal/metrics"
	"gallery-pipeline/internal/pipeline"
	"gallery-pipeline/internal/startup"
	"gallery-pipeline/internal/workers"
)

// app is everything a run or watch needs, built once per process.
type app struct {
	config   *startup.Config
	pipeline *pipeline.Pipeline
	monitor  *memory.Monitor
	vipsUp   bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	startup.LogStartup(cfg)
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	if err := startup.PrepareDirectories(cfg); err != nil {
		return nil, err
	}

	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, monitor: memory.NewMonitor(memory.DefaultConfig())}

	var general media.Backend
	var vipsErr error
	if cfg.Mode() != media.ModeFastOnly {
		var b *vips.Backend
		concurrency := opts.Workers
		if concurrency <= 0 {
			concurrency = workers.ForCPU(0)
		}
		if b, vipsErr = vips.New(concurrency); vipsErr == nil {
			general = b
			a.vipsUp = true
		}
	}
	startup.LogBackends(string(cfg.Mode()), a.vipsUp, vipsErr)

	var fast media.Backend
	if cfg.Mode() != media.ModeGeneralOnly {
		fast = media.NewFastBackend()
	}
	if fast == nil && general == nil {
		a.close()
		return nil, fmt.Errorf("backend mode %s needs libvips: %w", cfg.Mode(), vipsErr)
	}

	selector := media.NewSelector(cfg.Mode(), fast, general, cfg.Format())
	a.pipeline, err = pipeline.New(opts, selector, a.monitor)
	if err != nil {
		a.close()
		return nil, err
	}

	a.monitor.Start()
	return a, nil
}

func (a *app) close() {
	a.monitor.Stop()
	if a.vipsUp {
		vips.Shutdown()
	}
}

// writeMetrics exports the registry to the configured textfile, if any.
func (a *app) writeMetrics() {
	if a.config.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.config.MetricsFile); err != nil {
		logging.Warn("Failed to write metrics file %s: %v", a.config.MetricsFile, err)
		return
	}
	logging.Debug("Wrote metrics to %s", a.config.MetricsFile)
}
