package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/metrics"
	"gallery-pipeline/internal/pipeline"
	"gallery-pipeline/internal/startup"
	"gallery-pipeline/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run once, then re-run whenever the source tree changes",
	Long: `Process the source tree, then watch it for changes and re-run the whole
pipeline once the tree has been quiet for the debounce window
(WATCH_DEBOUNCE, default 2s).

When METRICS_ADDR is set, /metrics and /healthz are served on it.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *metrics.Server
	if a.config.MetricsAddr != "" {
		server = metrics.NewServer(a.config.MetricsAddr)
		server.Start()
	}

	w := watcher.New(watcher.Config{
		Root:           a.config.SourceDir,
		Debounce:       a.config.WatchDebounce,
		RescanInterval: a.config.RescanInterval,
		Ignore:         []string{a.config.OutputDir},
	}, a.pipeline)
	w.OnRun = func(summary *pipeline.Summary, _ error) {
		startup.LogRunSummary(summary)
		a.writeMetrics()
	}

	startup.LogWatchStarted(a.config)
	err = w.Run(ctx)

	startup.LogShutdownInitiated("interrupt")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			logging.Warn("Metrics server shutdown error: %v", serr)
		}
	}
	startup.LogShutdownComplete()
	return err
}
