package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gallery-pipeline/internal/startup"
)

var failOnError bool

// errAssetsFailed makes the process exit non-zero after a completed run.
var errAssetsFailed = errors.New("one or more assets failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the whole source tree once",
	Long: `Process every photograph under the source root once and exit.

The exit status is non-zero when the configuration is invalid, the source
root cannot be read, the run is interrupted, or (with --fail-on-error, the
default) any asset failed.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd.Flags())
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&failOnError, "fail-on-error", true, "exit non-zero when any asset fails")
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := newProgress(os.Stderr)
	a.pipeline.OnResult = progress.observe
	progress.start(ctx)

	summary, runErr := a.pipeline.Run(ctx)
	progress.stop()

	startup.LogRunSummary(summary)
	a.writeMetrics()

	switch {
	case errors.Is(runErr, context.Canceled):
		startup.LogShutdownInitiated("interrupt")
		startup.LogShutdownComplete()
		return fmt.Errorf("run interrupted")
	case runErr != nil:
		return runErr
	}

	if _, _, failed := summary.Counts(); failed > 0 && failOnError {
		return fmt.Errorf("%w: %d", errAssetsFailed, failed)
	}
	return nil
}
