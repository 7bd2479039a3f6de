package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/startup"
)

// flags shared by run and watch
type globalFlags struct {
	configPath string
	logLevel   string
	source     string
	output     string
	workers    int
	backend    string
	format     string
	layout     string
}

var flags globalFlags

// rootCmd represents the base command. Without a subcommand it performs a
// single run.
var rootCmd = &cobra.Command{
	Use:   "gallery-pipeline",
	Short: "Generate web thumbnails, previews and metadata from a dated photo tree",
	Long: `gallery-pipeline walks <source>/<year>/<month>/ photographs and writes a
square thumbnail, a bounded preview and a normalized metadata JSON file for
each one under the output root.

Configuration is read from the YAML file given with --config, then from the
environment, then from flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: applyLogLevel,
	RunE:              runRun,
}

// Execute adds all child commands to the root command and runs it. Any
// error is logged as fatal, which exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		startup.LogFatal("%v", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", os.Getenv("GALLERY_CONFIG"), "path to a YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.source, "source", "", "source directory (overrides SOURCE_DIR)")
	pf.StringVar(&flags.output, "output", "", "output directory (overrides OUTPUT_DIR)")
	pf.IntVarP(&flags.workers, "workers", "w", 0, "number of concurrent assets (0 = one per CPU)")
	pf.StringVar(&flags.backend, "backend", "", "backend mode: auto, fast-only or general-only")
	pf.StringVar(&flags.format, "format", "", "output format: jpeg, png or webp")
	pf.StringVar(&flags.layout, "layout", "", "output layout: year-first or kind-first")

	addRunFlags(rootCmd.Flags())
}

func applyLogLevel(cmd *cobra.Command, _ []string) error {
	if flags.logLevel == "" {
		return nil
	}
	level, ok := logging.ParseLevel(flags.logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", flags.logLevel)
	}
	logging.SetLevel(level)
	return nil
}

// loadConfig layers flags over the file and environment configuration.
func loadConfig(cmd *cobra.Command) (*startup.Config, error) {
	cfg, err := startup.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.SourceDir = flags.source
	}
	if changed("output") {
		cfg.OutputDir = flags.output
	}
	if changed("workers") {
		cfg.Workers = flags.workers
	}
	if changed("backend") {
		cfg.BackendMode = flags.backend
	}
	if changed("format") {
		cfg.OutputFormat = flags.format
	}
	if changed("layout") {
		cfg.OutputLayout = flags.layout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
