package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/memory"
	"gallery-pipeline/internal/pipeline"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// LogStartup prints the banner, system information and the effective
// configuration.
func LogStartup(cfg *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  SOURCE_DIR:          %s", cfg.SourceDir)
	logging.Info("  OUTPUT_DIR:          %s", cfg.OutputDir)
	logging.Info("  OUTPUT_LAYOUT:       %s", cfg.OutputLayout)
	logging.Info("  ALLOWED_EXTENSIONS:  %s", strings.Join(cfg.AllowedExtensions, ","))
	logging.Info("  THUMBNAIL_SIZE:      %d (quality %d)", cfg.ThumbnailSize, cfg.ThumbnailQuality)
	logging.Info("  PREVIEW_SIZE:        %d (quality %d)", cfg.PreviewSize, cfg.PreviewQuality)
	logging.Info("  OUTPUT_FORMAT:       %s", cfg.OutputFormat)
	logging.Info("  BACKEND_MODE:        %s", cfg.BackendMode)
	logging.Info("  SKIP_UNCHANGED:      %v", cfg.SkipUnchanged)
	if cfg.Workers > 0 {
		logging.Info("  WORKERS:             %d", cfg.Workers)
	} else {
		logging.Info("  WORKERS:             auto")
	}
	logging.Info("  METRICS_FILE:        %s", valueOrNone(cfg.MetricsFile))
	logging.Info("  METRICS_ADDR:        %s", valueOrNone(cfg.MetricsAddr))
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Debug("  Precision:           exposure=%d shutter_speed=%d iso=%d fnumber=%d focal_length=%d",
		cfg.Precision.Exposure, cfg.Precision.ShutterSpeed, cfg.Precision.ISO, cfg.Precision.FNumber, cfg.Precision.FocalLength)
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// PrepareDirectories resolves both roots to absolute paths, checks the
// source tree and makes sure the output root exists and is writable. It
// also registers both roots for per-volume filesystem metrics.
func PrepareDirectories(cfg *Config) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	sourceDir, err := filepath.Abs(cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("failed to resolve source directory path: %w", err)
	}
	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	cfg.SourceDir, cfg.OutputDir = sourceDir, outputDir
	logging.Info("  Source directory (absolute): %s", sourceDir)
	logging.Info("  Output directory (absolute): %s", outputDir)

	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("source directory error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source directory error: %s is not a directory", sourceDir)
	}
	logSourceContents(sourceDir)

	if err := ensureDirectory(outputDir, "output"); err != nil {
		return fmt.Errorf("output directory error: %w", err)
	}

	logging.Debug("  Testing output directory write access...")
	if err := testWriteAccess(outputDir); err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	logging.Info("  [OK] Output directory is writable")

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"source": sourceDir,
		"output": outputDir,
	}))
	return nil
}

func logSourceContents(path string) {
	if !logging.IsDebugEnabled() {
		return
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	fileCount := 0
	dirCount := 0
	for _, e := range entries {
		if e.IsDir() {
			dirCount++
		} else {
			fileCount++
		}
	}
	logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
}

// LogMemoryConfig logs how the Go memory limit was configured
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT set directly: %s", memory.FormatBytes(result.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", memory.FormatBytes(result.ContainerLimit))
		logging.Info("  Go heap limit:   %s (%.0f%%)", memory.FormatBytes(result.GoMemLimit), result.Ratio*100)
	default:
		logging.Info("  No memory limit configured (backpressure disabled)")
	}
}

// LogBackends reports which image backends are available for the run.
func LogBackends(mode string, generalAvailable bool, initErr error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE BACKENDS")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Mode:     %s", mode)
	logging.Info("  Fast:     %s", enabledString(mode != "general-only"))
	logging.Info("  General:  %s", enabledString(generalAvailable))
	if initErr != nil {
		logging.Warn("  libvips unavailable: %v", initErr)
		logging.Warn("  HEIC/HEIF sources and WebP output will fail with missing_capability")
	}
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogRunSummary prints the end-of-run block.
func LogRunSummary(summary *pipeline.Summary) {
	if summary == nil {
		return
	}
	written, skipped, failed := summary.Counts()

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RUN SUMMARY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Run ID:     %s", summary.RunID)
	logging.Info("  Duration:   %v", summary.Duration.Round(time.Millisecond))
	logging.Info("  Workers:    %d", summary.Workers)
	logging.Info("  Written:    %d", written)
	logging.Info("  Skipped:    %d", skipped)
	logging.Info("  Failed:     %d", failed)
	if n := summary.Fallbacks(); n > 0 {
		logging.Info("  Fallbacks:  %d (fast -> general)", n)
	}
	if summary.Interrupted {
		logging.Warn("  Run was interrupted; remaining assets were not started")
	}

	backends := summary.ByBackend()
	for _, name := range sortedKeys(backends) {
		logging.Info("    decoded by %-8s %d", name+":", backends[name])
	}

	kinds := summary.ByKind()
	kindNames := make([]string, 0, len(kinds))
	for k := range kinds {
		kindNames = append(kindNames, string(k))
	}
	sort.Strings(kindNames)
	for _, k := range kindNames {
		logging.Info("    %-20s %d", k+":", kinds[pipeline.ErrorKind(k)])
	}

	for _, f := range summary.Failures() {
		logging.Warn("  [FAILED] %s: %v", f.Asset.RelPath, f.Err)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogWatchStarted logs watch mode endpoints.
func LogWatchStarted(cfg *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WATCH MODE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Debounce:        %v", cfg.WatchDebounce)
	if cfg.RescanInterval > 0 {
		logging.Info("  Rescan interval: %v", cfg.RescanInterval)
	}
	if cfg.MetricsAddr != "" {
		logging.Info("  Metrics:         http://%s/metrics", cfg.MetricsAddr)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   ____       _ _                    ____  _            _ _
  / ___| __ _| | | ___ _ __ _   _   |  _ \(_)_ __   ___| (_)_ __   ___
 | |  _ / _' | | |/ _ \ '__| | | |  | |_) | | '_ \ / _ \ | | '_ \ / _ \
 | |_| | (_| | | |  __/ |  | |_| |  |  __/| | |_) |  __/ | | | | |  __/
  \____|\__,_|_|_|\___|_|   \__, |  |_|   |_| .__/ \___|_|_|_| |_|\___|
                            |___/           |_|
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}
