package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run metrics
var (
	RunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
	)

	RunIsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_run_active",
			Help: "Whether a pipeline run is currently active (1 = running, 0 = idle)",
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_last_run_timestamp",
			Help: "Timestamp of the last completed pipeline run",
		},
	)

	LastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_last_run_duration_seconds",
			Help: "Duration of the last pipeline run in seconds",
		},
	)

	LastRunAssets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_last_run_assets",
			Help: "Number of assets per terminal state in the last run",
		},
		[]string{"state"},
	)

	Workers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_workers",
			Help: "Number of derivative workers in the current run",
		},
	)
)

// Asset metrics
var (
	AssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_assets_total",
			Help: "Total number of assets by terminal state",
		},
		[]string{"state"}, // "written", "skipped", "failed"
	)

	AssetFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_asset_failures_total",
			Help: "Total number of failed assets by error kind",
		},
		[]string{"kind"},
	)

	AssetDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_pipeline_asset_duration_seconds",
			Help:    "Time to process one asset end to end",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_pipeline_phase_duration_seconds",
			Help:    "Duration of individual pipeline phases",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // "read", "decode", "metadata", "orient", "thumbnail", "preview", "write"
	)

	DecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_decode_by_format_total",
			Help: "Decoded source images by content type and backend",
		},
		[]string{"format", "backend"},
	)

	BackendFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_backend_fallbacks_total",
			Help: "Assets that fell back from the fast to the general backend after a decode failure",
		},
	)

	SourceBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_source_bytes_read_total",
			Help: "Total bytes read from source photographs",
		},
	)

	OutputBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_output_bytes_written_total",
			Help: "Total bytes written per derivative kind",
		},
		[]string{"kind"}, // "thumbnail", "preview", "meta"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_pipeline_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_filesystem_retry_attempts_total",
			Help: "Retries caused by NFS stale file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_pipeline_filesystem_retry_duration_seconds",
			Help:    "Total time spent in an operation including retries",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_watcher_events_total",
			Help: "Total number of source tree watcher events",
		},
		[]string{"type"}, // "create", "write", "remove", "rename", "chmod"
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_watcher_errors_total",
			Help: "Total number of source tree watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_watched_directories",
			Help: "Number of source directories being watched",
		},
	)

	WatcherTriggeredRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_watcher_triggered_runs_total",
			Help: "Pipeline runs started by the watcher after a debounce window",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_memory_paused",
			Help: "Whether decoding is paused due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_memory_gc_pauses_total",
			Help: "Times processing paused and a GC was forced",
		},
	)
)

// Build info
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "gallery_pipeline_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
