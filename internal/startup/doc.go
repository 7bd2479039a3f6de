// Package startup handles configuration loading, directory preparation and
// the startup, run summary and shutdown log blocks.
//
// # Configuration
//
// [LoadConfig] layers built-in defaults, an optional YAML file and the
// environment; the CLI applies flags on top. Recognized variables:
//
//   - SOURCE_DIR, OUTPUT_DIR: source tree and derivative root
//   - ALLOWED_EXTENSIONS: comma-separated, e.g. ".jpg,.jpeg,.heic"
//   - THUMBNAIL_SIZE, PREVIEW_SIZE: pixels (default 300 and 1600)
//   - THUMBNAIL_QUALITY, PREVIEW_QUALITY: 1-100 (default 80 and 85)
//   - OUTPUT_FORMAT: jpeg, png or webp (default jpeg)
//   - BACKEND_MODE: auto, fast-only or general-only (default auto)
//   - OUTPUT_LAYOUT: year-first or kind-first (default year-first)
//   - SKIP_UNCHANGED: skip assets whose derivatives are up to date
//   - METRICS_FILE: Prometheus textfile written after each run
//   - METRICS_ADDR: listen address for /metrics in watch mode
//   - WATCH_DEBOUNCE, RESCAN_INTERVAL: Go durations for watch mode
//   - LOG_LEVEL, DEBUG: see package logging
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// The equivalent YAML keys are the snake_case field names:
//
//	source_dir: /photos
//	output_dir: /srv/gallery
//	thumbnail_size: 256
//	output_format: webp
//	precision:
//	  exposure: 4
//	  fnumber: 1
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed through
// [GetBuildInfo].
package startup
