// Package metrics declares the Prometheus metrics recorded by the pipeline
// and provides the two ways of exporting them: a textfile written at the end
// of a batch run (WriteTextfile) and an HTTP endpoint for watch mode (Server).
//
// All metrics are registered on the default registry via promauto and share
// the gallery_pipeline_ prefix. Call InitializeMetrics once at startup so
// every label combination is present from the first export.
package metrics
