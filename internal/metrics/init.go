package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first scrape or textfile write.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, state := range []string{"written", "skipped", "failed"} {
		AssetsTotal.WithLabelValues(state)
		LastRunAssets.WithLabelValues(state)
	}

	for _, kind := range []string{"unsupported_format", "decode_failure", "missing_capability", "filesystem", "encode_failure"} {
		AssetFailuresTotal.WithLabelValues(kind)
	}

	for _, backend := range []string{"fast", "general", "none"} {
		AssetDuration.WithLabelValues(backend)
	}

	for _, phase := range []string{"read", "decode", "metadata", "orient", "thumbnail", "preview", "write"} {
		PhaseDuration.WithLabelValues(phase)
	}

	for _, kind := range []string{"thumbnail", "preview", "meta"} {
		OutputBytesWritten.WithLabelValues(kind)
	}

	for _, event := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(event)
	}

	volumes := []string{"source", "output", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "read", "mkdir", "write"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
