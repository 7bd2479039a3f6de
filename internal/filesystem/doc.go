/*
Package filesystem provides resilient filesystem operations for reading
source photographs and writing derivatives, with automatic retry for NFS
stale file handle errors.

# Key Features

  - Automatic retry with exponential backoff for NFS ESTALE errors (errno 116)
  - Transparent fallback to standard os errors for everything else
  - Idempotent, concurrency-safe directory creation (EnsureDir)
  - Atomic writes: temp file in the destination directory, then rename
    (WriteFileAtomic), so a failed write never leaves a truncated artifact

# Usage

	cfg := filesystem.DefaultRetryConfig()

	data, err := filesystem.ReadFileWithRetry("/photos/2024/07/sunset.jpg", cfg)
	if err != nil {
	    return err
	}

	if err := filesystem.EnsureDir("/srv/gallery/2024/07/thumbs", cfg); err != nil {
	    return err
	}
	err = filesystem.WriteFileAtomic("/srv/gallery/2024/07/thumbs/sunset.jpg", thumb, cfg)

# Retry Behavior

Defaults: MaxRetries 3, InitialBackoff 50ms, MaxBackoff 500ms. Only ESTALE
triggers retries. Operation and retry metrics are reported through the
Observer set with SetObserver, labeled by the volume resolved from the path.
*/
package filesystem
