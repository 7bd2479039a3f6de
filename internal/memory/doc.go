// Package memory keeps decode-heavy work inside the container's memory
// budget.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from the container limit before any
// image is decoded:
//
//   - GOMEMLIMIT: standard Go variable. If set, it wins and nothing else is read.
//   - MEMORY_LIMIT: container limit in bytes, usually injected through the
//     Kubernetes Downward API (resourceFieldRef: limits.memory).
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap, 0.0-1.0.
//     Defaults to 0.85. Lower it when the general backend is in use, since
//     libvips allocates outside the Go heap.
//
// A [Monitor] samples heap usage while a run is in progress. When usage
// crosses the critical water mark it forces a GC and holds new decodes in
// [Monitor.Wait] until usage falls below the high water mark. Work already
// decoding is never interrupted.
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//
//	if err := mon.Wait(ctx); err != nil {
//	    return err
//	}
//	img, err := backend.Decode(data)
package memory
