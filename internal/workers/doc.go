/*
Package workers sizes the derivative worker pool in containerized
environments.

Decoding and resampling full-resolution photographs is CPU-bound, so the pool
defaults to one worker per available CPU as reported by GOMAXPROCS (which Go
1.19+ derives from the container CPU limit, unlike runtime.NumCPU):

	n := workers.ForCPU(8)

Uncompressed pixel buffers for large originals reach tens of megabytes, so the
count can additionally be capped by the memory limit:

	n = workers.CapByMemory(n, 256<<20, memLimit)

# Environment Variable Override

All helpers respect PIPELINE_WORKERS, allowing operators to pin the count:

	PIPELINE_WORKERS=2 gallery-pipeline run

The limit argument still caps an override.
*/
package workers
