package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gallery-pipeline/internal/derivative"
	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/mediatypes"
	"gallery-pipeline/internal/memory"
	"gallery-pipeline/internal/metadata"
	"gallery-pipeline/internal/metrics"
	"gallery-pipeline/internal/walker"
	"gallery-pipeline/internal/workers"
)

// perWorkerBytes is the working-set estimate used to cap the worker count
// against the memory limit: a 24MP RGBA decode plus derivatives.
const perWorkerBytes = 160 << 20

// Pipeline turns a dated source tree into thumbnails, previews and metadata
// files. A Pipeline may run any number of times, but not concurrently.
type Pipeline struct {
	opts       Options
	selector   *media.Selector
	generator  *derivative.Generator
	normalizer *metadata.Normalizer
	monitor    *memory.Monitor
	outputExt  string

	// OnResult, if set, is called once per terminal result from the worker
	// or walker goroutine that produced it.
	OnResult func(Result)

	running atomic.Bool
}

// New validates opts and builds a pipeline. monitor may be nil to disable
// memory backpressure.
func New(opts Options, selector *media.Selector, monitor *memory.Monitor) (*Pipeline, error) {
	if opts.Layout == "" {
		opts.Layout = LayoutYearFirst
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}
	if selector == nil {
		return nil, errors.New("invalid pipeline options: backend selector is required")
	}

	gen, err := derivative.NewGenerator(opts.Derivatives)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}

	opts.AllowedExtensions = append([]string(nil), opts.AllowedExtensions...)
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = mediatypes.DefaultAllowedExtensions
	}

	return &Pipeline{
		opts:       opts,
		selector:   selector,
		generator:  gen,
		normalizer: metadata.NewNormalizer(opts.Precision),
		monitor:    monitor,
		outputExt:  opts.Derivatives.Format.Ext(),
	}, nil
}

// Options returns a copy of the pipeline configuration.
func (p *Pipeline) Options() Options {
	return p.opts
}

// WorkerCount is the number of workers a run will use.
func (p *Pipeline) WorkerCount() int {
	n := p.opts.Workers
	if n <= 0 {
		n = workers.ForCPU(0)
	}
	var limit int64
	if p.monitor != nil {
		limit = p.monitor.Limit()
	}
	return workers.CapByMemory(n, perWorkerBytes, limit)
}

// Run processes every asset under the source root. Asset failures are
// recorded in the summary and never abort the run. The returned error is
// non-nil when the source root cannot be walked, the output root cannot be
// created, or ctx was cancelled; the summary is returned in every case but
// the first two.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, errors.New("pipeline run already in progress")
	}
	defer p.running.Store(false)

	if err := filesystem.EnsureDir(p.opts.OutputDir, p.opts.Retry); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	startTime := time.Now()
	summary := newSummary(uuid.NewString(), startTime)
	summary.Workers = p.WorkerCount()

	metrics.RunsTotal.Inc()
	metrics.RunIsActive.Set(1)
	metrics.Workers.Set(float64(summary.Workers))
	defer metrics.RunIsActive.Set(0)

	logging.Info("Starting run %s: %s -> %s (%d workers, layout %s, backend mode %s)",
		summary.RunID, p.opts.SourceDir, p.opts.OutputDir, summary.Workers, p.opts.Layout, p.selector.Mode())

	wcfg := walker.DefaultConfig(p.opts.SourceDir)
	wcfg.AllowedExtensions = p.opts.AllowedExtensions
	wcfg.ChannelBuffer = summary.Workers * 2
	wcfg.Ignore = []string{p.opts.OutputDir}
	wcfg.OnSkip = func(s walker.Skip) {
		p.record(summary, skippedResult(s))
	}
	found, walkErrs := walker.New(wcfg).Walk(ctx)
	assets := p.claimOutputs(summary, found, wcfg.ChannelBuffer)

	var notStarted atomic.Int64
	g := new(errgroup.Group)
	for range summary.Workers {
		g.Go(func() error {
			for asset := range assets {
				if ctx.Err() != nil {
					notStarted.Add(1)
					continue
				}
				res, started := p.processAsset(ctx, asset)
				if !started {
					notStarted.Add(1)
					continue
				}
				p.record(summary, res)
			}
			return nil
		})
	}
	_ = g.Wait()
	walkErr := <-walkErrs

	summary.Duration = time.Since(startTime)
	written, skipped, failed := summary.Counts()

	metrics.LastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.LastRunDuration.Set(summary.Duration.Seconds())
	metrics.LastRunAssets.WithLabelValues("written").Set(float64(written))
	metrics.LastRunAssets.WithLabelValues("skipped").Set(float64(skipped))
	metrics.LastRunAssets.WithLabelValues("failed").Set(float64(failed))

	switch {
	case walkErr == nil && ctx.Err() == nil:
		logging.Info("Run %s completed in %v: %d written, %d skipped, %d failed",
			summary.RunID, summary.Duration, written, skipped, failed)
		return summary, nil
	case ctx.Err() != nil:
		summary.Interrupted = true
		logging.Warn("Run %s interrupted after %v: %d written, %d skipped, %d failed, %d not started",
			summary.RunID, summary.Duration, written, skipped, failed, notStarted.Load())
		return summary, ctx.Err()
	default:
		logging.Error("Run %s aborted: %v", summary.RunID, walkErr)
		return summary, walkErr
	}
}

// claimOutputs forwards assets in walk order, failing any asset whose output
// paths were already claimed by an earlier one (a.jpg and a.png in the same
// month, for instance).
func (p *Pipeline) claimOutputs(summary *Summary, in <-chan walker.SourceAsset, buffer int) <-chan walker.SourceAsset {
	out := make(chan walker.SourceAsset, max(buffer, 0))
	go func() {
		defer close(out)
		claimed := make(map[string]string)
		for asset := range in {
			paths := Paths(asset, p.opts.OutputDir, p.outputExt, p.opts.Layout)
			if owner, taken := claimed[paths.Meta]; taken {
				p.record(summary, collisionResult(asset, paths, owner))
				continue
			}
			claimed[paths.Meta] = asset.RelPath
			out <- asset
		}
	}()
	return out
}

func collisionResult(asset walker.SourceAsset, paths DerivativeSet, owner string) Result {
	err := &AssetError{
		RelPath: asset.RelPath,
		Kind:    KindFilesystem,
		State:   StateDiscovered,
		Err:     fmt.Errorf("%w: output paths already used by %s", ErrOutputCollision, owner),
	}
	logging.Warn("Failed to process %s: %v", asset.RelPath, err)
	return Result{
		Asset: asset,
		State: StateFailed,
		Kind:  KindFilesystem,
		Err:   err,
		Paths: paths,
	}
}

func (p *Pipeline) record(summary *Summary, res Result) {
	summary.Add(res)

	metrics.AssetsTotal.WithLabelValues(stateLabel(res.State)).Inc()
	if res.State == StateFailed {
		metrics.AssetFailuresTotal.WithLabelValues(string(res.Kind)).Inc()
	}
	if res.State == StateDerivativesWritten {
		metrics.AssetDuration.WithLabelValues(res.Backend).Observe(res.Duration.Seconds())
	}

	if p.OnResult != nil {
		p.OnResult(res)
	}
}

func stateLabel(s State) string {
	switch s {
	case StateDerivativesWritten:
		return "written"
	case StateSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

func skippedResult(s walker.Skip) Result {
	res := Result{
		Asset:  walker.SourceAsset{RelPath: s.RelPath, AbsPath: s.AbsPath, Ext: s.Ext},
		State:  StateSkipped,
		Reason: string(s.Reason),
	}
	if s.Reason == walker.SkipExtension {
		res.Kind = KindUnsupportedFormat
	}
	return res
}

// processAsset drives one asset through the state machine. started is false
// when ctx was cancelled before any work began.
func (p *Pipeline) processAsset(ctx context.Context, asset walker.SourceAsset) (res Result, started bool) {
	start := time.Now()
	res = Result{
		Asset: asset,
		State: StateDiscovered,
		Paths: Paths(asset, p.opts.OutputDir, p.outputExt, p.opts.Layout),
	}
	defer func() {
		res.Duration = time.Since(start)
	}()

	fail := func(kind ErrorKind, err error) (Result, bool) {
		res.Err = &AssetError{RelPath: asset.RelPath, Kind: kind, State: res.State, Err: err}
		res.Kind = kind
		res.State = StateFailed
		logging.Warn("Failed to process %s: %v", asset.RelPath, res.Err)
		return res, true
	}

	if p.opts.SkipUnchanged && p.unchanged(asset, res.Paths) {
		logging.Debug("Skipping unchanged %s", asset.RelPath)
		res.State = StateSkipped
		res.Reason = "unchanged"
		return res, true
	}

	if p.monitor != nil {
		if err := p.monitor.Wait(ctx); err != nil {
			return res, false
		}
	}

	phase := time.Now()
	data, err := filesystem.ReadFileWithRetry(asset.AbsPath, p.opts.Retry)
	if err != nil {
		return fail(KindFilesystem, fmt.Errorf("read source: %w", err))
	}
	metrics.SourceBytesRead.Add(float64(len(data)))
	observePhase("read", phase)

	res.State = StateDecoding
	phase = time.Now()
	decoded, err := p.selector.Decode(mediatypes.Resolve(asset.Ext, data), data)
	if err != nil {
		return fail(kindOf(err, KindDecode), err)
	}
	defer decoded.Image.Release()
	observePhase("decode", phase)

	backend := decoded.Backend
	res.Backend = backend.Name()
	res.FellBack = decoded.FellBack

	phase = time.Now()
	tags, err := backend.ReadTags(asset.AbsPath)
	if err != nil {
		logging.Warn("No metadata for %s: %v", asset.RelPath, err)
		tags = map[string]string{}
	}
	meta, err := p.normalizer.Normalize(tags, backend.PrefixedTags(), asset.ModTime).JSON()
	if err != nil {
		return fail(KindEncode, fmt.Errorf("encode metadata: %w", err))
	}
	observePhase("metadata", phase)
	res.State = StateMetadataExtracted

	phase = time.Now()
	oriented, err := p.generator.Orient(backend, decoded.Image, metadata.Orientation(tags, backend.PrefixedTags()))
	if err != nil {
		return fail(kindOf(err, KindDecode), err)
	}
	defer oriented.Release()
	observePhase("orient", phase)
	res.State = StateOriented

	phase = time.Now()
	thumb, err := p.generator.Thumbnail(backend, oriented)
	if err != nil {
		return fail(kindOf(err, KindEncode), err)
	}
	observePhase("thumbnail", phase)

	phase = time.Now()
	preview, err := p.generator.Preview(backend, oriented)
	if err != nil {
		return fail(kindOf(err, KindEncode), err)
	}
	observePhase("preview", phase)

	phase = time.Now()
	for _, dir := range res.Paths.Dirs() {
		if err := filesystem.EnsureDir(dir, p.opts.Retry); err != nil {
			return fail(KindFilesystem, err)
		}
	}
	outputs := []struct {
		kind string
		path string
		data []byte
	}{
		{"thumbnail", res.Paths.Thumbnail, thumb.Data},
		{"preview", res.Paths.Preview, preview.Data},
		{"meta", res.Paths.Meta, meta},
	}
	for _, out := range outputs {
		if err := filesystem.WriteFileAtomic(out.path, out.data, p.opts.Retry); err != nil {
			return fail(KindFilesystem, fmt.Errorf("write %s: %w", out.kind, err))
		}
		metrics.OutputBytesWritten.WithLabelValues(out.kind).Add(float64(len(out.data)))
	}
	observePhase("write", phase)

	res.State = StateDerivativesWritten
	logging.Debug("Wrote derivatives for %s (%s, thumb %dx%d, preview %dx%d)",
		asset.RelPath, res.Backend, thumb.Width, thumb.Height, preview.Width, preview.Height)
	return res, true
}

// unchanged reports whether all three outputs exist and none is older than
// the source.
func (p *Pipeline) unchanged(asset walker.SourceAsset, paths DerivativeSet) bool {
	for _, path := range []string{paths.Thumbnail, paths.Preview, paths.Meta} {
		info, err := filesystem.StatWithRetry(path, p.opts.Retry)
		if err != nil || info.ModTime().Before(asset.ModTime) {
			return false
		}
	}
	return true
}

func observePhase(phase string, start time.Time) {
	metrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
