package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/walker"
)

// State is a step in the per-asset state machine:
//
//	Discovered -> Decoding -> MetadataExtracted -> Oriented -> DerivativesWritten
//
// with Skipped and Failed as the other terminal states.
type State string

const (
	StateDiscovered         State = "discovered"
	StateDecoding           State = "decoding"
	StateMetadataExtracted  State = "metadata_extracted"
	StateOriented           State = "oriented"
	StateDerivativesWritten State = "written"
	StateSkipped            State = "skipped"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDerivativesWritten || s == StateSkipped || s == StateFailed
}

// ErrorKind classifies why an asset was skipped or failed.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindDecode            ErrorKind = "decode_failure"
	KindMissingCapability ErrorKind = "missing_capability"
	KindFilesystem        ErrorKind = "filesystem"
	KindEncode            ErrorKind = "encode_failure"
)

// ErrOutputCollision marks an asset whose derivative paths belong to another
// asset in the same run.
var ErrOutputCollision = errors.New("output path collision")

// AssetError is the error carried by a failed Result.
type AssetError struct {
	RelPath string
	Kind    ErrorKind
	// State is the last state reached before the failure.
	State State
	Err   error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("%s: %s during %s: %v", e.RelPath, e.Kind, e.State, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// kindOf maps an error onto an ErrorKind, using fallback when the error does
// not wrap one of the media sentinels.
func kindOf(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, media.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, media.ErrMissingCapability):
		return KindMissingCapability
	case errors.Is(err, media.ErrDecode):
		return KindDecode
	case errors.Is(err, media.ErrEncode):
		return KindEncode
	default:
		return fallback
	}
}

// Result is the outcome of one asset.
type Result struct {
	Asset walker.SourceAsset
	State State
	// Backend names the backend that decoded the asset, if any.
	Backend  string
	FellBack bool
	Kind     ErrorKind
	// Reason is set for skipped assets ("extension", "layout", "unchanged").
	Reason   string
	Err      error
	Paths    DerivativeSet
	Duration time.Duration
}

// Summary aggregates the results of one run. It is safe for concurrent use
// while the run is in progress.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Workers   int
	// Interrupted is set when the run was cancelled before every asset was
	// started.
	Interrupted bool

	mu        sync.Mutex
	written   int
	skipped   int
	failed    int
	fallbacks int
	byKind    map[ErrorKind]int
	byBackend map[string]int
	failures  []Result
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: started,
		byKind:    make(map[ErrorKind]int),
		byBackend: make(map[string]int),
	}
}

// Add records a terminal result.
func (s *Summary) Add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.State {
	case StateDerivativesWritten:
		s.written++
	case StateSkipped:
		s.skipped++
	default:
		s.failed++
		s.failures = append(s.failures, r)
	}
	if r.Kind != KindNone {
		s.byKind[r.Kind]++
	}
	if r.Backend != "" {
		s.byBackend[r.Backend]++
	}
	if r.FellBack {
		s.fallbacks++
	}
}

// Counts returns the number of written, skipped and failed assets.
func (s *Summary) Counts() (written, skipped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.skipped, s.failed
}

// Total is the number of assets with a terminal result.
func (s *Summary) Total() int {
	w, sk, f := s.Counts()
	return w + sk + f
}

// Fallbacks is the number of assets decoded by the general backend after the
// fast backend failed.
func (s *Summary) Fallbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbacks
}

// ByKind returns a copy of the per-kind counts.
func (s *Summary) ByKind() map[ErrorKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ErrorKind]int, len(s.byKind))
	for k, v := range s.byKind {
		out[k] = v
	}
	return out
}

// ByBackend returns a copy of the per-backend decode counts.
func (s *Summary) ByBackend() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.byBackend))
	for k, v := range s.byBackend {
		out[k] = v
	}
	return out
}

// Failures returns the failed results ordered by source path.
func (s *Summary) Failures() []Result {
	s.mu.Lock()
	out := append([]Result(nil), s.failures...)
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Asset.RelPath < out[j].Asset.RelPath })
	return out
}
