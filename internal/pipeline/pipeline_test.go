package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gallery-pipeline/internal/derivative"
	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/media/mediatest"
	"gallery-pipeline/internal/metadata"
)

const sunsetJSON = `{"datetime":"2024:07:04 20:15:00","camera":"EOS R5","exposure":0.004,"fnumber":4.0,"iso":400,"focal_length":"50mm"}` + "\n"

func sunsetEXIF() *mediatest.EXIF {
	return &mediatest.EXIF{
		Make:             "Canon",
		Model:            "Canon EOS R5",
		DateTimeOriginal: "2024:07:04 20:15:00",
		Orientation:      6,
		ISO:              400,
		ExposureTime:     mediatest.Rational{Num: 1, Den: 250},
		FNumber:          mediatest.Rational{Num: 4, Den: 1},
		FocalLength:      mediatest.Rational{Num: 50, Den: 1},
	}
}

func testOptions(source, output string) Options {
	return Options{
		SourceDir: source,
		OutputDir: output,
		Layout:    LayoutYearFirst,
		Derivatives: derivative.Options{
			ThumbnailSize:    64,
			PreviewSize:      160,
			ThumbnailQuality: 80,
			PreviewQuality:   85,
			Format:           media.FormatJPEG,
		},
		Precision: metadata.DefaultPrecision(),
		Workers:   2,
		Retry:     filesystem.DefaultRetryConfig(),
	}
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()

	sel := media.NewSelector(media.ModeAuto, media.NewFastBackend(), nil, opts.Derivatives.Format)
	p, err := New(opts, sel, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func assertMissing(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist (stat error %v)", p, err)
		}
	}
}

func TestNewValidation(t *testing.T) {
	sel := media.NewSelector(media.ModeAuto, media.NewFastBackend(), nil, media.FormatJPEG)

	tests := []struct {
		name     string
		mutate   func(*Options)
		selector *media.Selector
	}{
		{"missing source", func(o *Options) { o.SourceDir = "" }, sel},
		{"missing output", func(o *Options) { o.OutputDir = "" }, sel},
		{"unknown layout", func(o *Options) { o.Layout = "flat" }, sel},
		{"negative workers", func(o *Options) { o.Workers = -1 }, sel},
		{"bad derivative size", func(o *Options) { o.Derivatives.ThumbnailSize = 0 }, sel},
		{"bad quality", func(o *Options) { o.Derivatives.PreviewQuality = 0 }, sel},
		{"nil selector", func(*Options) {}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("/src", "/out")
			tt.mutate(&opts)
			if _, err := New(opts, tt.selector, nil); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	opts := testOptions("/src", "/out")
	opts.Layout = ""
	opts.Workers = 0

	p := newTestPipeline(t, opts)
	if p.Options().Layout != LayoutYearFirst {
		t.Errorf("default layout = %q, want %q", p.Options().Layout, LayoutYearFirst)
	}
	if len(p.Options().AllowedExtensions) == 0 {
		t.Error("default allow-list should not be empty")
	}
	if p.WorkerCount() < 1 {
		t.Errorf("WorkerCount() = %d, want >= 1", p.WorkerCount())
	}
}

func TestRunEndToEnd(t *testing.T) {
	for _, layout := range []Layout{LayoutYearFirst, LayoutKindFirst} {
		t.Run(string(layout), func(t *testing.T) {
			src := t.TempDir()
			out := t.TempDir()

			mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "sunset.jpg"), mediatest.JPEG(t, 300, 200, sunsetEXIF()))
			mediatest.WriteFile(t, filepath.Join(src, "2024", "08", "wide.png"), mediatest.PNG(t, 333, 100))
			mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "notes.txt"), []byte("not a photo"))
			mediatest.WriteFile(t, filepath.Join(src, "loose.jpg"), mediatest.JPEG(t, 50, 50, nil))

			wideTime := time.Date(2024, 8, 1, 12, 30, 0, 0, time.Local)
			if err := os.Chtimes(filepath.Join(src, "2024", "08", "wide.png"), wideTime, wideTime); err != nil {
				t.Fatal(err)
			}

			opts := testOptions(src, out)
			opts.Layout = layout
			p := newTestPipeline(t, opts)

			var mu sync.Mutex
			var results []Result
			p.OnResult = func(r Result) {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}

			summary, err := p.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if summary.RunID == "" {
				t.Error("summary should carry a run ID")
			}

			written, skipped, failed := summary.Counts()
			if written != 2 || skipped != 2 || failed != 0 {
				t.Fatalf("Counts() = %d/%d/%d, want 2/2/0 (failures %v)", written, skipped, failed, summary.Failures())
			}
			if len(results) != summary.Total() {
				t.Errorf("OnResult called %d times, want %d", len(results), summary.Total())
			}

			sunset := Paths(mustAsset(t, results, "2024/07/sunset.jpg").Asset, out, ".jpg", layout)
			if w, h := imageSize(t, sunset.Thumbnail); w != 64 || h != 64 {
				t.Errorf("sunset thumbnail = %dx%d, want 64x64", w, h)
			}
			// Orientation 6 turns the 300x200 landscape into a portrait.
			if w, h := imageSize(t, sunset.Preview); w != 107 || h != 160 {
				t.Errorf("sunset preview = %dx%d, want 107x160", w, h)
			}
			meta, err := os.ReadFile(sunset.Meta)
			if err != nil {
				t.Fatal(err)
			}
			if string(meta) != sunsetJSON {
				t.Errorf("sunset metadata =\n%s\nwant\n%s", meta, sunsetJSON)
			}

			wide := Paths(mustAsset(t, results, "2024/08/wide.png").Asset, out, ".jpg", layout)
			if w, h := imageSize(t, wide.Thumbnail); w != 64 || h != 64 {
				t.Errorf("wide thumbnail = %dx%d, want 64x64", w, h)
			}
			if w, h := imageSize(t, wide.Preview); w != 160 || h != 48 {
				t.Errorf("wide preview = %dx%d, want 160x48", w, h)
			}
			meta, err = os.ReadFile(wide.Meta)
			if err != nil {
				t.Fatal(err)
			}
			wantMeta := `{"datetime":"` + wideTime.Format(metadata.DateTimeLayout) + `"}` + "\n"
			if string(meta) != wantMeta {
				t.Errorf("wide metadata = %q, want %q", meta, wantMeta)
			}

			var thumbsRoot string
			if layout == LayoutKindFirst {
				thumbsRoot = filepath.Join(out, ThumbsDir, "2024", "07")
			} else {
				thumbsRoot = filepath.Join(out, "2024", "07", ThumbsDir)
			}
			entries, err := os.ReadDir(thumbsRoot)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].Name() != "sunset.jpg" {
				t.Errorf("thumbs for 2024/07 = %v, want only sunset.jpg", entries)
			}
		})
	}
}

func mustAsset(t *testing.T, results []Result, relPath string) Result {
	t.Helper()
	for _, r := range results {
		if r.Asset.RelPath == relPath {
			if r.State != StateDerivativesWritten {
				t.Fatalf("%s ended in state %s: %v", relPath, r.State, r.Err)
			}
			if r.Backend != media.FastName {
				t.Errorf("%s decoded by %q, want %q", relPath, r.Backend, media.FastName)
			}
			return r
		}
	}
	t.Fatalf("no result for %s", relPath)
	return Result{}
}

func TestRunSkipsDisallowedFiles(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "clip.mov"), []byte("movie"))
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "a.jpg"), mediatest.JPEG(t, 40, 30, nil))

	p := newTestPipeline(t, testOptions(src, out))

	var skippedResults []Result
	var mu sync.Mutex
	p.OnResult = func(r Result) {
		if r.State == StateSkipped {
			mu.Lock()
			skippedResults = append(skippedResults, r)
			mu.Unlock()
		}
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	written, skipped, _ := summary.Counts()
	if written != 1 || skipped != 1 {
		t.Errorf("written %d, skipped %d, want 1 and 1", written, skipped)
	}
	if len(skippedResults) != 1 || skippedResults[0].Kind != KindUnsupportedFormat || skippedResults[0].Reason != "extension" {
		t.Errorf("skipped results = %+v", skippedResults)
	}

	assertMissing(t,
		filepath.Join(out, "2024", "07", ThumbsDir, "clip.jpg"),
		filepath.Join(out, "2024", "07", MetaDir, "clip.json"),
	)
}

func TestRunFailuresAreAssetScoped(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "broken.jpg"), []byte("definitely not a jpeg"))
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "phone.heic"), []byte("\x00\x00\x00\x18not really heic"))
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "good.jpg"), mediatest.JPEG(t, 80, 60, nil))

	p := newTestPipeline(t, testOptions(src, out))
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	written, _, failed := summary.Counts()
	if written != 1 || failed != 2 {
		t.Fatalf("written %d, failed %d, want 1 and 2", written, failed)
	}

	kinds := map[string]ErrorKind{}
	for _, f := range summary.Failures() {
		kinds[f.Asset.RelPath] = f.Kind

		var assetErr *AssetError
		if !errors.As(f.Err, &assetErr) {
			t.Errorf("%s: error %v is not an *AssetError", f.Asset.RelPath, f.Err)
		}
	}
	if kinds["2024/07/broken.jpg"] != KindDecode {
		t.Errorf("broken.jpg kind = %q, want %q", kinds["2024/07/broken.jpg"], KindDecode)
	}
	if kinds["2024/07/phone.heic"] != KindMissingCapability {
		t.Errorf("phone.heic kind = %q, want %q", kinds["2024/07/phone.heic"], KindMissingCapability)
	}

	dir := filepath.Join(out, "2024", "07")
	assertMissing(t,
		filepath.Join(dir, ThumbsDir, "broken.jpg"),
		filepath.Join(dir, PreviewsDir, "broken.jpg"),
		filepath.Join(dir, MetaDir, "broken.json"),
		filepath.Join(dir, MetaDir, "phone.json"),
	)
	if _, err := os.Stat(filepath.Join(dir, MetaDir, "good.json")); err != nil {
		t.Errorf("good.jpg metadata missing: %v", err)
	}
}

func TestRunMetadataIsIdempotent(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "sunset.jpg"), mediatest.JPEG(t, 300, 200, sunsetEXIF()))

	p := newTestPipeline(t, testOptions(src, out))
	metaPath := filepath.Join(out, "2024", "07", MetaDir, "sunset.json")

	var runs [][]byte
	for range 2 {
		if _, err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		data, err := os.ReadFile(metaPath)
		if err != nil {
			t.Fatal(err)
		}
		runs = append(runs, data)
	}

	if !bytes.Equal(runs[0], runs[1]) {
		t.Errorf("metadata differs between runs:\n%s\n%s", runs[0], runs[1])
	}
}

func TestRunSkipUnchanged(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	source := filepath.Join(src, "2024", "07", "a.jpg")
	mediatest.WriteFile(t, source, mediatest.JPEG(t, 40, 30, nil))

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(source, past, past); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(src, out)
	opts.SkipUnchanged = true
	p := newTestPipeline(t, opts)

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written, _, _ := summary.Counts(); written != 1 {
		t.Fatalf("first run wrote %d assets, want 1", written)
	}

	summary, err = p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written, skipped, _ := summary.Counts(); written != 0 || skipped != 1 {
		t.Errorf("second run written %d, skipped %d, want 0 and 1", written, skipped)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(source, future, future); err != nil {
		t.Fatal(err)
	}
	summary, err = p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written, _, _ := summary.Counts(); written != 1 {
		t.Errorf("run after touching source wrote %d assets, want 1", written)
	}
}

func TestRunCancelled(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		mediatest.WriteFile(t, filepath.Join(src, "2024", "07", name+".jpg"), mediatest.JPEG(t, 40, 30, nil))
	}

	p := newTestPipeline(t, testOptions(src, out))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if summary == nil || !summary.Interrupted {
		t.Fatalf("summary should be marked interrupted, got %+v", summary)
	}
	if written, _, _ := summary.Counts(); written != 0 {
		t.Errorf("cancelled run wrote %d assets", written)
	}
}

func TestRunMissingSourceRoot(t *testing.T) {
	out := t.TempDir()
	p := newTestPipeline(t, testOptions(filepath.Join(out, "does-not-exist"), out))

	summary, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "walk source root") {
		t.Fatalf("Run() error = %v, want walk source root error", err)
	}
	if summary == nil || summary.Total() != 0 {
		t.Errorf("summary = %+v, want empty summary", summary)
	}
}

func TestRunOutputRootNotCreatable(t *testing.T) {
	src := t.TempDir()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, testOptions(src, filepath.Join(blocker, "out")))
	if _, err := p.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the output root cannot be created")
	}
}

func TestRunWriteFailureIsAssetScoped(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "good.jpg"), mediatest.JPEG(t, 80, 60, nil))
	mediatest.WriteFile(t, filepath.Join(src, "2024", "08", "blocked.jpg"), mediatest.JPEG(t, 80, 60, nil))
	// A regular file where the meta directory should be.
	mediatest.WriteFile(t, filepath.Join(out, "2024", "08", MetaDir), []byte("in the way"))

	p := newTestPipeline(t, testOptions(src, out))

	var mu sync.Mutex
	var results []Result
	p.OnResult = func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if written, _, failed := summary.Counts(); written != 1 || failed != 1 {
		t.Fatalf("written %d, failed %d, want 1 and 1", written, failed)
	}

	var blocked Result
	for _, r := range results {
		if r.Asset.RelPath == "2024/08/blocked.jpg" {
			blocked = r
		}
	}
	if blocked.State != StateFailed || blocked.Kind != KindFilesystem {
		t.Errorf("blocked.jpg = %s/%s, want %s/%s", blocked.State, blocked.Kind, StateFailed, KindFilesystem)
	}
	if good := mustAsset(t, results, "2024/07/good.jpg"); good.State != StateDerivativesWritten {
		t.Errorf("good.jpg state = %s, want %s", good.State, StateDerivativesWritten)
	}
	assertMissing(t,
		filepath.Join(out, "2024", "08", ThumbsDir, "blocked.jpg"),
		filepath.Join(out, "2024", "08", PreviewsDir, "blocked.jpg"),
	)
}

func TestRunOutputCollision(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "a.jpg"), mediatest.JPEG(t, 80, 60, nil))
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "a.png"), mediatest.PNG(t, 60, 80))

	p := newTestPipeline(t, testOptions(src, out))
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if written, _, failed := summary.Counts(); written != 1 || failed != 1 {
		t.Fatalf("written %d, failed %d, want 1 and 1", written, failed)
	}

	failures := summary.Failures()
	if failures[0].Asset.RelPath != "2024/07/a.png" {
		t.Errorf("failed asset = %s, want the later one in walk order", failures[0].Asset.RelPath)
	}
	if !errors.Is(failures[0].Err, ErrOutputCollision) || failures[0].Kind != KindFilesystem {
		t.Errorf("failure = %v (%s), want output collision", failures[0].Err, failures[0].Kind)
	}

	// The surviving derivatives come from a.jpg, a landscape.
	if w, h := imageSize(t, filepath.Join(out, "2024", "07", PreviewsDir, "a.jpg")); w != 160 || h != 120 {
		t.Errorf("preview = %dx%d, want 160x120 from a.jpg", w, h)
	}
}

func TestRunIgnoresOutputInsideSource(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(src, "gallery")
	mediatest.WriteFile(t, filepath.Join(src, "2024", "07", "a.jpg"), mediatest.JPEG(t, 80, 60, nil))

	p := newTestPipeline(t, testOptions(src, out))
	for run := 1; run <= 3; run++ {
		summary, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", run, err)
		}
		if written, skipped, failed := summary.Counts(); written != 1 || skipped != 0 || failed != 0 {
			t.Errorf("run %d: written %d, skipped %d, failed %d, want 1/0/0", run, written, skipped, failed)
		}
	}
}
