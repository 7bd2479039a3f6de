package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// VolumeResolver Tests
// =============================================================================

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"source": "/photos",
		"output": "/srv/gallery",
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "source root", path: "/photos", want: "source"},
		{name: "source file", path: "/photos/2024/07/sunset.jpg", want: "source"},
		{name: "output thumbnail", path: "/srv/gallery/2024/07/thumbs/sunset.jpg", want: "output"},
		{name: "sibling prefix is not a match", path: "/photos-old/a.jpg", want: "unknown"},
		{name: "unknown path", path: "/etc/hosts", want: "unknown"},
		{name: "root path", path: "/", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve_LongestPrefixWins(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"output": "/srv/gallery",
		"thumbs": "/srv/gallery/thumbs",
	})

	if got := vr.Resolve("/srv/gallery/thumbs/2024/07/a.jpg"); got != "thumbs" {
		t.Errorf("Resolve() = %q, want %q", got, "thumbs")
	}
	if got := vr.Resolve("/srv/gallery/previews/2024/07/a.jpg"); got != "output" {
		t.Errorf("Resolve() = %q, want %q", got, "output")
	}
}

func TestVolumeResolver_Resolve_NilResolver(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/photos/a.jpg"); got != "unknown" {
		t.Errorf("nil Resolve() = %q, want unknown", got)
	}
}

func TestRetryConfig_ResolveVolume(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{
		"default-source": "/photos",
	}))

	config := fastRetryConfig()
	if got := config.resolveVolume("/photos/a.jpg"); got != "default-source" {
		t.Errorf("resolveVolume() = %q, want default-source", got)
	}

	config.VolumeResolver = NewVolumeResolver(map[string]string{
		"override-source": "/photos",
	})
	if got := config.resolveVolume("/photos/a.jpg"); got != "override-source" {
		t.Errorf("resolveVolume() = %q, want override-source", got)
	}
}

// =============================================================================
// Retry loop Tests
// =============================================================================

type recordingObserver struct {
	mu       sync.Mutex
	ops      []string
	attempts int
	stale    int
	success  int
	failures int
}

func (r *recordingObserver) ObserveOperation(volume, operation string, _ float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("%s:%s:%v", volume, operation, err != nil))
}

func (r *recordingObserver) ObserveRetryAttempt(string, string) {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetrySuccess(string, string) {
	r.mu.Lock()
	r.success++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetryFailure(string, string) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetryDuration(string, string, float64) {}

func (r *recordingObserver) ObserveStaleError(string, string) {
	r.mu.Lock()
	r.stale++
	r.mu.Unlock()
}

func TestWithRetry_RecoversFromStaleHandle(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	err := withRetry("read", "/photos/a.jpg", fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return syscall.ESTALE
		}
		return nil
	})

	if err != nil {
		t.Fatalf("withRetry() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.success != 1 || obs.failures != 0 {
		t.Errorf("observer counts stale=%d attempts=%d success=%d failures=%d, want 2/2/1/0",
			obs.stale, obs.attempts, obs.success, obs.failures)
	}
	if len(obs.ops) != 1 || !strings.HasSuffix(obs.ops[0], ":read:false") {
		t.Errorf("operations = %v, want a single successful read", obs.ops)
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	err := withRetry("stat", "/photos/a.jpg", fastRetryConfig(), func() error {
		calls++
		return syscall.ESTALE
	})

	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("fn called %d times, want 4 (1 + 3 retries)", calls)
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	err := withRetry("stat", "/photos/a.jpg", fastRetryConfig(), func() error {
		calls++
		return os.ErrPermission
	})

	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("withRetry() error = %v, want ErrPermission", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

// =============================================================================
// Operation Tests
// =============================================================================

func TestStatWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(testFile, fastRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	_, err = StatWithRetry(filepath.Join(tmpDir, "missing.txt"), fastRetryConfig())
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry(missing) error = %v, want not-exist", err)
	}
}

func TestReadFileWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "photo.jpg")
	want := []byte{0xFF, 0xD8, 0xFF, 0x00}
	if err := os.WriteFile(testFile, want, 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	got, err := ReadFileWithRetry(testFile, fastRetryConfig())
	if err != nil {
		t.Fatalf("ReadFileWithRetry() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFileWithRetry() = %v, want %v", got, want)
	}
}

func TestEnsureDir_ConcurrentCreation(t *testing.T) {
	target := filepath.Join(t.TempDir(), "2024", "07", "thumbs")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- EnsureDir(target, fastRetryConfig())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("EnsureDir() error = %v", err)
		}
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory %s not created: %v", target, err)
	}

	// Idempotent on an existing directory
	if err := EnsureDir(target, fastRetryConfig()); err != nil {
		t.Errorf("EnsureDir() on existing dir error = %v", err)
	}
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "thumbs")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}

	if err := EnsureDir(blocker, fastRetryConfig()); err == nil {
		t.Error("EnsureDir() over a regular file should fail")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "sunset.json")

	if err := WriteFileAtomic(target, []byte(`{"a":1}`), fastRetryConfig()); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(target, []byte(`{"a":2}`), fastRetryConfig()); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Errorf("content = %q, want overwritten value", got)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only the target (no temp files left)", names)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "sunset.jpg")
	if err := WriteFileAtomic(target, []byte("x"), fastRetryConfig()); err == nil {
		t.Error("WriteFileAtomic() into a missing directory should fail")
	}
}

func BenchmarkVolumeResolver_Resolve(b *testing.B) {
	vr := NewVolumeResolver(map[string]string{
		"source": "/photos",
		"output": "/srv/gallery",
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = vr.Resolve("/srv/gallery/2024/07/thumbs/sunset.jpg")
	}
}
