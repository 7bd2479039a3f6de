package walker

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/mediatypes"
)

// SourceAsset describes one photograph found under the source root. Values
// are created by the walker and never modified.
type SourceAsset struct {
	// RelPath is the slash-separated path relative to the source root.
	RelPath string
	Year    string
	Month   string
	// Name is the path below <year>/<month> without extension, e.g. "sunset"
	// or "trip/sunset".
	Name    string
	Ext     string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// SkipReason explains why a file was not yielded.
type SkipReason string

const (
	// SkipLayout marks files outside a <year>/<month>/ directory.
	SkipLayout SkipReason = "layout"
	// SkipExtension marks files whose extension is not allow-listed.
	SkipExtension SkipReason = "extension"
)

// Skip describes a file the walker passed over.
type Skip struct {
	RelPath string
	AbsPath string
	Ext     string
	Reason  SkipReason
}

// Config configures a walk.
type Config struct {
	// Root is the source directory.
	Root string
	// AllowedExtensions are matched case-insensitively, with or without dot.
	AllowedExtensions []string
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// ChannelBuffer is the size of the output channel buffer
	ChannelBuffer int
	// Ignore lists directories that are never descended into, such as an
	// output root nested inside the source root.
	Ignore []string
	// OnSkip, if set, is called from the walking goroutine for every
	// skipped file.
	OnSkip func(Skip)
}

// DefaultConfig returns a config for root with the default allow-list.
func DefaultConfig(root string) Config {
	return Config{
		Root:              root,
		AllowedExtensions: mediatypes.DefaultAllowedExtensions,
		SkipHidden:        true,
		ChannelBuffer:     64,
	}
}

// Walker enumerates source assets. A Walker may be used for any number of
// walks; each walk starts from scratch.
type Walker struct {
	config  Config
	allowed map[string]bool
	ignore  map[string]bool

	found   atomic.Int64
	skipped atomic.Int64
}

// New creates a walker.
func New(config Config) *Walker {
	allowed := make(map[string]bool, len(config.AllowedExtensions))
	for _, ext := range config.AllowedExtensions {
		if n := mediatypes.NormalizeExt(ext); n != "" {
			allowed[n] = true
		}
	}
	ignore := make(map[string]bool, len(config.Ignore))
	for _, dir := range config.Ignore {
		if dir != "" {
			ignore[absPath(dir)] = true
		}
	}
	return &Walker{config: config, allowed: allowed, ignore: ignore}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Walk starts a walk in a new goroutine. Assets arrive on the first channel,
// which is closed when the walk ends. The error channel then yields at most
// one error (an unreadable root or ctx's error) and is closed.
func (w *Walker) Walk(ctx context.Context) (<-chan SourceAsset, <-chan error) {
	assets := make(chan SourceAsset, max(w.config.ChannelBuffer, 0))
	errc := make(chan error, 1)

	w.found.Store(0)
	w.skipped.Store(0)

	go func() {
		defer close(errc)
		defer close(assets)

		start := time.Now()
		err := w.walk(ctx, assets)
		if err != nil {
			errc <- err
		}
		logging.Debug("Walk of %s finished in %v: %d assets, %d skipped",
			w.config.Root, time.Since(start), w.found.Load(), w.skipped.Load())
	}()

	return assets, errc
}

// Stats returns the counts from the current or last walk.
func (w *Walker) Stats() (found, skipped int64) {
	return w.found.Load(), w.skipped.Load()
}

func (w *Walker) walk(ctx context.Context, out chan<- SourceAsset) error {
	root := filepath.Clean(w.config.Root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return fmt.Errorf("walk source root: %w", err)
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if path == root {
			return nil
		}

		if w.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if len(w.ignore) > 0 && w.ignore[absPath(path)] {
				logging.Debug("Not descending into ignored directory %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			//nolint:nilerr // skip this file but keep walking
			return nil
		}

		asset, reason := w.classify(path, filepath.ToSlash(relPath))
		if reason != "" {
			w.skip(Skip{RelPath: filepath.ToSlash(relPath), AbsPath: path, Ext: asset.Ext, Reason: reason})
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			return nil
		}
		asset.Size = info.Size()
		asset.ModTime = info.ModTime()

		select {
		case out <- asset:
			w.found.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	return err
}

// classify splits relPath into year, month and name. It returns a non-empty
// reason when the file must be skipped.
func (w *Walker) classify(absPath, relPath string) (SourceAsset, SkipReason) {
	ext := strings.ToLower(filepath.Ext(relPath))
	asset := SourceAsset{RelPath: relPath, AbsPath: absPath, Ext: ext}

	segments := strings.Split(relPath, "/")
	if len(segments) < 3 {
		return asset, SkipLayout
	}
	if !w.allowed[ext] {
		return asset, SkipExtension
	}

	name := strings.Join(segments[2:], "/")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" {
		return asset, SkipLayout
	}

	asset.Year = segments[0]
	asset.Month = segments[1]
	asset.Name = name
	return asset, ""
}

func (w *Walker) skip(s Skip) {
	w.skipped.Add(1)
	switch s.Reason {
	case SkipExtension:
		logging.Warn("Skipping %s: extension %q not allowed", s.RelPath, s.Ext)
	default:
		logging.Warn("Skipping %s: not under <year>/<month>/", s.RelPath)
	}
	if w.config.OnSkip != nil {
		w.config.OnSkip(s)
	}
}
