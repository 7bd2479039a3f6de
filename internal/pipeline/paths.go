package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"gallery-pipeline/internal/walker"
)

// Layout selects how derivative directories are arranged under the output
// root.
type Layout string

const (
	// LayoutYearFirst writes <out>/<year>/<month>/{thumbs,previews,meta}/<name>.
	LayoutYearFirst Layout = "year-first"
	// LayoutKindFirst writes <out>/{thumbs,previews,meta}/<year>/<month>/<name>.
	LayoutKindFirst Layout = "kind-first"
)

// Output subdirectory names.
const (
	ThumbsDir   = "thumbs"
	PreviewsDir = "previews"
	MetaDir     = "meta"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutYearFirst, LayoutKindFirst:
		return l, nil
	default:
		return "", fmt.Errorf("unknown output layout %q (want year-first or kind-first)", s)
	}
}

// DerivativeSet holds the three output paths for one source asset.
type DerivativeSet struct {
	Thumbnail string
	Preview   string
	Meta      string
}

// Dirs returns the distinct parent directories of the set.
func (d DerivativeSet) Dirs() []string {
	return []string{filepath.Dir(d.Thumbnail), filepath.Dir(d.Preview), filepath.Dir(d.Meta)}
}

// Paths returns the derivative paths for asset. The result depends only on
// its arguments.
func Paths(asset walker.SourceAsset, outputRoot, outputExt string, layout Layout) DerivativeSet {
	name := filepath.FromSlash(asset.Name)

	dir := func(kind string) string {
		if layout == LayoutKindFirst {
			return filepath.Join(outputRoot, kind, asset.Year, asset.Month)
		}
		return filepath.Join(outputRoot, asset.Year, asset.Month, kind)
	}

	return DerivativeSet{
		Thumbnail: filepath.Join(dir(ThumbsDir), name+outputExt),
		Preview:   filepath.Join(dir(PreviewsDir), name+outputExt),
		Meta:      filepath.Join(dir(MetaDir), name+".json"),
	}
}
