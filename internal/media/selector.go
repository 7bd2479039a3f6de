package media

import (
	"errors"
	"fmt"
	"strings"

	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/mediatypes"
	"gallery-pipeline/internal/metrics"
)

// Mode is the backend selection policy.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeFastOnly    Mode = "fast-only"
	ModeGeneralOnly Mode = "general-only"
)

// ParseMode validates a backend mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeFastOnly, ModeGeneralOnly:
		return m, nil
	default:
		return "", fmt.Errorf("unknown backend mode %q (want auto, fast-only or general-only)", s)
	}
}

// Decoded is the outcome of a successful Selector.Decode.
type Decoded struct {
	Image   Image
	Backend Backend

	// FellBack is true when the fast backend failed and the general backend
	// decoded the image instead.
	FellBack bool
}

// Selector applies the backend policy for one run:
//
//	mode          HEIC/HEIF               other supported formats
//	fast-only     unsupported format      fast; decode failure is final
//	general-only  general                 general
//	auto          general or missing cap  fast, then general on decode failure
//
// In auto mode the general backend is also used directly when the fast
// backend cannot encode the output format.
type Selector struct {
	mode    Mode
	fast    Backend
	general Backend
	output  Format
}

// NewSelector creates a selector. general may be nil when libvips is not
// available.
func NewSelector(mode Mode, fast, general Backend, output Format) *Selector {
	return &Selector{
		mode:    mode,
		fast:    fast,
		general: general,
		output:  output,
	}
}

// Mode returns the configured policy.
func (s *Selector) Mode() Mode {
	return s.mode
}

// HasGeneral reports whether a general backend is configured.
func (s *Selector) HasGeneral() bool {
	return s.general != nil
}

// Decode picks a backend for contentType and decodes data with it.
func (s *Selector) Decode(contentType string, data []byte) (*Decoded, error) {
	switch s.mode {
	case ModeFastOnly:
		return s.decodeFastOnly(contentType, data)
	case ModeGeneralOnly:
		return s.decodeWith(s.general, contentType, data)
	default:
		return s.decodeAuto(contentType, data)
	}
}

func (s *Selector) decodeFastOnly(contentType string, data []byte) (*Decoded, error) {
	if s.fast == nil || !s.fast.CanDecode(contentType) {
		return nil, fmt.Errorf("%w: %s requires the general backend", ErrUnsupportedFormat, contentType)
	}
	if !s.fast.CanEncode(s.output) {
		return nil, fmt.Errorf("%w: fast backend cannot encode %s", ErrMissingCapability, s.output)
	}
	return s.decodeWith(s.fast, contentType, data)
}

func (s *Selector) decodeAuto(contentType string, data []byte) (*Decoded, error) {
	fastUsable := s.fast != nil &&
		!mediatypes.IsHEIF(contentType) &&
		s.fast.CanDecode(contentType) &&
		s.fast.CanEncode(s.output)

	if !fastUsable {
		if s.general == nil && s.fast != nil && !mediatypes.IsHEIF(contentType) && !s.fast.CanDecode(contentType) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
		}
		return s.decodeWith(s.general, contentType, data)
	}

	img, err := s.fast.Decode(data)
	if err == nil {
		metrics.DecodeByFormat.WithLabelValues(contentType, s.fast.Name()).Inc()
		return &Decoded{Image: img, Backend: s.fast}, nil
	}

	if s.general == nil || !s.general.CanDecode(contentType) {
		return nil, err
	}

	logging.Debug("Fast decode failed (%v), falling back to %s", err, s.general.Name())
	metrics.BackendFallbacks.Inc()

	img, gerr := s.general.Decode(data)
	if gerr != nil {
		return nil, errors.Join(err, gerr)
	}
	metrics.DecodeByFormat.WithLabelValues(contentType, s.general.Name()).Inc()
	return &Decoded{Image: img, Backend: s.general, FellBack: true}, nil
}

func (s *Selector) decodeWith(b Backend, contentType string, data []byte) (*Decoded, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: %s needs the general backend, which is not available", ErrMissingCapability, contentType)
	}
	if !b.CanDecode(contentType) {
		return nil, fmt.Errorf("%w: %s backend cannot decode %s", ErrUnsupportedFormat, b.Name(), contentType)
	}
	if !b.CanEncode(s.output) {
		return nil, fmt.Errorf("%w: %s backend cannot encode %s", ErrMissingCapability, b.Name(), s.output)
	}

	img, err := b.Decode(data)
	if err != nil {
		return nil, err
	}
	metrics.DecodeByFormat.WithLabelValues(contentType, b.Name()).Inc()
	return &Decoded{Image: img, Backend: b}, nil
}
