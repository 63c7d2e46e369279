package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"SqueezeSentinel/internal/model"
)

// FallbackSource asks each source in turn and returns the first snapshot.
type FallbackSource struct {
	Sources []SnapshotSource
}

// NewFallbackSource chains sources in priority order, skipping nil entries.
func NewFallbackSource(sources ...SnapshotSource) *FallbackSource {
	fs := &FallbackSource{}
	for _, s := range sources {
		if s != nil {
			fs.Sources = append(fs.Sources, s)
		}
	}
	return fs
}

func (f *FallbackSource) Name() string {
	names := make([]string, len(f.Sources))
	for i, s := range f.Sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// FetchSnapshot wraps ErrUnavailable when no source has the symbol.
func (f *FallbackSource) FetchSnapshot(ctx context.Context, symbol string) (*model.Snapshot, error) {
	var errs []error
	for _, s := range f.Sources {
		snap, err := s.FetchSnapshot(ctx, symbol)
		if err == nil {
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Str("source", s.Name()).Str("symbol", symbol).Msg("snapshot source failed, trying next")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%s: %w", symbol, errors.Join(append(errs, ErrUnavailable)...))
}

// Close closes every chained source that holds resources.
func (f *FallbackSource) Close() error {
	var errs []error
	for _, s := range f.Sources {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
