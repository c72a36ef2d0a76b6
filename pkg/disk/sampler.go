package disk

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// Sampler measures bytes used under a set of paths.
type Sampler interface {
	Sample(ctx context.Context, paths, exclusions []string) types.DiskSample
}

// WalkSampler is the synchronous reference sampler. It counts regular files
// only, never follows symbolic links, and degrades toward the accessible
// subset on permission or missing-file errors. It never returns an error:
// a partially walked tree yields a partial total.
type WalkSampler struct {
	now func() time.Time
}

// NewWalkSampler creates a synchronous sampler.
func NewWalkSampler() *WalkSampler {
	return &WalkSampler{now: time.Now}
}

// Sample walks every path and sums the sizes of regular files, skipping any
// entry that equals or sits under an exclusion.
func (s *WalkSampler) Sample(ctx context.Context, paths, exclusions []string) types.DiskSample {
	logger := log.Ctx(ctx).With().Str("component", "sampler").Logger()

	var total int64
	for _, root := range paths {
		n, err := s.walk(ctx, root, exclusions, logger)
		total += n
		if err != nil {
			// Top-level failure: keep whatever was accumulated so far.
			logger.Warn().Err(err).Str("path", root).Msg("sample walk incomplete")
		}
	}

	return types.DiskSample{
		Timestamp:  s.now(),
		BytesUsed:  total,
		Paths:      append([]string(nil), paths...),
		Exclusions: append([]string(nil), exclusions...),
	}
}

func (s *WalkSampler) walk(ctx context.Context, root string, exclusions []string, logger zerolog.Logger) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return fs.SkipAll
		}
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if excluded(path, exclusions) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			logger.Warn().Err(ierr).Str("path", path).Msg("skipping unstatable file")
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// excluded reports whether path equals or sits under any exclusion entry.
func excluded(path string, exclusions []string) bool {
	cleaned := filepath.Clean(path)
	for _, ex := range exclusions {
		ex = filepath.Clean(ex)
		if cleaned == ex || strings.HasPrefix(cleaned, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
