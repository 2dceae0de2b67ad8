package usecase

import (
	"context"
	"strings"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/gateway"
	"github.com/rs/zerolog"
)

// StructuralThreshold is the minimum share of matching files a repository needs.
const StructuralThreshold = 0.11

// DefaultSuffix is the file suffix counted by the structural filter (Puppet manifests).
const DefaultSuffix = ".pp"

// StructuralRatio returns the share of regular files whose path ends with suffix.
// ok is false when the listing holds no regular file.
func StructuralRatio(files []domain.FileEntry, suffix string) (ratio float64, ok bool) {
	total, matching := 0, 0
	for _, f := range files {
		if f.Type != domain.EntryTypeBlob {
			continue
		}
		total++
		if strings.HasSuffix(f.Path, suffix) {
			matching++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(matching) / float64(total), true
}

// StructurallyEligible applies the threshold to a listing. Empty listings are not eligible.
func StructurallyEligible(files []domain.FileEntry, suffix string) bool {
	ratio, ok := StructuralRatio(files, suffix)
	return ok && ratio >= StructuralThreshold
}

// StructuralFilter checks the file composition of a repository, whatever
// provider the listing comes from.
type StructuralFilter struct {
	lister gateway.TreeLister
	suffix string
	logger zerolog.Logger
}

// NewStructuralFilter creates a filter counting files ending with suffix.
func NewStructuralFilter(lister gateway.TreeLister, suffix string, logger zerolog.Logger) *StructuralFilter {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &StructuralFilter{lister: lister, suffix: suffix, logger: logger}
}

// Check lists the repository and reports whether it is eligible, with the measured ratio.
func (f *StructuralFilter) Check(ctx context.Context, info domain.RepositoryInfo) (bool, float64, error) {
	files, err := f.lister.ListFiles(ctx, info)
	if err != nil {
		return false, 0, err
	}
	ratio, _ := StructuralRatio(files, f.suffix)
	f.logger.Debug().
		Str("repo", info.ID.String()).
		Int("entries", len(files)).
		Float64("ratio", ratio).
		Msg("Computed structural ratio.")
	return StructurallyEligible(files, f.suffix), ratio, nil
}
