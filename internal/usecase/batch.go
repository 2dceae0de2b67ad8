package usecase

import (
	"context"
	"time"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RepositoryEvaluator evaluates a single repository.
type RepositoryEvaluator interface {
	Evaluate(ctx context.Context, repo domain.RepositoryID) domain.Outcome
}

// Batch runs the evaluator over an ordered list of repositories.
type Batch struct {
	evaluator   RepositoryEvaluator
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewBatch creates a Batch. Concurrency below 2 evaluates strictly sequentially.
func NewBatch(evaluator RepositoryEvaluator, concurrency int, m *metrics.Metrics, logger zerolog.Logger) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{evaluator: evaluator, concurrency: concurrency, metrics: m, logger: logger}
}

// Run evaluates every repository once and returns the outcomes in input order.
// Duplicates keep their first position. A failing repository never stops the batch.
func (b *Batch) Run(ctx context.Context, repos []domain.RepositoryID) domain.EvaluationResult {
	unique := dedupe(repos)
	b.logger.Info().Int("repositories", len(unique)).Int("concurrency", b.concurrency).Msg("Usecase: Starting batch evaluation...")

	results := make(domain.EvaluationResult, len(unique))
	// Use an errgroup to bound the number of evaluations in flight.
	var eg errgroup.Group
	eg.SetLimit(b.concurrency)
	for i, repo := range unique {
		i, repo := i, repo
		eg.Go(func() error {
			start := time.Now()
			outcome := b.evaluator.Evaluate(ctx, repo)
			b.metrics.ObserveOutcome(outcome, time.Since(start))
			results[i] = outcome
			return nil
		})
	}
	_ = eg.Wait()

	b.logger.Info().Int("accepted", results.Accepted()).Int("total", len(results)).Msg("Usecase: Batch evaluation complete.")
	return results
}

func dedupe(repos []domain.RepositoryID) []domain.RepositoryID {
	seen := make(map[domain.RepositoryID]struct{}, len(repos))
	out := make([]domain.RepositoryID, 0, len(repos))
	for _, r := range repos {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
