package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/gateway"
	"github.com/rs/zerolog"
)

// Evaluator decides whether one repository is eligible and collects its commits.
// It is the single place where lower-level errors become outcomes.
type Evaluator struct {
	repos     gateway.RepositoryFetcher
	structure *StructuralFilter
	activity  *Aggregator
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewEvaluator wires the three checks together. A zero timeout means no per-repository limit.
func NewEvaluator(repos gateway.RepositoryFetcher, structure *StructuralFilter, activity *Aggregator, timeout time.Duration, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		repos:     repos,
		structure: structure,
		activity:  activity,
		timeout:   timeout,
		logger:    logger,
	}
}

// Evaluate runs availability, structure and activity checks in that order,
// stopping at the first one that fails.
func (e *Evaluator) Evaluate(ctx context.Context, repo domain.RepositoryID) domain.Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	log := e.logger.With().Str("repo", repo.String()).Logger()
	log.Info().Msg("Checking repository...")

	info, err := e.repos.FetchRepository(ctx, repo)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			log.Info().Err(err).Msg("Repository unavailable.")
			return domain.Rejected(repo, err.Error())
		}
		return e.fail(log, repo, err)
	}
	if !info.Available() {
		reason := "unavailable (archived/disabled)"
		log.Info().Bool("archived", info.Archived).Bool("disabled", info.Disabled).Msg("Repository " + reason + ".")
		return domain.Rejected(repo, reason)
	}

	eligible, ratio, err := e.structure.Check(ctx, info)
	if err != nil {
		return e.fail(log, repo, err)
	}
	if !eligible {
		reason := fmt.Sprintf("structural ratio %.4f below %.2f for %q", ratio, StructuralThreshold, e.structure.suffix)
		log.Info().Float64("ratio", ratio).Msg("Repository rejected by structural filter.")
		return domain.Rejected(repo, reason)
	}

	activity, err := e.activity.Aggregate(ctx, repo)
	if err != nil {
		return e.fail(log, repo, err)
	}
	if !activity.Sufficient() {
		reason := fmt.Sprintf("average of %.3f commits per month below %.0f", activity.Average, MinMonthlyAverage)
		log.Info().Float64("avg_per_month", activity.Average).Int("commits", len(activity.Commits)).Msg("Repository rejected by commit activity.")
		return domain.Rejected(repo, reason)
	}

	log.Info().Int("commits", len(activity.Commits)).Msg("Repository accepted.")
	return domain.Accepted(repo, activity.Commits)
}

func (e *Evaluator) fail(log zerolog.Logger, repo domain.RepositoryID, err error) domain.Outcome {
	log.Error().Err(err).Msg("Repository evaluation failed.")
	return domain.Failed(repo, err)
}
