// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/gateway"
	"github.com/rs/zerolog"
)

const (
	// DefaultWindowMonths is the length of the rolling window.
	DefaultWindowMonths = 24
	// DefaultPageSize is the number of commits requested per page.
	DefaultPageSize = 100
	// MinMonthlyAverage is the lowest accepted average of commits per window month.
	MinMonthlyAverage = 2.0
)

// Activity is the result of aggregating one repository's history.
type Activity struct {
	Window domain.Window
	// Buckets counts qualifying commits per month, including empty months.
	Buckets map[domain.MonthKey]int
	Average float64
	// Commits holds the qualifying commits in retrieval order.
	Commits []domain.CommitRecord
}

// Sufficient reports whether the average reaches MinMonthlyAverage.
func (a Activity) Sufficient() bool {
	return a.Average >= MinMonthlyAverage
}

// Aggregator is the use case for aggregating commit activity over a rolling window.
type Aggregator struct {
	source       gateway.CommitSource
	windowMonths int
	pageSize     int
	now          func() time.Time
	logger       zerolog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWindowMonths sets the window length.
func WithWindowMonths(months int) AggregatorOption {
	return func(a *Aggregator) { a.windowMonths = months }
}

// WithPageSize sets the page size.
func WithPageSize(size int) AggregatorOption {
	return func(a *Aggregator) { a.pageSize = size }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(source gateway.CommitSource, logger zerolog.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		source:       source,
		windowMonths: DefaultWindowMonths,
		pageSize:     DefaultPageSize,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Window returns the window the next Aggregate call will use.
func (a *Aggregator) Window() domain.Window {
	return domain.NewWindow(a.now(), a.windowMonths)
}

// Aggregate pages through the repository history until an empty page,
// keeping the commits whose integration time falls inside the window.
// The average divides by the configured window length, not by the number of active months.
func (a *Aggregator) Aggregate(ctx context.Context, repo domain.RepositoryID) (Activity, error) {
	window := a.Window()
	activity := Activity{
		Window:  window,
		Buckets: make(map[domain.MonthKey]int, window.Months),
	}
	for _, key := range window.MonthKeys() {
		activity.Buckets[key] = 0
	}

	pager := a.source.Commits(repo, gateway.CommitQuery{
		Since:   window.Start,
		Until:   window.End,
		PerPage: a.pageSize,
	})
	seen := make(map[string]struct{})
	for {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return Activity{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			at, err := c.IntegrationTime()
			if err != nil {
				return Activity{}, err
			}
			// The server-side filter is not exact; re-check locally.
			if !window.Contains(at) {
				continue
			}
			// Page-number listings can repeat a commit when history moves during the walk.
			if _, dup := seen[c.SHA]; dup {
				continue
			}
			seen[c.SHA] = struct{}{}
			activity.Buckets[domain.MonthOf(at)]++
			activity.Commits = append(activity.Commits, domain.CommitRecord{
				SHA:     c.SHA,
				Date:    at,
				Message: domain.FirstLine(c.Message),
			})
		}
	}

	average, err := monthlyAverage(window, activity.Buckets)
	if err != nil {
		return Activity{}, fmt.Errorf("failed to compute monthly average of %s: %w", repo, err)
	}
	activity.Average = average
	a.logger.Debug().
		Str("repo", repo.String()).
		Int("commits", len(activity.Commits)).
		Float64("avg_per_month", average).
		Msg("Aggregated commit activity.")
	return activity, nil
}

// monthlyAverage is the mean of the dense month series, which equals
// total commits divided by the window length.
func monthlyAverage(window domain.Window, buckets map[domain.MonthKey]int) (float64, error) {
	series := make(stats.Float64Data, 0, window.Months)
	for _, key := range window.MonthKeys() {
		series = append(series, float64(buckets[key]))
	}
	return stats.Mean(series)
}
