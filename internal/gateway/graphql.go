package gateway

import (
	"context"
	"fmt"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
)

// historyQuery walks the default branch history between two instants.
type historyQuery struct {
	Repository struct {
		DefaultBranchRef struct {
			Target struct {
				Commit struct {
					History struct {
						PageInfo struct {
							HasNextPage bool
							EndCursor   githubv4.String
						}
						Nodes []struct {
							Oid             githubv4.GitObjectID
							MessageHeadline githubv4.String
							CommittedDate   githubv4.DateTime
							AuthoredDate    githubv4.DateTime
						}
					} `graphql:"history(first: $first, after: $cursor, since: $since, until: $until)"`
				} `graphql:"... on Commit"`
			}
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// GraphQLHistory returns a CommitSource backed by the GraphQL API.
// It needs an authenticated client; GitHub rejects anonymous GraphQL calls.
func (g *GitHubGateway) GraphQLHistory() CommitSource {
	return &graphqlHistory{client: g.graphqlClient, logger: g.logger}
}

type graphqlHistory struct {
	client *githubv4.Client
	logger zerolog.Logger
}

func (h *graphqlHistory) Commits(repo domain.RepositoryID, q CommitQuery) CommitPager {
	return &graphqlCommitPager{
		client: h.client,
		repo:   repo,
		variables: map[string]interface{}{
			"owner":  githubv4.String(repo.Owner()),
			"name":   githubv4.String(repo.Name()),
			"first":  githubv4.Int(q.PerPage),
			"cursor": (*githubv4.String)(nil),
			"since":  githubv4.GitTimestamp{Time: q.Since},
			"until":  githubv4.GitTimestamp{Time: q.Until},
		},
		logger: h.logger,
	}
}

type graphqlCommitPager struct {
	client    *githubv4.Client
	repo      domain.RepositoryID
	variables map[string]interface{}
	page      int
	done      bool
	logger    zerolog.Logger
}

func (p *graphqlCommitPager) NextPage(ctx context.Context) ([]domain.RawCommit, error) {
	if p.done {
		return nil, nil
	}
	p.page++

	var q historyQuery
	if err := p.client.Query(ctx, &q, p.variables); err != nil {
		return nil, fmt.Errorf("failed to execute GraphQL query for history of %s: %w", p.repo, err)
	}

	history := q.Repository.DefaultBranchRef.Target.Commit.History
	page := make([]domain.RawCommit, 0, len(history.Nodes))
	for _, node := range history.Nodes {
		page = append(page, domain.RawCommit{
			SHA:           string(node.Oid),
			CommitterDate: node.CommittedDate.Time,
			AuthorDate:    node.AuthoredDate.Time,
			Message:       string(node.MessageHeadline),
		})
	}

	if history.PageInfo.HasNextPage {
		p.variables["cursor"] = githubv4.NewString(history.PageInfo.EndCursor)
	} else {
		p.done = true
	}
	p.logger.Debug().Str("repo", p.repo.String()).Int("page", p.page).Int("commits", len(page)).Msg("  Fetched page of history...")
	return page, nil
}
