// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
)

const (
	fallbackBranch = "main"
	maxRedirects   = 3
)

// RepositoryFetcher retrieves repository metadata for the availability check.
type RepositoryFetcher interface {
	// FetchRepository returns an error wrapping domain.ErrUnavailable when
	// the API answers with anything but 200.
	FetchRepository(ctx context.Context, repo domain.RepositoryID) (domain.RepositoryInfo, error)
}

// TreeLister produces the file listing of a repository snapshot.
type TreeLister interface {
	ListFiles(ctx context.Context, info domain.RepositoryInfo) ([]domain.FileEntry, error)
}

// CommitQuery bounds a commit listing. Since and Until are sent as
// server-side filters; callers must not rely on them being exact.
type CommitQuery struct {
	Since   time.Time
	Until   time.Time
	PerPage int
}

// CommitPager walks the pages of a commit listing.
// NextPage returns an empty page once the listing is exhausted.
type CommitPager interface {
	NextPage(ctx context.Context) ([]domain.RawCommit, error)
}

// CommitSource opens commit listings.
type CommitSource interface {
	Commits(repo domain.RepositoryID, q CommitQuery) CommitPager
}

// GitHubGateway is the REST (and GraphQL) implementation of the interfaces above.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        zerolog.Logger
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// An empty token yields unauthenticated, heavily rate-limited access.
func NewGitHubGateway(token string, opts Options, logger zerolog.Logger) (*GitHubGateway, error) {
	opts.setDefaults()
	httpClient, err := newHTTPClient(token, opts)
	if err != nil {
		return nil, err
	}

	restClient := github.NewClient(httpClient)
	graphqlClient := githubv4.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := strings.TrimSuffix(opts.BaseURL, "/")
		baseURL, err := url.Parse(base + "/")
		if err != nil {
			return nil, fmt.Errorf("failed to parse API base URL: %w", err)
		}
		restClient.BaseURL = baseURL
		graphqlClient = githubv4.NewEnterpriseClient(base+"/graphql", httpClient)
	}

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
	}, nil
}

// FetchRepository implements RepositoryFetcher.
func (g *GitHubGateway) FetchRepository(ctx context.Context, repo domain.RepositoryID) (domain.RepositoryInfo, error) {
	info := domain.RepositoryInfo{ID: repo}
	r, resp, err := g.restClient.Repositories.Get(ctx, repo.Owner(), repo.Name())
	if err != nil {
		var rateErr *github.RateLimitError
		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
			return info, fmt.Errorf("failed to get repository %s: %w", repo, err)
		}
		if resp != nil && resp.StatusCode != http.StatusOK {
			return info, fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
		}
		return info, fmt.Errorf("failed to get repository %s: %w", repo, err)
	}

	info.DefaultBranch = r.GetDefaultBranch()
	if info.DefaultBranch == "" {
		info.DefaultBranch = fallbackBranch
	}
	info.Archived = r.GetArchived()
	info.Disabled = r.GetDisabled()
	return info, nil
}

// ListFiles implements TreeLister by walking default branch -> commit -> tree.
func (g *GitHubGateway) ListFiles(ctx context.Context, info domain.RepositoryInfo) ([]domain.FileEntry, error) {
	owner, name := info.ID.Owner(), info.ID.Name()
	branchName := info.DefaultBranch
	if branchName == "" {
		branchName = fallbackBranch
	}

	branch, _, err := g.restClient.Repositories.GetBranch(ctx, owner, name, branchName, maxRedirects)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch %s of %s: %w", branchName, info.ID, err)
	}
	commitSHA := branch.GetCommit().GetSHA()

	commit, _, err := g.restClient.Repositories.GetCommit(ctx, owner, name, commitSHA, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s of %s: %w", commitSHA, info.ID, err)
	}
	treeSHA := commit.GetCommit().GetTree().GetSHA()

	tree, _, err := g.restClient.Git.GetTree(ctx, owner, name, treeSHA, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree %s of %s: %w", treeSHA, info.ID, err)
	}
	if tree.GetTruncated() {
		g.logger.Warn().Str("repo", info.ID.String()).Int("entries", len(tree.Entries)).Msg("tree listing truncated by the API")
	}

	files := make([]domain.FileEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		files = append(files, domain.FileEntry{Path: entry.GetPath(), Type: entry.GetType()})
	}
	g.logger.Debug().Str("repo", info.ID.String()).Int("entries", len(files)).Msg("Fetched tree listing.")
	return files, nil
}

// Commits implements CommitSource over GET /repos/{owner}/{repo}/commits.
func (g *GitHubGateway) Commits(repo domain.RepositoryID, q CommitQuery) CommitPager {
	return &restCommitPager{
		client: g.restClient,
		repo:   repo,
		opts: github.CommitsListOptions{
			Since:       q.Since,
			Until:       q.Until,
			ListOptions: github.ListOptions{PerPage: q.PerPage},
		},
		logger: g.logger,
	}
}

type restCommitPager struct {
	client *github.Client
	repo   domain.RepositoryID
	opts   github.CommitsListOptions
	page   int
	logger zerolog.Logger
}

func (p *restCommitPager) NextPage(ctx context.Context) ([]domain.RawCommit, error) {
	p.page++
	p.opts.Page = p.page
	commits, _, err := p.client.Repositories.ListCommits(ctx, p.repo.Owner(), p.repo.Name(), &p.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s (page %d): %w", p.repo, p.page, err)
	}

	page := make([]domain.RawCommit, 0, len(commits))
	for _, c := range commits {
		page = append(page, domain.RawCommit{
			SHA:           c.GetSHA(),
			CommitterDate: c.GetCommit().GetCommitter().GetDate().Time,
			AuthorDate:    c.GetCommit().GetAuthor().GetDate().Time,
			Message:       c.GetCommit().GetMessage(),
		})
	}
	p.logger.Debug().Str("repo", p.repo.String()).Int("page", p.page).Int("commits", len(page)).Msg("  Fetched page of commits...")
	return page, nil
}
