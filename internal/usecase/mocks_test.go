package usecase

import (
	"context"
	"sync"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/gateway"
	"github.com/stretchr/testify/mock"
)

// mockRepositoryFetcher is a mock implementation of gateway.RepositoryFetcher.
type mockRepositoryFetcher struct {
	mock.Mock
}

func (m *mockRepositoryFetcher) FetchRepository(ctx context.Context, repo domain.RepositoryID) (domain.RepositoryInfo, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).(domain.RepositoryInfo), args.Error(1)
}

// mockTreeLister is a mock implementation of gateway.TreeLister.
type mockTreeLister struct {
	mock.Mock
}

func (m *mockTreeLister) ListFiles(ctx context.Context, info domain.RepositoryInfo) ([]domain.FileEntry, error) {
	args := m.Called(ctx, info)
	// We need to handle the case where the returned slice is nil (e.g., when an error occurs).
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FileEntry), args.Error(1)
}

// fakeCommitSource replays the same pages every time a listing is opened.
type fakeCommitSource struct {
	mu      sync.Mutex
	pages   [][]domain.RawCommit
	err     error
	errPage int
	queries []gateway.CommitQuery
	opened  int
}

func (s *fakeCommitSource) Commits(repo domain.RepositoryID, q gateway.CommitQuery) gateway.CommitPager {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	s.opened++
	return &fakePager{source: s}
}

type fakePager struct {
	source *fakeCommitSource
	next   int
}

func (p *fakePager) NextPage(ctx context.Context) ([]domain.RawCommit, error) {
	p.next++
	if p.source.err != nil && p.next == p.source.errPage {
		return nil, p.source.err
	}
	if p.next > len(p.source.pages) {
		return nil, nil
	}
	return p.source.pages[p.next-1], nil
}

// paginate splits commits into pages of size n, as the API would.
func paginate(commits []domain.RawCommit, n int) [][]domain.RawCommit {
	var pages [][]domain.RawCommit
	for len(commits) > 0 {
		k := min(n, len(commits))
		pages = append(pages, commits[:k])
		commits = commits[k:]
	}
	return pages
}
