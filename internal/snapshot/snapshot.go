// Package snapshot materializes shallow clones of repositories in a local
// cache directory and lists the files of their checked-out tree.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultCloneURL is the clone URL template; %s is replaced by "owner/name".
const DefaultCloneURL = "https://github.com/%s.git"

// Options configures a Store.
type Options struct {
	// CacheDir is the root under which clones are kept as <owner>/<name>.
	CacheDir string
	// CloneURL is a fmt template receiving the repository identifier.
	CloneURL string
	// Token authenticates clones over HTTPS when set.
	Token string
	// Depth limits the fetched history; zero means full history.
	Depth int
}

// Store is a TreeLister backed by local clones.
type Store struct {
	opts   Options
	group  singleflight.Group
	logger zerolog.Logger
}

// New creates a Store. A shallow single-commit clone is used unless opts.Depth is negative.
func New(opts Options, logger zerolog.Logger) *Store {
	if opts.CloneURL == "" {
		opts.CloneURL = DefaultCloneURL
	}
	if opts.Depth == 0 {
		opts.Depth = 1
	} else if opts.Depth < 0 {
		opts.Depth = 0
	}
	return &Store{opts: opts, logger: logger}
}

// Path returns the cache directory of repo.
func (s *Store) Path(repo domain.RepositoryID) string {
	return filepath.Join(s.opts.CacheDir, repo.Owner(), repo.Name())
}

// ListFiles returns every file of the HEAD tree of the cached clone,
// cloning it first when needed. A repository without commits has an empty listing.
func (s *Store) ListFiles(ctx context.Context, info domain.RepositoryInfo) ([]domain.FileEntry, error) {
	r, err := s.Materialize(ctx, info.ID)
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		s.logger.Debug().Str("repo", info.ID.String()).Msg("Remote repository is empty.")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	head, err := r.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		s.logger.Debug().Str("repo", info.ID.String()).Msg("Cached clone has no commits.")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD of %s: %w", info.ID, err)
	}
	commit, err := r.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit of %s: %w", info.ID, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", info.ID, err)
	}

	var files []domain.FileEntry
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, domain.FileEntry{Path: f.Name, Type: domain.EntryTypeBlob})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree of %s: %w", info.ID, err)
	}
	s.logger.Debug().Str("repo", info.ID.String()).Int("files", len(files)).Msg("Listed local snapshot.")
	return files, nil
}

// Materialize opens the cached clone of repo or clones it. Concurrent calls
// for the same repository share a single clone.
func (s *Store) Materialize(ctx context.Context, repo domain.RepositoryID) (*git.Repository, error) {
	v, err, _ := s.group.Do(repo.String(), func() (interface{}, error) {
		return s.openOrClone(ctx, repo)
	})
	if err != nil {
		return nil, err
	}
	return v.(*git.Repository), nil
}

func (s *Store) openOrClone(ctx context.Context, repo domain.RepositoryID) (*git.Repository, error) {
	dir := s.Path(repo)
	r, err := git.PlainOpen(dir)
	if err == nil {
		s.logger.Debug().Str("repo", repo.String()).Str("dir", dir).Msg("Reusing cached clone.")
		return r, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("failed to open cached clone %s: %w", dir, err)
	}

	// A failed earlier clone may have left a partial directory behind.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear cache directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cloneOpts := &git.CloneOptions{
		URL:          s.cloneURL(repo),
		Depth:        s.opts.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if s.opts.Token != "" && strings.HasPrefix(cloneOpts.URL, "https://") {
		cloneOpts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: s.opts.Token}
	}

	s.logger.Info().Str("repo", repo.String()).Str("dir", dir).Msg("Cloning repository...")
	r, err = git.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to clone %s: %w", repo, err)
	}
	return r, nil
}

func (s *Store) cloneURL(repo domain.RepositoryID) string {
	if !strings.Contains(s.opts.CloneURL, "%s") {
		return strings.TrimSuffix(s.opts.CloneURL, "/") + "/" + repo.String()
	}
	return fmt.Sprintf(s.opts.CloneURL, repo)
}
