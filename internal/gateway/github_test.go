package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) (*GitHubGateway, *httptest.Server) {
	server := httptest.NewServer(handler)

	// Setup REST client to point to the mock server.
	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	// Use NewEnterpriseClient to point the GraphQL client to our mock server's URL.
	graphqlClient := githubv4.NewEnterpriseClient(server.URL, server.Client())

	gateway := &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        zerolog.Nop(),
	}

	return gateway, server
}

func TestGitHubGateway_FetchRepository(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expectedInfo   domain.RepositoryInfo
		expectUnavail  bool
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path - available repository",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/acme/puppet-nginx", r.URL.Path)
				fmt.Fprint(w, `{"full_name":"acme/puppet-nginx","default_branch":"develop","archived":false,"disabled":false}`)
			},
			expectedInfo: domain.RepositoryInfo{ID: "acme/puppet-nginx", DefaultBranch: "develop"},
		},
		{
			name: "archived repository is reported, not rejected here",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"default_branch":"main","archived":true}`)
			},
			expectedInfo: domain.RepositoryInfo{ID: "acme/puppet-nginx", DefaultBranch: "main", Archived: true},
		},
		{
			name: "missing default branch falls back to main",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"disabled":true}`)
			},
			expectedInfo: domain.RepositoryInfo{ID: "acme/puppet-nginx", DefaultBranch: "main", Disabled: true},
		},
		{
			name: "not found is unavailable",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"Not Found"}`)
			},
			expectUnavail: true,
			expectError:   true,
		},
		{
			name: "unavailable for legal reasons is unavailable",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnavailableForLegalReasons)
				fmt.Fprint(w, `{"message":"Repository access blocked"}`)
			},
			expectUnavail: true,
			expectError:   true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, server := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()
			info, err := gateway.FetchRepository(context.Background(), "acme/puppet-nginx")
			if tc.expectError {
				require.Error(t, err)
				assert.Equal(t, tc.expectUnavail, isUnavailable(err))
				if tc.expectedErrMsg != "" {
					assert.Contains(t, err.Error(), tc.expectedErrMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedInfo, info)
			}
		})
	}
}

func TestGitHubGateway_ListFiles(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/puppet-nginx/branches/develop", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "branch")
		fmt.Fprint(w, `{"name":"develop","commit":{"sha":"c0ffee"}}`)
	})
	mux.HandleFunc("/repos/acme/puppet-nginx/commits/c0ffee", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "commit")
		fmt.Fprint(w, `{"sha":"c0ffee","commit":{"tree":{"sha":"7ree"}}}`)
	})
	mux.HandleFunc("/repos/acme/puppet-nginx/git/trees/7ree", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "tree")
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprint(w, `{"sha":"7ree","truncated":false,"tree":[
			{"path":"manifests","type":"tree"},
			{"path":"manifests/init.pp","type":"blob"},
			{"path":"README.md","type":"blob"}
		]}`)
	})
	gateway, server := setupTestGateway(t, mux)
	defer server.Close()

	files, err := gateway.ListFiles(context.Background(), domain.RepositoryInfo{ID: "acme/puppet-nginx", DefaultBranch: "develop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"branch", "commit", "tree"}, calls)
	assert.Equal(t, []domain.FileEntry{
		{Path: "manifests", Type: "tree"},
		{Path: "manifests/init.pp", Type: "blob"},
		{Path: "README.md", Type: "blob"},
	}, files)
}

func TestGitHubGateway_ListFiles_Error(t *testing.T) {
	gateway, server := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Branch not found"}`)
	}))
	defer server.Close()

	_, err := gateway.ListFiles(context.Background(), domain.RepositoryInfo{ID: "acme/empty", DefaultBranch: "main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get branch main of acme/empty")
}

func TestGitHubGateway_Commits(t *testing.T) {
	since := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	var pages []string

	gateway, server := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/puppet-nginx/commits", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("per_page"))
		assert.Equal(t, since.Format(time.RFC3339), q.Get("since"))
		assert.Equal(t, until.Format(time.RFC3339), q.Get("until"))
		pages = append(pages, q.Get("page"))
		switch q.Get("page") {
		case "1":
			fmt.Fprint(w, `[
				{"sha":"a1","commit":{"message":"Fix ordering\n\nlong body","committer":{"date":"2025-09-03T10:00:00Z"},"author":{"date":"2025-09-01T10:00:00Z"}}},
				{"sha":"a2","commit":{"message":"Add class","author":{"date":"2024-03-05T10:00:00Z"}}}
			]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	pager := gateway.Commits("acme/puppet-nginx", CommitQuery{Since: since, Until: until, PerPage: 2})

	first, err := pager.NextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a1", first[0].SHA)
	assert.Equal(t, "Fix ordering\n\nlong body", first[0].Message)
	assert.True(t, first[0].CommitterDate.Equal(time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)))
	assert.True(t, first[1].CommitterDate.IsZero())
	assert.True(t, first[1].AuthorDate.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))

	second, err := pager.NextPage(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestGitHubGateway_Commits_Error(t *testing.T) {
	gateway, server := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message": "Internal Server Error"}`)
	}))
	defer server.Close()

	_, err := gateway.Commits("acme/puppet-nginx", CommitQuery{PerPage: 100}).NextPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list commits of acme/puppet-nginx (page 1)")
}

func TestGitHubGateway_GraphQLHistory(t *testing.T) {
	requests := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "history(first: $first, after: $cursor, since: $since, until: $until)")
		requests++

		w.WriteHeader(http.StatusOK)
		if requests == 1 {
			assert.Contains(t, string(body), `"cursor":null`)
			fmt.Fprint(w, `{"data":{"repository":{"defaultBranchRef":{"target":{"history":{
				"pageInfo":{"hasNextPage":true,"endCursor":"abc"},
				"nodes":[{"oid":"a1","messageHeadline":"Fix ordering","committedDate":"2025-09-03T10:00:00Z","authoredDate":"2025-09-01T10:00:00Z"}]
			}}}}}}`)
			return
		}
		assert.Contains(t, string(body), `"cursor":"abc"`)
		fmt.Fprint(w, `{"data":{"repository":{"defaultBranchRef":{"target":{"history":{
			"pageInfo":{"hasNextPage":false,"endCursor":"def"},
			"nodes":[{"oid":"a2","messageHeadline":"Add class","committedDate":"2025-08-03T10:00:00Z","authoredDate":"2025-08-01T10:00:00Z"}]
		}}}}}}`)
	}
	gateway, server := setupTestGateway(t, http.HandlerFunc(handler))
	defer server.Close()

	pager := gateway.GraphQLHistory().Commits("acme/puppet-nginx", CommitQuery{PerPage: 100})
	var shas []string
	for {
		page, err := pager.NextPage(context.Background())
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			shas = append(shas, c.SHA)
		}
	}
	assert.Equal(t, []string{"a1", "a2"}, shas)
	assert.Equal(t, 2, requests)
}

func TestGitHubGateway_GraphQLHistory_Error(t *testing.T) {
	gateway, server := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"errors":[{"message":"Something went wrong"}]}`)
	}))
	defer server.Close()

	_, err := gateway.GraphQLHistory().Commits("acme/puppet-nginx", CommitQuery{PerPage: 100}).NextPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute GraphQL query")
}

func TestNewGitHubGateway_UnauthenticatedWithBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v3/repos/acme/puppet-nginx", r.URL.Path)
		fmt.Fprint(w, `{"default_branch":"main"}`)
	}))
	defer server.Close()

	gateway, err := NewGitHubGateway("", Options{BaseURL: server.URL + "/api/v3"}, zerolog.Nop())
	require.NoError(t, err)

	info, err := gateway.FetchRepository(context.Background(), "acme/puppet-nginx")
	require.NoError(t, err)
	assert.Equal(t, "main", info.DefaultBranch)
}

func TestNewGitHubGateway_SendsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"default_branch":"main"}`)
	}))
	defer server.Close()

	gateway, err := NewGitHubGateway("s3cret", Options{BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = gateway.FetchRepository(context.Background(), "acme/puppet-nginx")
	require.NoError(t, err)
}
