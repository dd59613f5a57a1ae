package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Oudwins/taskforge/internals/errs"
)

func staticToken(token string) TokenFunc {
	return func() (string, error) { return token, nil }
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGitHub(GitHubConfig{APIURL: srv.URL, Token: staticToken("tok"), RetryBase: time.Millisecond})
	require.NoError(t, err)
	return g
}

func TestParseGitHubURL(t *testing.T) {
	owner, repo, err := parseGitHubURL("git@github.com:owner/repo.git")
	require.NoError(t, err)
	require.Equal(t, "owner", owner)
	require.Equal(t, "repo", repo)

	owner, repo, err = parseGitHubURL("https://github.com/owner/repo.git")
	require.NoError(t, err)
	require.Equal(t, "owner/repo", owner+"/"+repo)

	_, _, err = parseGitHubURL("git@github.com:owner")
	require.Error(t, err)
	_, _, err = parseGitHubURL("https://example.com/owner/repo.git")
	require.Error(t, err)

	require.True(t, IsGitHubURL("git@github.com:o/r.git"))
	require.False(t, IsGitHubURL("/srv/git/app"))
}

func TestCreatePR(t *testing.T) {
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/acme/app/pulls", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "vk-1-fix", body["head"])
		require.Equal(t, "main", body["base"])
		require.Equal(t, true, body["draft"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":42,"html_url":"https://github.com/acme/app/pull/42","state":"open"}`))
	})

	pr, err := g.CreatePR(context.Background(), CreatePRParams{
		RemoteURL: "git@github.com:acme/app.git",
		Head:      "vk-1-fix",
		Base:      "main",
		Title:     "Fix",
		Draft:     true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), pr.Number)
	require.Equal(t, StateOpen, pr.State)
}

func TestCreatePRFallsBackToNumberInURL(t *testing.T) {
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"html_url":"https://github.com/acme/app/pull/7"}`))
	})
	pr, err := g.CreatePR(context.Background(), CreatePRParams{RemoteURL: "https://github.com/acme/app", Head: "b", Base: "main", Title: "t"})
	require.NoError(t, err)
	require.Equal(t, int64(7), pr.Number)
}

func TestGetPRStates(t *testing.T) {
	responses := map[string]string{
		"/repos/acme/app/pulls/1": `{"number":1,"state":"open","html_url":"u1"}`,
		"/repos/acme/app/pulls/2": `{"number":2,"state":"closed","merged":false,"html_url":"u2"}`,
		"/repos/acme/app/pulls/3": `{"number":3,"state":"closed","merged":true,"merged_at":"2026-01-02T03:04:05Z","merge_commit_sha":"abc123","html_url":"u3"}`,
		"/repos/acme/app/pulls/4": `{"number":4,"state":"weird","html_url":"u4"}`,
	}
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(responses[r.URL.Path]))
	})

	ctx := context.Background()
	cases := []struct {
		number int64
		state  string
	}{{1, StateOpen}, {2, StateClosed}, {3, StateMerged}, {4, StateUnknown}}
	for _, tc := range cases {
		pr, err := g.GetPR(ctx, "git@github.com:acme/app.git", tc.number)
		require.NoError(t, err)
		require.Equal(t, tc.state, pr.State, "pr %d", tc.number)
	}

	pr, err := g.GetPR(ctx, "git@github.com:acme/app.git", 3)
	require.NoError(t, err)
	require.NotNil(t, pr.MergedAt)
	require.True(t, pr.MergedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.Equal(t, "abc123", *pr.MergeCommit)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"number":5,"state":"open","html_url":"u"}`))
	})
	pr, err := g.GetPR(context.Background(), "git@github.com:acme/app.git", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), pr.Number)
	require.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"A pull request already exists"}`))
	})
	_, err := g.CreatePR(context.Background(), CreatePRParams{RemoteURL: "git@github.com:acme/app.git", Head: "b", Base: "main", Title: "t"})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ExternalAPI))
	require.Contains(t, err.Error(), "already exists")
	require.Equal(t, int32(1), calls.Load())
}

func TestMissingToken(t *testing.T) {
	g, err := NewGitHub(GitHubConfig{APIURL: "http://127.0.0.1:0", Token: staticToken("")})
	require.NoError(t, err)
	_, err = g.GetPR(context.Background(), "git@github.com:acme/app.git", 1)
	require.ErrorIs(t, err, ErrAuthRequired)
	require.ErrorIs(t, err, errs.ExternalAPI)
}

func TestNonGitHubRemote(t *testing.T) {
	g, err := NewGitHub(GitHubConfig{Token: staticToken("tok")})
	require.NoError(t, err)
	_, err = g.GetPR(context.Background(), "/srv/git/app", 1)
	require.ErrorIs(t, err, errs.ExternalAPI)
}
