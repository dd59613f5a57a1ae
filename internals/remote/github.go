package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/timeouts"
)

const (
	DefaultAPIURL   = "https://api.github.com"
	defaultRetries  = 3
	defaultCacheLen = 256
)

// TokenFunc resolves the API token on every call so a token stored after
// startup is picked up.
type TokenFunc func() (string, error)

type GitHubConfig struct {
	APIURL     string
	Token      TokenFunc
	HTTPClient *http.Client
	// MaxRetries bounds retries of transport errors, 429 and 5xx responses.
	MaxRetries uint64
	RetryBase  time.Duration
}

type GitHub struct {
	apiURL     string
	token      TokenFunc
	client     *http.Client
	maxRetries uint64
	retryBase  time.Duration
	repos      *lru.Cache[string, repoRef]
}

var _ Provider = (*GitHub)(nil)

type repoRef struct {
	owner string
	name  string
}

func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	repos, err := lru.New[string, repoRef](defaultCacheLen)
	if err != nil {
		return nil, err
	}
	g := &GitHub{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		token:      cfg.Token,
		client:     cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		repos:      repos,
	}
	if g.apiURL == "" {
		g.apiURL = DefaultAPIURL
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: timeouts.ProviderRequest}
	}
	if g.maxRetries == 0 {
		g.maxRetries = defaultRetries
	}
	if g.retryBase <= 0 {
		g.retryBase = 500 * time.Millisecond
	}
	return g, nil
}

func (g *GitHub) CreatePR(ctx context.Context, params CreatePRParams) (*PullRequest, error) {
	const op = "remote.CreatePR"
	ref, err := g.resolve(params.RemoteURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	payload := map[string]any{
		"title": params.Title,
		"head":  params.Head,
		"base":  params.Base,
		"draft": params.Draft,
	}
	if params.Body != "" {
		payload["body"] = params.Body
	}
	body, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", ref.owner, ref.name), payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	pr := parsePR(body)
	if pr.Number == 0 {
		pr.Number = numberFromURL(pr.URL)
	}
	if pr.URL == "" {
		return nil, errs.E(errs.KindExternalAPI, op, "response did not include a pull request url")
	}
	return pr, nil
}

func (g *GitHub) GetPR(ctx context.Context, remoteURL string, number int64) (*PullRequest, error) {
	const op = "remote.GetPR"
	ref, err := g.resolve(remoteURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	body, err := g.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", ref.owner, ref.name, number), nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	return parsePR(body), nil
}

func parsePR(body []byte) *PullRequest {
	result := gjson.ParseBytes(body)
	pr := &PullRequest{
		Number: result.Get("number").Int(),
		URL:    result.Get("html_url").String(),
		State:  StateUnknown,
	}
	switch {
	case result.Get("merged").Bool() || result.Get("merged_at").String() != "":
		pr.State = StateMerged
	case result.Get("state").String() == "open":
		pr.State = StateOpen
	case result.Get("state").String() == "closed":
		pr.State = StateClosed
	}
	if mergedAt := result.Get("merged_at").String(); mergedAt != "" {
		if t, err := time.Parse(time.RFC3339, mergedAt); err == nil {
			t = t.UTC()
			pr.MergedAt = &t
		}
	}
	if sha := result.Get("merge_commit_sha").String(); sha != "" && pr.State == StateMerged {
		pr.MergeCommit = &sha
	}
	return pr
}

// numberFromURL pulls the trailing number out of .../pull/123.
func numberFromURL(prURL string) int64 {
	idx := strings.LastIndex(prURL, "/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseInt(prURL[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("github api returned %d", e.status)
	}
	return fmt.Sprintf("github api returned %d: %s", e.status, e.message)
}

func (g *GitHub) do(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	token := ""
	if g.token != nil {
		var err error
		token, err = g.token()
		if err != nil {
			return nil, err
		}
	}
	if token == "" {
		return nil, ErrAuthRequired
	}

	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewExponential(g.retryBase))
	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = data
			return nil
		}
		apiErr := &apiError{status: resp.StatusCode, message: gjson.GetBytes(data, "message").String()}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(apiErr)
		}
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (g *GitHub) resolve(remoteURL string) (repoRef, error) {
	if ref, ok := g.repos.Get(remoteURL); ok {
		return ref, nil
	}
	owner, name, err := parseGitHubURL(remoteURL)
	if err != nil {
		return repoRef{}, err
	}
	ref := repoRef{owner: owner, name: name}
	g.repos.Add(remoteURL, ref)
	return ref, nil
}

func parseGitHubURL(remoteURL string) (string, string, error) {
	// Handle SSH URLs: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.Split(remoteURL, ":")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid SSH GitHub URL: %s", remoteURL)
		}
		repoPart := strings.TrimSuffix(parts[1], ".git")
		repoParts := strings.Split(repoPart, "/")
		if len(repoParts) != 2 {
			return "", "", fmt.Errorf("invalid SSH GitHub URL format: %s", remoteURL)
		}
		return repoParts[0], repoParts[1], nil
	}

	// Handle HTTPS URLs: https://github.com/owner/repo.git
	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid GitHub URL: %s", remoteURL)
	}

	if parsed.Host != "github.com" {
		return "", "", fmt.Errorf("not a GitHub URL: %s", remoteURL)
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", remoteURL)
	}

	return parts[0], parts[1], nil
}

// IsGitHubURL reports whether remoteURL points at github.com.
func IsGitHubURL(remoteURL string) bool {
	if strings.HasPrefix(remoteURL, "git@github.com:") {
		return true
	}
	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return false
	}
	return parsed.Host == "github.com"
}
