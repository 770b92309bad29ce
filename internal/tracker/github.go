package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/autotester/autotester/internal/identity"
)

const defaultBaseURL = "https://api.github.com"

// nextURLPattern extracts the "next" page URL from a GitHub Link header.
var nextURLPattern = regexp.MustCompile(`<(\S+)>; rel="next"`)

// TokenSource supplies the bearer token for GitHub API requests. The static
// token and GitHub App implementations both satisfy it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed personal access or workflow token.
type StaticToken string

// Token returns the token itself.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// GitHub implements Store against the GitHub Issues REST API.
type GitHub struct {
	httpClient *http.Client
	baseURL    string
	repository string // "owner/repo"
	tokens     TokenSource
}

// NewGitHub creates a GitHub issue store for the given repository.
func NewGitHub(repository string, tokens TokenSource) *GitHub {
	return &GitHub{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    defaultBaseURL,
		repository: repository,
		tokens:     tokens,
	}
}

// NewGitHubWithBaseURL creates a GitHub store against a non-default API base
// URL (GitHub Enterprise, test servers).
func NewGitHubWithBaseURL(repository string, tokens TokenSource, baseURL string) *GitHub {
	g := NewGitHub(repository, tokens)
	g.baseURL = strings.TrimSuffix(baseURL, "/")
	return g
}

// githubIssue is the wire representation of an issue.
type githubIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	// Pull requests are issues too; the presence of this field is how
	// they are told apart and excluded.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (g *githubIssue) toTracked() TrackedIssue {
	labels := make([]string, 0, len(g.Labels))
	for _, l := range g.Labels {
		labels = append(labels, l.Name)
	}
	return TrackedIssue{
		Number: g.Number,
		Title:  g.Title,
		Labels: labels,
		Body:   g.Body,
	}
}

// ListOpen returns all open issues carrying the marker label, following
// Link-header pagination until no "next" page remains.
func (g *GitHub) ListOpen(ctx context.Context, marker string) ([]TrackedIssue, error) {
	return g.listByLabels(ctx, marker)
}

// listByLabels lists open issues carrying every one of the given labels.
func (g *GitHub) listByLabels(ctx context.Context, labels ...string) ([]TrackedIssue, error) {
	params := url.Values{}
	params.Set("state", "open")
	params.Set("labels", strings.Join(labels, ","))
	params.Set("per_page", "100")
	nextURL := fmt.Sprintf("%s/repos/%s/issues?%s", g.baseURL, g.repository, params.Encode())

	var issues []TrackedIssue
	for nextURL != "" {
		var page []githubIssue
		resp, err := g.do(ctx, http.MethodGet, nextURL, nil, &page)
		if err != nil {
			return nil, err
		}

		for _, issue := range page {
			if issue.PullRequest != nil {
				continue
			}
			issues = append(issues, issue.toTracked())
		}

		nextURL = nextPageURL(resp.Header.Get("Link"))
	}

	return issues, nil
}

// Create opens a new issue for the pairing. Before creating it re-queries
// open issues by the identity labels, so a create retried after a transient
// failure (or raced by another run) returns the existing issue instead of
// opening a duplicate.
func (g *GitHub) Create(ctx context.Context, key identity.Key, title string, labels []string, body string) (TrackedIssue, error) {
	existing, err := g.listByLabels(ctx,
		identity.ServiceIDPrefix+key.ServiceConceptID(),
		identity.CollectionIDPrefix+key.CollectionConceptID(),
	)
	if err != nil {
		return TrackedIssue{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	reqBody := map[string]any{
		"title":  title,
		"body":   body,
		"labels": labels,
	}

	var created githubIssue
	createURL := fmt.Sprintf("%s/repos/%s/issues", g.baseURL, g.repository)
	if _, err := g.do(ctx, http.MethodPost, createURL, reqBody, &created); err != nil {
		return TrackedIssue{}, err
	}
	return created.toTracked(), nil
}

// Update replaces the labels and body of the issue.
func (g *GitHub) Update(ctx context.Context, issue TrackedIssue, labels []string, body string) (TrackedIssue, error) {
	reqBody := map[string]any{
		"labels": labels,
		"body":   body,
	}

	var updated githubIssue
	issueURL := fmt.Sprintf("%s/repos/%s/issues/%d", g.baseURL, g.repository, issue.Number)
	if _, err := g.do(ctx, http.MethodPatch, issueURL, reqBody, &updated); err != nil {
		return TrackedIssue{}, err
	}
	return updated.toTracked(), nil
}

// Close leaves a closing comment (when given) and closes the issue.
func (g *GitHub) Close(ctx context.Context, issue TrackedIssue, comment string) error {
	if comment != "" {
		commentURL := fmt.Sprintf("%s/repos/%s/issues/%d/comments", g.baseURL, g.repository, issue.Number)
		if _, err := g.do(ctx, http.MethodPost, commentURL, map[string]any{"body": comment}, nil); err != nil {
			return err
		}
	}

	issueURL := fmt.Sprintf("%s/repos/%s/issues/%d", g.baseURL, g.repository, issue.Number)
	_, err := g.do(ctx, http.MethodPatch, issueURL, map[string]any{"state": "closed"}, nil)
	return err
}

// Reopen reopens a closed issue.
func (g *GitHub) Reopen(ctx context.Context, issue TrackedIssue) error {
	issueURL := fmt.Sprintf("%s/repos/%s/issues/%d", g.baseURL, g.repository, issue.Number)
	_, err := g.do(ctx, http.MethodPatch, issueURL, map[string]any{"state": "open"}, nil)
	return err
}

// do performs one API request, classifying failures as transient or fatal.
// A non-nil out receives the decoded JSON response body.
func (g *GitHub) do(ctx context.Context, method, rawURL string, body any, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not obtain API token: %v", ErrFatal, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransient, method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp, classifyStatus(resp, method, rawURL, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("%w: failed to decode response from %s: %v", ErrTransient, rawURL, err)
		}
	}

	return resp, nil
}

// classifyStatus maps an HTTP error status to the transient/fatal taxonomy.
// 403 is ambiguous on GitHub: a rate-limited request and a permission denial
// share the status code, so the rate-limit headers decide.
func classifyStatus(resp *http.Response, method, rawURL, detail string) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized, status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrFatal, method, rawURL, status, detail)
	case status == http.StatusForbidden:
		if resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return fmt.Errorf("%w: rate limited on %s %s: %s", ErrTransient, method, rawURL, detail)
		}
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrFatal, method, rawURL, status, detail)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrTransient, method, rawURL, status, detail)
	default:
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrFatal, method, rawURL, status, detail)
	}
}

// nextPageURL extracts the next page URL from a Link header, or "" when the
// last page has been reached.
func nextPageURL(linkHeader string) string {
	matches := nextURLPattern.FindStringSubmatch(linkHeader)
	if matches == nil {
		return ""
	}
	return matches[1]
}
