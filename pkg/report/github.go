package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"

	"github.com/cgast/canarygate/pkg/verify"
)

// DefaultStatusContext labels the commit status set by canarygate.
const DefaultStatusContext = "canarygate"

const maxDescription = 140

// GitHubReporter publishes a verdict as a commit status.
type GitHubReporter struct {
	client    *gh.Client
	owner     string
	repo      string
	context   string
	targetURL string
}

// GitHubOptions configures NewGitHubReporter.
type GitHubOptions struct {
	Token     string
	Repo      string // owner/name
	Context   string
	BaseURL   string // GitHub Enterprise API root, optional
	TargetURL string // link shown next to the status, optional
}

// NewGitHubReporter creates a reporter for opts.Repo authenticated with
// opts.Token.
func NewGitHubReporter(opts GitHubOptions) (*GitHubReporter, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	owner, repo, err := ParseRepo(opts.Repo)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &tokenTransport{token: opts.Token},
	}
	client := gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = base
	}

	statusContext := opts.Context
	if statusContext == "" {
		statusContext = DefaultStatusContext
	}
	return &GitHubReporter{
		client:    client,
		owner:     owner,
		repo:      repo,
		context:   statusContext,
		targetURL: opts.TargetURL,
	}, nil
}

// tokenTransport adds Bearer token auth to HTTP requests.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

// ParseRepo splits "owner/name".
func ParseRepo(s string) (string, string, error) {
	if s == "" {
		return "", "", fmt.Errorf("missing repo (expected 'owner/name' format)")
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q (expected 'owner/name')", s)
	}
	return parts[0], parts[1], nil
}

// CommitState maps a verdict onto a commit status state.
func CommitState(s verify.Status) string {
	switch s {
	case verify.StatusPassed:
		return "success"
	case verify.StatusFailed:
		return "failure"
	default:
		return "error"
	}
}

// Description summarizes result within GitHub's 140 character limit.
func Description(result verify.VerificationResult) string {
	desc := result.FailureReason
	if desc == "" {
		desc = fmt.Sprintf("%s: %d passed, %d failed after %d poll(s)",
			result.Status, result.ChecksPassed, result.ChecksFailed, result.TotalPolls)
	}
	if len(desc) > maxDescription {
		desc = desc[:maxDescription-3] + "..."
	}
	return desc
}

// Report sets the commit status for sha.
func (r *GitHubReporter) Report(ctx context.Context, sha string, result verify.VerificationResult) error {
	if sha == "" {
		return fmt.Errorf("commit sha is required")
	}
	status := &gh.RepoStatus{
		State:       gh.String(CommitState(result.Status)),
		Description: gh.String(Description(result)),
		Context:     gh.String(r.context),
	}
	if r.targetURL != "" {
		status.TargetURL = gh.String(r.targetURL)
	}
	if _, _, err := r.client.Repositories.CreateStatus(ctx, r.owner, r.repo, sha, status); err != nil {
		return fmt.Errorf("create commit status: %w", err)
	}
	return nil
}
