// Package cilogs retrieves and parses CI workflow logs through the GitHub
// CLI and locates the first failing step of a run.
package cilogs

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/opsdoctor/deploy-doctor/internal/logging"
)

// Runner abstracts the external gh process so tests can fake it.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// execRunner is the production Runner backed by os/exec.
type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Client fetches workflow logs via the gh CLI.
type Client struct {
	runner Runner
	log    *zap.Logger
}

// NewClient returns a log retrieval client using the system gh binary.
func NewClient(log *zap.Logger) *Client {
	return &Client{runner: execRunner{}, log: logging.NopIfNil(log)}
}

// FetchAndParse retrieves a run's logs and builds the job→step tree.
func (c *Client) FetchAndParse(ctx context.Context, repo, runID string) (*WorkflowLog, error) {
	raw, err := c.FetchRawLog(ctx, repo, runID)
	if err != nil {
		return nil, err
	}
	return Parse(raw), nil
}

// FetchRawLog downloads the raw log text for one workflow run. It verifies
// the gh CLI is installed and authenticated before attempting retrieval so
// every failure mode surfaces as a distinct, actionable error.
func (c *Client) FetchRawLog(ctx context.Context, repo, runID string) (string, error) {
	if err := c.Preflight(ctx); err != nil {
		return "", err
	}

	c.log.Debug("Fetching workflow log",
		zap.String("repo", repo), zap.String("run_id", runID))

	stdout, stderr, err := c.runner.Run(ctx, "gh",
		"run", "view", runID, "--repo", repo, "--log")
	if err != nil {
		return "", classifyFetchFailure(ctx, stderr, err)
	}

	if strings.TrimSpace(stdout) == "" {
		return "", ErrEmptyResponse
	}
	return stdout, nil
}

// Preflight checks that the gh CLI exists and holds working credentials.
// Callers must never have to guess why retrieval failed.
func (c *Client) Preflight(ctx context.Context) error {
	if _, err := c.runner.LookPath("gh"); err != nil {
		return ErrToolUnavailable
	}

	if _, _, err := c.runner.Run(ctx, "gh", "--version"); err != nil {
		return ErrToolMisconfigured
	}

	if _, stderr, err := c.runner.Run(ctx, "gh", "auth", "status"); err != nil {
		lower := strings.ToLower(stderr)
		if strings.Contains(lower, "not logged in") ||
			strings.Contains(lower, "no accounts") ||
			strings.Contains(lower, "authentication") {
			return ErrNotAuthenticated
		}
		return cerr.WithSecondaryError(ErrToolMisconfigured, err)
	}
	return nil
}

// classifyFetchFailure maps a failed gh invocation to a sentinel error
// based on its stderr and the context state.
func classifyFetchFailure(ctx context.Context, stderr string, err error) error {
	if ctx.Err() == context.DeadlineExceeded || cerr.Is(err, context.DeadlineExceeded) {
		return ErrRetrievalTimeout
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "could not find") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "404"):
		return ErrRunNotFound
	case strings.Contains(lower, "403") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "permission"):
		return ErrPermissionDenied
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return ErrRateLimited
	case strings.Contains(lower, "not logged in") ||
		strings.Contains(lower, "authentication"):
		return ErrNotAuthenticated
	default:
		return cerr.Wrapf(err, "fetch workflow log: %s", strings.TrimSpace(stderr))
	}
}
