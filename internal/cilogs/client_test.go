package cilogs

import (
	"context"
	"testing"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner scripts the gh invocations a test expects. Commands are keyed by
// their joined argument list.
type fakeRunner struct {
	lookPathErr error
	results     map[string]fakeResult
	calls       []string
}

type fakeResult struct {
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	f.calls = append(f.calls, key)
	r := f.results[key]
	return r.stdout, r.stderr, r.err
}

const (
	versionCmd = "gh --version"
	authCmd    = "gh auth status"
	viewCmd    = "gh run view 42 --repo acme/web --log"
)

func healthyPreflight() map[string]fakeResult {
	return map[string]fakeResult{
		versionCmd: {stdout: "gh version 2.40.0"},
		authCmd:    {stdout: "Logged in to github.com"},
	}
}

func newTestClient(runner *fakeRunner) *Client {
	return &Client{runner: runner, log: zap.NewNop()}
}

func TestFetchRawLogSuccess(t *testing.T) {
	results := healthyPreflight()
	results[viewCmd] = fakeResult{stdout: passingLog}
	runner := &fakeRunner{results: results}
	c := newTestClient(runner)

	raw, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	require.NoError(t, err)
	assert.Equal(t, passingLog, raw)
	assert.Equal(t, []string{versionCmd, authCmd, viewCmd}, runner.calls,
		"pre-flight runs before retrieval")
}

func TestFetchRawLogToolUnavailable(t *testing.T) {
	runner := &fakeRunner{lookPathErr: cerr.New("executable file not found")}
	c := newTestClient(runner)

	_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	assert.ErrorIs(t, err, ErrToolUnavailable)
	assert.Empty(t, runner.calls, "no gh invocation without the binary")
}

func TestFetchRawLogToolMisconfigured(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		versionCmd: {err: cerr.New("exit status 127")},
	}}
	c := newTestClient(runner)

	_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	assert.ErrorIs(t, err, ErrToolMisconfigured)
}

func TestFetchRawLogNotAuthenticated(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		versionCmd: {stdout: "gh version 2.40.0"},
		authCmd: {
			stderr: "You are not logged in to any GitHub hosts.",
			err:    cerr.New("exit status 1"),
		},
	}}
	c := newTestClient(runner)

	_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFetchRawLogFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		expected error
	}{
		{"run not found", "could not find any workflow run with ID 42", ErrRunNotFound},
		{"http 404", "HTTP 404: Not Found", ErrRunNotFound},
		{"permission denied", "HTTP 403: Forbidden", ErrPermissionDenied},
		{"rate limited", "API rate limit exceeded", ErrRateLimited},
		{"auth expired", "authentication token expired", ErrNotAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := healthyPreflight()
			results[viewCmd] = fakeResult{stderr: tt.stderr, err: cerr.New("exit status 1")}
			c := newTestClient(&fakeRunner{results: results})

			_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestFetchRawLogTimeout(t *testing.T) {
	results := healthyPreflight()
	results[viewCmd] = fakeResult{err: context.DeadlineExceeded}
	c := newTestClient(&fakeRunner{results: results})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := c.FetchRawLog(ctx, "acme/web", "42")
	assert.ErrorIs(t, err, ErrRetrievalTimeout)
}

func TestFetchRawLogEmptyResponse(t *testing.T) {
	results := healthyPreflight()
	results[viewCmd] = fakeResult{stdout: "   \n  "}
	c := newTestClient(&fakeRunner{results: results})

	_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestFetchRawLogUnclassifiedFailure(t *testing.T) {
	results := healthyPreflight()
	results[viewCmd] = fakeResult{stderr: "something odd happened", err: cerr.New("exit status 1")}
	c := newTestClient(&fakeRunner{results: results})

	_, err := c.FetchRawLog(context.Background(), "acme/web", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something odd happened")
}

func TestFetchAndParse(t *testing.T) {
	results := healthyPreflight()
	results[viewCmd] = fakeResult{stdout: failingLog}
	c := newTestClient(&fakeRunner{results: results})

	log, err := c.FetchAndParse(context.Background(), "acme/web", "42")
	require.NoError(t, err)
	require.NotNil(t, log.IdentifyFailurePoint())
	assert.Equal(t, "deploy", log.IdentifyFailurePoint().JobName)
}
