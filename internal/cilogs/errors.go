package cilogs

import cerr "github.com/cockroachdb/errors"

// Retrieval failures are surfaced as distinct sentinel errors so callers
// never have to guess why a fetch failed. Each carries an actionable hint.
var (
	// ErrToolUnavailable: the gh CLI is not installed at all.
	ErrToolUnavailable = cerr.WithHint(
		cerr.New("github cli (gh) is not installed"),
		"install it from https://cli.github.com/ and re-run")

	// ErrToolMisconfigured: gh is present but cannot run at all.
	ErrToolMisconfigured = cerr.WithHint(
		cerr.New("github cli (gh) is installed but not working"),
		"run 'gh --version' and fix the reported problem")

	// ErrNotAuthenticated: gh has no usable credentials.
	ErrNotAuthenticated = cerr.WithHint(
		cerr.New("github cli is not authenticated"),
		"run 'gh auth login' or set GH_TOKEN")

	// ErrRunNotFound: the workflow run id does not exist in the repository.
	ErrRunNotFound = cerr.WithHint(
		cerr.New("workflow run not found"),
		"check the run id with 'gh run list'")

	// ErrPermissionDenied: the authenticated account cannot read the repo.
	ErrPermissionDenied = cerr.WithHint(
		cerr.New("permission denied fetching workflow logs"),
		"verify the token has actions:read access to the repository")

	// ErrRateLimited: the API rate limit was exhausted.
	ErrRateLimited = cerr.WithHint(
		cerr.New("github api rate limit exceeded"),
		"wait for the limit to reset or authenticate with a token")

	// ErrRetrievalTimeout: the fetch did not complete in time.
	ErrRetrievalTimeout = cerr.WithHint(
		cerr.New("timed out fetching workflow logs"),
		"retry; large runs can take a while to download")

	// ErrEmptyResponse: the fetch succeeded but returned no log text.
	ErrEmptyResponse = cerr.WithHint(
		cerr.New("workflow log response was empty"),
		"the run may still be in progress; wait for it to finish")
)
