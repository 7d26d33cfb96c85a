package cilogs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingLog = "build\t2024-05-01T10:00:00Z\n" +
	"  checkout\t2024-05-01T10:00:01Z\n" +
	"    Cloning repository...\n" +
	"    Done.\n" +
	"  compile\t2024-05-01T10:00:10Z\n" +
	"    All targets built.\n"

const failingLog = "build\t2024-05-01T10:00:00Z\n" +
	"  compile\t2024-05-01T10:00:01Z\n" +
	"    All targets built.\n" +
	"deploy\t2024-05-01T10:05:00Z\n" +
	"  upload\t2024-05-01T10:05:01Z\n" +
	"    Error: x\n"

func TestParseBuildsJobStepTree(t *testing.T) {
	log := Parse(passingLog)

	require.Len(t, log.Jobs, 1)
	assert.Equal(t, "build", log.Jobs[0].Name)
	require.Len(t, log.Jobs[0].Steps, 2)
	assert.Equal(t, "checkout", log.Jobs[0].Steps[0].Name)
	assert.Equal(t, "compile", log.Jobs[0].Steps[1].Name)
	assert.Equal(t, []string{"Cloning repository...", "Done."}, log.Jobs[0].Steps[0].Output)

	assert.Equal(t, "completed", log.OverallStatus)
	assert.Equal(t, "success", log.Conclusion)
	assert.Nil(t, log.IdentifyFailurePoint())
}

func TestParseMarksFailures(t *testing.T) {
	log := Parse(failingLog)

	require.Len(t, log.Jobs, 2)
	assert.Equal(t, "completed", log.Jobs[0].Status)
	assert.Equal(t, "failed", log.Jobs[1].Status)
	assert.Equal(t, "failed", log.Jobs[1].Steps[0].Status)
	assert.Equal(t, "failed", log.OverallStatus)
	assert.Equal(t, "failure", log.Conclusion)
}

func TestIdentifyFailurePointReturnsFirstFailure(t *testing.T) {
	log := Parse(failingLog)

	fp := log.IdentifyFailurePoint()
	require.NotNil(t, fp)
	assert.Equal(t, "deploy", fp.JobName, "the failing job, never the passing one")
	assert.Equal(t, "upload", fp.StepName)
	assert.Equal(t, "Error: x", fp.ErrorMessage)
}

func TestIdentifyFailurePointDeclarationOrder(t *testing.T) {
	raw := "a\t2024-05-01T10:00:00Z\n" +
		"  s1\t2024-05-01T10:00:01Z\n" +
		"    first failed here\n" +
		"b\t2024-05-01T10:01:00Z\n" +
		"  s2\t2024-05-01T10:01:01Z\n" +
		"    Error: also broken\n"

	fp := Parse(raw).IdentifyFailurePoint()
	require.NotNil(t, fp)
	assert.Equal(t, "a", fp.JobName)
	assert.Equal(t, "s1", fp.StepName)
}

func TestErrorCategoryDerivation(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected ErrorCategory
	}{
		{"ssh timeout", "ssh: connect timed out, step failed", CategoryConnectivity},
		{"ssh connection", "ssh connection refused by host", CategoryConnectivity},
		{"health check", "health endpoint check failed with 503", CategoryHealthCheck},
		{"npm", "npm install failed with ENOENT", CategoryDependency},
		{"node", "node: command not found", CategoryDependency},
		{"pm2", "pm2 restart failed", CategoryApplicationStartup},
		{"application", "application startup failed, exit code 1", CategoryApplicationStartup},
		{"unknown", "something mysterious failed", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "job\t2024-05-01T10:00:00Z\n" +
				"  step\t2024-05-01T10:00:01Z\n" +
				"    " + tt.output + "\n"
			fp := Parse(raw).IdentifyFailurePoint()
			require.NotNil(t, fp)
			assert.Equal(t, tt.expected, fp.ErrorCategory)
		})
	}
}

func TestErrorPatternMatching(t *testing.T) {
	matching := []string{
		"Error: something",
		"step FAILED",
		"Unhandled exception in worker",
		"request timeout after 30s",
		"connect: Connection refused",
		"bash: pm2: command not found",
		"cat: no such file or directory",
	}
	for _, line := range matching {
		assert.True(t, matchesErrorPattern(line), "should match: %s", line)
	}

	clean := []string{
		"Installing dependencies...",
		"Build succeeded",
		"0 errors found", // "errors" alone is not a pattern; "error:" is
	}
	for _, line := range clean {
		assert.False(t, matchesErrorPattern(line), "should not match: %s", line)
	}
}

func TestExtractErrorMessages(t *testing.T) {
	raw := "job\t2024-05-01T10:00:00Z\n" +
		"  step\t2024-05-01T10:00:01Z\n" +
		"    Error: first\n" +
		"    all good here\n" +
		"    npm install failed\n"

	msgs := Parse(raw).ExtractErrorMessages()
	assert.Equal(t, []string{"Error: first", "npm install failed"}, msgs)
}

func TestParseEmptyLog(t *testing.T) {
	log := Parse("")
	assert.Empty(t, log.Jobs)
	assert.Equal(t, "completed", log.OverallStatus)
	assert.Nil(t, log.IdentifyFailurePoint())
	assert.Empty(t, log.ExtractErrorMessages())
}
