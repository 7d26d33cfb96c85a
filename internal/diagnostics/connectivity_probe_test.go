package diagnostics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectivityProbeReachable(t *testing.T) {
	runner := &fakeRemoteRunner{outcomes: map[string]remoteOutcome{
		"echo ok": {ok: true, output: "ok\n"},
	}}
	p := &ConnectivityProbe{Exec: runner}

	status := p.Run(context.Background())

	assert.True(t, status.Reachable)
	assert.Empty(t, status.ErrorMessage)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "echo ok", runner.commands[0])

	result := p.Result(status)
	assert.True(t, result.Success)
}

func TestConnectivityProbeUnreachable(t *testing.T) {
	runner := &fakeRemoteRunner{outcomes: map[string]remoteOutcome{
		"echo ok": {ok: false, output: "dial tcp 203.0.113.5:22: i/o timeout"},
	}}
	p := &ConnectivityProbe{Exec: runner}

	status := p.Run(context.Background())

	assert.False(t, status.Reachable)
	assert.Contains(t, status.ErrorMessage, "i/o timeout",
		"the raw error is preserved for the classifier's sub-case matching")

	result := p.Result(status)
	assert.False(t, result.Success)
	assert.Equal(t, status.ErrorMessage, result.Details["error"])
}
