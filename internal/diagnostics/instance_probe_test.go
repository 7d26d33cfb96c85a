package diagnostics

import (
	"context"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdoctor/deploy-doctor/internal/cloud"
)

// scriptedHost returns a fixed Describe outcome.
type scriptedHost struct {
	state *cloud.InstanceState
	err   error
}

func (h *scriptedHost) Describe(ctx context.Context) (*cloud.InstanceState, error) {
	return h.state, h.err
}
func (h *scriptedHost) PowerOff(ctx context.Context) error { return nil }
func (h *scriptedHost) PowerOn(ctx context.Context) error  { return nil }

func TestInstanceProbeRunning(t *testing.T) {
	p := &InstanceStateProbe{Host: &scriptedHost{state: &cloud.InstanceState{
		Exists:        true,
		State:         cloud.StateRunning,
		PublicAddress: "203.0.113.5",
	}}}

	state := p.Run(context.Background())
	require.NotNil(t, state)
	assert.True(t, state.Exists)

	result := p.Result(state)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "203.0.113.5")
}

func TestInstanceProbeNotFoundIsNotAnError(t *testing.T) {
	p := &InstanceStateProbe{Host: &scriptedHost{state: &cloud.InstanceState{
		Exists: false,
		State:  cloud.StateNotFound,
	}}}

	state := p.Run(context.Background())
	assert.False(t, state.Exists)
	assert.Equal(t, cloud.StateNotFound, state.State)

	result := p.Result(state)
	assert.False(t, result.Success)
	assert.Equal(t, "Instance not found", result.Message)
}

func TestInstanceProbeAPIFailure(t *testing.T) {
	p := &InstanceStateProbe{Host: &scriptedHost{err: cerr.New("api: 503 service unavailable")}}

	state := p.Run(context.Background())
	require.NotNil(t, state, "an API failure still yields usable evidence")
	assert.False(t, state.Exists)
	assert.Equal(t, cloud.StateError, state.State)
}

func TestInstanceProbeStopped(t *testing.T) {
	p := &InstanceStateProbe{Host: &scriptedHost{state: &cloud.InstanceState{
		Exists: true,
		State:  cloud.StateStopped,
	}}}

	result := p.Result(p.Run(context.Background()))
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "stopped")
}
