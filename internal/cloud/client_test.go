package cloud

import (
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresToken(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")

	_, err := NewClient("web-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HCLOUD_TOKEN")
}

func TestNewClientRequiresInstanceName(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	_, err := NewClient("", nil)
	require.Error(t, err)

	c, err := NewClient("web-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		status hcloud.ServerStatus
		want   PowerState
	}{
		{hcloud.ServerStatusRunning, StateRunning},
		{hcloud.ServerStatusOff, StateStopped},
		{hcloud.ServerStatusInitializing, StatePending},
		{hcloud.ServerStatusStarting, StatePending},
		{hcloud.ServerStatusStopping, StatePending},
		{hcloud.ServerStatusMigrating, StatePending},
		{hcloud.ServerStatusRebuilding, StatePending},
		{hcloud.ServerStatusUnknown, StateError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeStatus(tt.status), "status %s", tt.status)
	}
}
