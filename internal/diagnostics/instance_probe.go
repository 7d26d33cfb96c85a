package diagnostics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opsdoctor/deploy-doctor/internal/cloud"
)

// InstanceStateProbe looks up the deployment target in the cloud API.
// This is the most fundamental probe: if the instance is gone or stopped,
// nothing else can work.
type InstanceStateProbe struct {
	Host cloud.RemoteHost
	Log  *zap.Logger
}

func (p *InstanceStateProbe) Name() string {
	return "instance_state"
}

func (p *InstanceStateProbe) Description() string {
	return "Checking instance existence and power state"
}

func (p *InstanceStateProbe) Severity() Severity {
	return SeverityCritical
}

// Run performs a single API lookup. A missing instance is a first-class
// outcome, not an error; an API failure surfaces as State=error. The probe
// never raises across its boundary.
func (p *InstanceStateProbe) Run(ctx context.Context) *cloud.InstanceState {
	state, err := p.Host.Describe(ctx)
	if err != nil {
		if p.Log != nil {
			p.Log.Warn("Instance lookup failed", zap.Error(err))
		}
		if state == nil {
			state = &cloud.InstanceState{Exists: false, State: cloud.StateError}
		}
	}
	return state
}

// Result renders the typed state as a ProbeResult for reporting.
func (p *InstanceStateProbe) Result(state *cloud.InstanceState) *ProbeResult {
	result := &ProbeResult{
		ProbeName: p.Name(),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"exists": state.Exists,
			"state":  string(state.State),
		},
	}
	if state.PublicAddress != "" {
		result.Details["public_address"] = state.PublicAddress
	}
	if state.ImageID != "" {
		result.Details["image_id"] = state.ImageID
	}

	switch {
	case !state.Exists && state.State == cloud.StateNotFound:
		result.Message = "Instance not found"
	case !state.Exists:
		result.Message = "Instance lookup failed"
	case state.State == cloud.StateRunning:
		result.Success = true
		result.Message = fmt.Sprintf("Instance is running at %s", state.PublicAddress)
	default:
		result.Message = fmt.Sprintf("Instance exists but is %s", state.State)
	}
	return result
}
