package diagnostics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdoctor/deploy-doctor/internal/cilogs"
	"github.com/opsdoctor/deploy-doctor/internal/cloud"
	"github.com/opsdoctor/deploy-doctor/internal/config"
)

func TestEngineRunStoppedInstance(t *testing.T) {
	host := &scriptedHost{state: &cloud.InstanceState{
		Exists: true,
		State:  cloud.StateStopped,
	}}
	runner := &fakeRemoteRunner{outcomes: map[string]remoteOutcome{}}
	cfg := config.Default()

	report := NewEngine(host, runner, cfg, nil).Run(context.Background())

	require.NotNil(t, report)
	assert.Len(t, report.Probes, 4, "every probe runs even after upstream failures")

	require.NotNil(t, report.Diagnosis)
	assert.Equal(t, CategoryInfrastructureFailure, report.Diagnosis.Category)

	assert.Equal(t, 4, report.Summary.TotalProbes)
	assert.Equal(t, 4, report.Summary.FailedProbes)
	assert.Equal(t, 0, report.Summary.PassedProbes)
}

func TestEngineAttachesFailurePoint(t *testing.T) {
	host := &scriptedHost{state: &cloud.InstanceState{
		Exists: false,
		State:  cloud.StateNotFound,
	}}
	runner := &fakeRemoteRunner{outcomes: map[string]remoteOutcome{}}
	fp := &cilogs.FailurePoint{JobName: "deploy", StepName: "upload"}

	report := NewEngine(host, runner, config.Default(), nil).
		WithFailurePoint(fp).
		Run(context.Background())

	assert.Equal(t, fp, report.Evidence.FailurePoint)
	// Live infrastructure evidence still outranks the CI failure point.
	assert.Equal(t, CategoryInfrastructureFailure, report.Diagnosis.Category)
}
