// Package diagnostics contains the probe suite and failure classifier that
// determine why a cloud deployment failed.
package diagnostics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsdoctor/deploy-doctor/internal/cilogs"
	"github.com/opsdoctor/deploy-doctor/internal/cloud"
	"github.com/opsdoctor/deploy-doctor/internal/config"
	"github.com/opsdoctor/deploy-doctor/internal/logging"
)

// Severity categorizes how serious a failed probe is for the deployment.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// RemoteRunner is the remote execution surface the probes depend on.
// sshexec.Executor implements it; tests inject fakes.
type RemoteRunner interface {
	Execute(ctx context.Context, command string, timeout time.Duration, maxRetries int) (success bool, output string)
}

// ProbeResult is the rendering-oriented outcome of one probe, alongside the
// typed evidence the classifier consumes.
type ProbeResult struct {
	ProbeName string                 `json:"probe"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Evidence collects every probe's typed result plus the optional CI failure
// point. Any field may be nil; the classifier is total over all of them.
type Evidence struct {
	Instance     *cloud.InstanceState    `json:"instance,omitempty"`
	Connectivity *ConnectivityStatus     `json:"connectivity,omitempty"`
	App          *ApplicationDiagnostics `json:"app,omitempty"`
	Endpoints    *EndpointProbeSet       `json:"endpoints,omitempty"`
	FailurePoint *cilogs.FailurePoint    `json:"failure_point,omitempty"`
}

// Summary aggregates probe outcomes for quick reference.
type Summary struct {
	TotalProbes  int `json:"total_probes"`
	PassedProbes int `json:"passed_probes"`
	FailedProbes int `json:"failed_probes"`
}

// Report is the complete outcome of one diagnostic run. Everything in it is
// built fresh per run and discarded afterwards.
type Report struct {
	Probes    []*ProbeResult `json:"probes"`
	Evidence  *Evidence      `json:"evidence"`
	Diagnosis *Diagnosis     `json:"diagnosis"`
	Summary   Summary        `json:"summary"`
	Duration  time.Duration  `json:"duration"`
}

// Engine orchestrates the probe suite and the classifier. Probes run
// sequentially; each runs to completion before the next begins, and no
// probe requires another's success to run.
type Engine struct {
	host cloud.RemoteHost
	exec RemoteRunner
	cfg  *config.DeploymentConfig
	log  *zap.Logger

	// failurePoint is weak evidence parsed from CI logs, when available.
	failurePoint *cilogs.FailurePoint
}

// NewEngine builds a diagnostic engine for one deployment target.
func NewEngine(host cloud.RemoteHost, exec RemoteRunner, cfg *config.DeploymentConfig, log *zap.Logger) *Engine {
	return &Engine{
		host: host,
		exec: exec,
		cfg:  cfg,
		log:  logging.NopIfNil(log),
	}
}

// WithFailurePoint attaches the CI failure point used as fallback evidence
// when the live probes are inconclusive.
func (e *Engine) WithFailurePoint(fp *cilogs.FailurePoint) *Engine {
	e.failurePoint = fp
	return e
}

// Run executes all four probes in order and classifies the results into a
// single Diagnosis. It never returns a nil report.
func (e *Engine) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{
		Probes:   make([]*ProbeResult, 0, 4),
		Evidence: &Evidence{FailurePoint: e.failurePoint},
	}

	instanceProbe := &InstanceStateProbe{Host: e.host, Log: e.log}
	report.Evidence.Instance = instanceProbe.Run(ctx)
	report.Probes = append(report.Probes, instanceProbe.Result(report.Evidence.Instance))

	connProbe := &ConnectivityProbe{Exec: e.exec, Log: e.log}
	report.Evidence.Connectivity = connProbe.Run(ctx)
	report.Probes = append(report.Probes, connProbe.Result(report.Evidence.Connectivity))

	appProbe := &AppDiagnosticsProbe{
		Exec: e.exec,
		Port: e.cfg.AppPort,
		Deps: e.cfg.Dependencies,
		Log:  e.log,
	}
	report.Evidence.App = appProbe.Run(ctx)
	report.Probes = append(report.Probes, appProbe.Result(report.Evidence.App))

	endpointProbe := NewEndpointHealthProbe(
		report.Evidence.Instance.PublicAddress, e.cfg.AppPort, e.cfg.HealthPaths, e.log)
	report.Evidence.Endpoints = endpointProbe.Run(ctx)
	report.Probes = append(report.Probes, endpointProbe.Result(report.Evidence.Endpoints))

	report.Diagnosis = Classify(report.Evidence)
	report.Duration = time.Since(start)
	report.Summary = summarize(report.Probes)

	e.log.Info("Diagnosis complete",
		zap.String("category", report.Diagnosis.Category),
		zap.Float64("confidence", report.Diagnosis.Confidence),
		zap.Duration("duration", report.Duration))

	return report
}

func summarize(probes []*ProbeResult) Summary {
	s := Summary{TotalProbes: len(probes)}
	for _, p := range probes {
		if p.Success {
			s.PassedProbes++
		} else {
			s.FailedProbes++
		}
	}
	return s
}
