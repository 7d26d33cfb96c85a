package diagnostics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ConnectivityStatus is the outcome of one SSH reachability probe.
type ConnectivityStatus struct {
	Reachable      bool    `json:"reachable"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

const (
	// connectivityCommand is the trivial command used purely to prove the
	// SSH path works end to end.
	connectivityCommand = "echo ok"

	defaultConnectivityRetries = 3
	connectivityTimeout        = 15 * time.Second
)

// ConnectivityProbe verifies the instance is reachable over SSH. Retrying
// and backoff are delegated to the remote executor, which applies the same
// linear-capped policy used for every remote command.
type ConnectivityProbe struct {
	Exec       RemoteRunner
	MaxRetries int
	Log        *zap.Logger
}

func (p *ConnectivityProbe) Name() string {
	return "ssh_connectivity"
}

func (p *ConnectivityProbe) Description() string {
	return "Checking SSH connectivity to the instance"
}

func (p *ConnectivityProbe) Severity() Severity {
	return SeverityError
}

// Run attempts the echo command and records total elapsed time. It never
// raises across its boundary.
func (p *ConnectivityProbe) Run(ctx context.Context) *ConnectivityStatus {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = defaultConnectivityRetries
	}

	start := time.Now()
	ok, output := p.Exec.Execute(ctx, connectivityCommand, connectivityTimeout, retries)
	elapsed := time.Since(start).Seconds()

	if !ok {
		if p.Log != nil {
			p.Log.Warn("SSH connectivity probe failed",
				zap.String("output", output), zap.Float64("elapsed_s", elapsed))
		}
		return &ConnectivityStatus{
			Reachable:      false,
			ErrorMessage:   output,
			ElapsedSeconds: elapsed,
		}
	}

	return &ConnectivityStatus{Reachable: true, ElapsedSeconds: elapsed}
}

// Result renders the typed status as a ProbeResult.
func (p *ConnectivityProbe) Result(status *ConnectivityStatus) *ProbeResult {
	result := &ProbeResult{
		ProbeName: p.Name(),
		Success:   status.Reachable,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"elapsed_seconds": status.ElapsedSeconds,
		},
	}
	if status.Reachable {
		result.Message = fmt.Sprintf("SSH reachable in %.1fs", status.ElapsedSeconds)
	} else {
		result.Message = "SSH connectivity failed"
		result.Details["error"] = status.ErrorMessage
	}
	return result
}
