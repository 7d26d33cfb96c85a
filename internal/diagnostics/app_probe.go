package diagnostics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Process manager states the classifier reasons about.
const (
	ProcessManagerNotInstalled = "not_installed"
	ProcessManagerNoProcess    = "no_online_process"
	ProcessManagerOnline       = "online"

	// RuntimeNotInstalled is the sentinel RuntimeVersion when the runtime
	// binary is missing on the instance.
	RuntimeNotInstalled = "not_installed"

	// valueNotChecked marks diagnostics skipped because the deployment does
	// not enable the dependency. Skipped values never trigger a diagnosis.
	valueNotChecked = "not_checked"
)

const (
	appCommandTimeout = 30 * time.Second
	appCommandRetries = 2
	recentLogLines    = 20
)

// ApplicationDiagnostics is the assembled picture of the application layer
// on the instance.
type ApplicationDiagnostics struct {
	RuntimeVersion        string `json:"runtime_version"`
	PackageManagerPresent bool   `json:"package_manager_present"`
	ProcessManagerStatus  string `json:"process_manager_status"`
	RecentLogs            string `json:"recent_logs,omitempty"`
	LocalHealthOK         bool   `json:"local_health_ok"`
}

// AppDiagnosticsProbe issues five independent remote commands to inspect
// the runtime, package manager, process manager, recent logs, and the
// application's own port. Deps decides which commands are relevant.
type AppDiagnosticsProbe struct {
	Exec RemoteRunner
	Port int
	Deps map[string]bool
	Log  *zap.Logger
}

func (p *AppDiagnosticsProbe) Name() string {
	return "application_diagnostics"
}

func (p *AppDiagnosticsProbe) Description() string {
	return "Inspecting the application runtime and process manager"
}

func (p *AppDiagnosticsProbe) Severity() Severity {
	return SeverityError
}

func (p *AppDiagnosticsProbe) enabled(dep string) bool {
	if p.Deps == nil {
		return true
	}
	return p.Deps[dep]
}

// Run gathers all five diagnostics. Each command fails independently; the
// probe itself never raises across its boundary.
func (p *AppDiagnosticsProbe) Run(ctx context.Context) *ApplicationDiagnostics {
	diag := &ApplicationDiagnostics{
		RuntimeVersion:        valueNotChecked,
		PackageManagerPresent: true,
		ProcessManagerStatus:  valueNotChecked,
	}

	if p.enabled("node") {
		ok, out := p.Exec.Execute(ctx, "node --version", appCommandTimeout, appCommandRetries)
		if ok {
			diag.RuntimeVersion = strings.TrimSpace(out)
		} else {
			diag.RuntimeVersion = RuntimeNotInstalled
		}
	}

	if p.enabled("npm") {
		ok, _ := p.Exec.Execute(ctx, "command -v npm", appCommandTimeout, appCommandRetries)
		diag.PackageManagerPresent = ok
	}

	if p.enabled("pm2") {
		ok, out := p.Exec.Execute(ctx, "pm2 jlist", appCommandTimeout, appCommandRetries)
		switch {
		case !ok:
			diag.ProcessManagerStatus = ProcessManagerNotInstalled
		case strings.Contains(out, `"status":"online"`):
			diag.ProcessManagerStatus = ProcessManagerOnline
		default:
			diag.ProcessManagerStatus = ProcessManagerNoProcess
		}

		logCmd := fmt.Sprintf(
			"pm2 logs --nostream --lines %d 2>/dev/null || tail -n %d ~/.pm2/logs/*.log 2>/dev/null",
			recentLogLines, recentLogLines)
		if ok, out := p.Exec.Execute(ctx, logCmd, appCommandTimeout, appCommandRetries); ok {
			diag.RecentLogs = out
		}
	}

	diag.LocalHealthOK = p.checkLocalHealth(ctx)

	if p.Log != nil {
		p.Log.Debug("Application diagnostics collected",
			zap.String("runtime", diag.RuntimeVersion),
			zap.Bool("package_manager", diag.PackageManagerPresent),
			zap.String("process_manager", diag.ProcessManagerStatus),
			zap.Bool("local_health", diag.LocalHealthOK))
	}
	return diag
}

// checkLocalHealth asks the instance to curl its own application port.
// A status in [200,400) counts as healthy.
func (p *AppDiagnosticsProbe) checkLocalHealth(ctx context.Context) bool {
	cmd := fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code}' http://localhost:%d/", p.Port)
	ok, out := p.Exec.Execute(ctx, cmd, appCommandTimeout, appCommandRetries)
	if !ok {
		return false
	}
	code, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return false
	}
	return code >= 200 && code < 400
}

// Result renders the typed diagnostics as a ProbeResult.
func (p *AppDiagnosticsProbe) Result(diag *ApplicationDiagnostics) *ProbeResult {
	result := &ProbeResult{
		ProbeName: p.Name(),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"runtime_version":         diag.RuntimeVersion,
			"package_manager_present": diag.PackageManagerPresent,
			"process_manager_status":  diag.ProcessManagerStatus,
			"local_health_ok":         diag.LocalHealthOK,
		},
	}

	healthy := diag.RuntimeVersion != RuntimeNotInstalled &&
		diag.PackageManagerPresent &&
		diag.ProcessManagerStatus != ProcessManagerNotInstalled &&
		diag.ProcessManagerStatus != ProcessManagerNoProcess &&
		diag.LocalHealthOK

	result.Success = healthy
	if healthy {
		result.Message = "Application layer looks healthy"
	} else {
		result.Message = "Application layer has problems"
	}
	return result
}
