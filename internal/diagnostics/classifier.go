package diagnostics

import (
	"fmt"
	"strings"

	"github.com/opsdoctor/deploy-doctor/internal/cilogs"
	"github.com/opsdoctor/deploy-doctor/internal/cloud"
)

// Diagnosis categories. Hard infrastructure evidence always beats softer
// application-layer inference.
const (
	CategoryInfrastructureFailure = "infrastructure_failure"
	CategorySSHFailure            = "ssh_failure"
	CategoryDependencyFailure     = "dependency_failure"
	CategoryAppStartupFailure     = "application_startup_failure"
	CategoryHealthCheckFailure    = "health_check_failure"
	CategoryIntermittentFailure   = "intermittent_failure"
	CategoryUnknownFailure        = "unknown_failure"
)

// Diagnosis is the single ranked conclusion of a diagnostic run.
type Diagnosis struct {
	Category     string   `json:"category"`
	RootCause    string   `json:"root_cause"`
	Remediations []string `json:"remediations"`
	Confidence   float64  `json:"confidence"`
}

// diagnosisRule pairs a predicate with a diagnosis builder. The rule order
// itself is the decision logic: rules are evaluated in sequence and the
// first match wins, never a combination.
type diagnosisRule struct {
	name    string
	applies func(*Evidence) bool
	build   func(*Evidence) *Diagnosis
}

// diagnosisRules is the ordered decision list. Confidence encodes how
// directly the evidence supports the conclusion: hard infrastructure
// evidence scores >= 0.9, "everything looks fine" inference <= 0.6.
var diagnosisRules = []diagnosisRule{
	{
		name: "instance_missing",
		applies: func(ev *Evidence) bool {
			return ev.Instance != nil && !ev.Instance.Exists
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryInfrastructureFailure,
				RootCause:    "The target instance does not exist in the cloud project",
				Remediations: remediationInstanceMissing,
				Confidence:   0.95,
			}
		},
	},
	{
		name: "instance_not_running",
		applies: func(ev *Evidence) bool {
			return ev.Instance != nil && ev.Instance.Exists &&
				ev.Instance.State != cloud.StateRunning
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category: CategoryInfrastructureFailure,
				RootCause: fmt.Sprintf(
					"The instance exists but is %s, not running", ev.Instance.State),
				Remediations: remediationInstanceNotRunning,
				Confidence:   0.90,
			}
		},
	},
	{
		name: "ssh_unreachable",
		applies: func(ev *Evidence) bool {
			return ev.Connectivity != nil && !ev.Connectivity.Reachable
		},
		build: buildSSHDiagnosis,
	},
	{
		name: "runtime_missing",
		applies: func(ev *Evidence) bool {
			return ev.App != nil && ev.App.RuntimeVersion == RuntimeNotInstalled
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryDependencyFailure,
				RootCause:    "The application runtime is not installed on the instance",
				Remediations: remediationRuntimeMissing,
				Confidence:   0.90,
			}
		},
	},
	{
		name: "package_manager_missing",
		applies: func(ev *Evidence) bool {
			return ev.App != nil && !ev.App.PackageManagerPresent
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryDependencyFailure,
				RootCause:    "The package manager is missing from the instance",
				Remediations: remediationPackageManagerMissing,
				Confidence:   0.85,
			}
		},
	},
	{
		name: "process_manager_missing",
		applies: func(ev *Evidence) bool {
			return ev.App != nil && ev.App.ProcessManagerStatus == ProcessManagerNotInstalled
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryAppStartupFailure,
				RootCause:    "The process manager is not installed, so the application was never started",
				Remediations: remediationProcessManagerMissing,
				Confidence:   0.80,
			}
		},
	},
	{
		name: "no_healthy_process",
		applies: func(ev *Evidence) bool {
			return ev.App != nil && ev.App.ProcessManagerStatus == ProcessManagerNoProcess
		},
		build: func(ev *Evidence) *Diagnosis {
			remediations := remediationNoHealthyProcess
			if strings.Contains(strings.ToLower(ev.App.RecentLogs), "error") {
				remediations = prepend(inspectLogsRemediation, remediations)
			}
			return &Diagnosis{
				Category:     CategoryAppStartupFailure,
				RootCause:    "The process manager is running but no application process is online",
				Remediations: remediations,
				Confidence:   0.85,
			}
		},
	},
	{
		name: "local_health_failed",
		applies: func(ev *Evidence) bool {
			return ev.App != nil && !ev.App.LocalHealthOK
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryAppStartupFailure,
				RootCause:    "The application does not answer on its own port from inside the instance",
				Remediations: remediationLocalHealthFailed,
				Confidence:   0.80,
			}
		},
	},
	{
		name: "all_endpoints_down",
		applies: func(ev *Evidence) bool {
			return ev.Endpoints != nil && len(ev.Endpoints.Results) > 0 &&
				!ev.Endpoints.AnySucceeded
		},
		build: buildEndpointsDownDiagnosis,
	},
	{
		name: "some_endpoints_failing",
		applies: func(ev *Evidence) bool {
			return ev.Endpoints != nil && ev.Endpoints.AnySucceeded &&
				anyEndpointFailed(ev.Endpoints)
		},
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category: CategoryHealthCheckFailure,
				RootCause: fmt.Sprintf("Some endpoints respond but these do not return success: %s",
					strings.Join(failingPaths(ev.Endpoints), ", ")),
				Remediations: remediationEndpointsPartial,
				Confidence:   0.70,
			}
		},
	},
	{
		name: "ci_failure_point",
		applies: func(ev *Evidence) bool {
			return ev.FailurePoint != nil
		},
		build: buildCIDiagnosis,
	},
	{
		name:    "all_healthy",
		applies: hasAnyProbeEvidence,
		build: func(ev *Evidence) *Diagnosis {
			return &Diagnosis{
				Category:     CategoryIntermittentFailure,
				RootCause:    "Every probe looks healthy now; the deployment likely failed on a timing or race condition",
				Remediations: remediationIntermittent,
				Confidence:   0.60,
			}
		},
	},
}

// Classify fuses probe results and CI evidence into exactly one Diagnosis.
// It is a total function: with no usable evidence at all it falls through
// to the lowest-confidence unknown_failure rather than erroring.
func Classify(ev *Evidence) *Diagnosis {
	if ev == nil {
		ev = &Evidence{}
	}
	for _, rule := range diagnosisRules {
		if rule.applies(ev) {
			return rule.build(ev)
		}
	}
	return &Diagnosis{
		Category:     CategoryUnknownFailure,
		RootCause:    "No usable diagnostic data was collected",
		Remediations: remediationUnknown,
		Confidence:   0.50,
	}
}

// buildSSHDiagnosis refines the root cause and front-loads a remediation by
// matching the connectivity error's signature.
func buildSSHDiagnosis(ev *Evidence) *Diagnosis {
	msg := strings.ToLower(ev.Connectivity.ErrorMessage)
	diag := &Diagnosis{
		Category:     CategorySSHFailure,
		RootCause:    "The instance is up but SSH connections fail",
		Remediations: remediationSSHFailure,
		Confidence:   0.85,
	}

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		diag.RootCause = "SSH connections time out; traffic to port 22 is probably filtered"
		diag.Remediations = prepend(sshTimeoutRemediation, remediationSSHFailure)
	case strings.Contains(msg, "refused"):
		diag.RootCause = "SSH connections are refused; sshd is probably not running"
		diag.Remediations = prepend(sshRefusedRemediation, remediationSSHFailure)
	case strings.Contains(msg, "auth") || strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "publickey"):
		diag.RootCause = "SSH reaches the instance but authentication fails"
		diag.Remediations = prepend(sshAuthRemediation, remediationSSHFailure)
	}
	return diag
}

// buildEndpointsDownDiagnosis differentiates the root cause by the shape of
// the failures: all timeouts point at a firewall, all refusals at a bind
// address, a mix stays generic.
func buildEndpointsDownDiagnosis(ev *Evidence) *Diagnosis {
	timeouts, refusals, other := 0, 0, 0
	for _, r := range ev.Endpoints.Results {
		msg := strings.ToLower(r.ErrorMessage)
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
			timeouts++
		case strings.Contains(msg, "refused"):
			refusals++
		default:
			other++
		}
	}

	diag := &Diagnosis{
		Category:     CategoryHealthCheckFailure,
		RootCause:    "No health-check endpoint responds successfully",
		Remediations: remediationEndpointsAllDown,
		Confidence:   0.75,
	}
	total := len(ev.Endpoints.Results)
	switch {
	case timeouts == total:
		diag.RootCause = "Every endpoint probe times out; the application port is probably blocked by a firewall"
	case refusals == total:
		diag.RootCause = "Every endpoint probe is refused; the application is probably bound to localhost only"
	}
	return diag
}

// ciCategoryConfidence fixes the confidence per CI-derived category: weaker
// than any live-probe rule of the same category would be.
var ciCategoryConfidence = map[cilogs.ErrorCategory]float64{
	cilogs.CategoryConnectivity:       0.80,
	cilogs.CategoryHealthCheck:        0.75,
	cilogs.CategoryDependency:         0.85,
	cilogs.CategoryApplicationStartup: 0.80,
	cilogs.CategoryUnknown:            0.50,
}

// ciCategoryMapping maps CI failure categories to diagnosis categories.
var ciCategoryMapping = map[cilogs.ErrorCategory]string{
	cilogs.CategoryConnectivity:       CategorySSHFailure,
	cilogs.CategoryHealthCheck:        CategoryHealthCheckFailure,
	cilogs.CategoryDependency:         CategoryDependencyFailure,
	cilogs.CategoryApplicationStartup: CategoryAppStartupFailure,
	cilogs.CategoryUnknown:            CategoryUnknownFailure,
}

// buildCIDiagnosis falls back to the parsed CI failure point when no live
// probe produced a stronger signal.
func buildCIDiagnosis(ev *Evidence) *Diagnosis {
	fp := ev.FailurePoint
	category, ok := ciCategoryMapping[fp.ErrorCategory]
	if !ok {
		category = CategoryUnknownFailure
	}
	confidence, ok := ciCategoryConfidence[fp.ErrorCategory]
	if !ok {
		confidence = 0.50
	}

	remediations := ciCategoryRemediations[category]
	if remediations == nil {
		remediations = remediationUnknown
	}

	return &Diagnosis{
		Category: category,
		RootCause: fmt.Sprintf("CI job %q failed at step %q: %s",
			fp.JobName, fp.StepName, fp.ErrorMessage),
		Remediations: remediations,
		Confidence:   confidence,
	}
}

func hasAnyProbeEvidence(ev *Evidence) bool {
	return ev.Instance != nil || ev.Connectivity != nil ||
		ev.App != nil || ev.Endpoints != nil
}

func anyEndpointFailed(set *EndpointProbeSet) bool {
	for _, r := range set.Results {
		if !r.Succeeded() {
			return true
		}
	}
	return false
}

func failingPaths(set *EndpointProbeSet) []string {
	var paths []string
	for _, r := range set.Results {
		if !r.Succeeded() {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

// prepend copies rest so the shared remediation lists are never mutated.
func prepend(first string, rest []string) []string {
	out := make([]string, 0, len(rest)+1)
	out = append(out, first)
	return append(out, rest...)
}
