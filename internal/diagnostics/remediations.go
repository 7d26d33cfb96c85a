package diagnostics

// Remediation lists are data, not computed: each diagnosis category returns
// its list verbatim so operators (and tests) see stable, ordered guidance.

var remediationInstanceMissing = []string{
	"Verify the instance name and location in the deployment config",
	"Check whether the instance was deleted from the cloud console or by automation",
	"Re-run the provisioning step to recreate the instance",
	"Confirm the API token targets the right project",
}

var remediationInstanceNotRunning = []string{
	"Start the instance from the cloud console or CLI",
	"Check the cloud provider status page for outages in the instance's location",
	"Inspect the instance's event log for unexpected shutdowns",
	"Verify the account has no billing or quota issues forcing power-off",
}

var remediationSSHFailure = []string{
	"Confirm the instance finished booting and sshd is running",
	"Check the firewall allows inbound TCP 22 from the runner's network",
	"Verify the deploy key is installed in the instance's authorized_keys",
	"Review recent network or security-group changes",
}

// Sub-case refinements prepended to remediationSSHFailure.
const (
	sshTimeoutRemediation = "Check the security group/firewall: connection timeouts usually mean port 22 is filtered"
	sshRefusedRemediation = "Verify sshd is running on the instance: connection refused means the port is closed, not filtered"
	sshAuthRemediation    = "Verify the SSH key pair: authentication failures mean the transport works but the credential is rejected"
)

var remediationRuntimeMissing = []string{
	"Re-run the runtime installation step of the deployment",
	"Check the installer logs for download or repository failures",
	"Verify the instance image matches the one the installer expects",
}

var remediationPackageManagerMissing = []string{
	"Reinstall the runtime package bundle; the package manager ships with it",
	"Check PATH for the deploy user; the tool may be installed but not visible",
	"Re-run the dependency installation step of the deployment",
}

var remediationProcessManagerMissing = []string{
	"Install the process manager (npm install -g pm2)",
	"Re-run the application startup step of the deployment",
	"Check the global npm prefix is on the deploy user's PATH",
}

var remediationNoHealthyProcess = []string{
	"Restart the application under the process manager",
	"Check the application's environment variables and config files",
	"Verify the application's dependencies installed cleanly",
}

// inspectLogsRemediation is front-loaded when recent logs contain errors.
const inspectLogsRemediation = "Inspect the recent application logs: they contain error output"

var remediationLocalHealthFailed = []string{
	"Check the application is listening on the configured port",
	"Restart the application and watch its startup logs",
	"Verify the health endpoint path exists in this application version",
}

var remediationEndpointsAllDown = []string{
	"Check the firewall allows inbound traffic on the application port",
	"Verify the application binds 0.0.0.0, not localhost only",
	"Confirm the instance's public address matches what the health check targets",
}

var remediationEndpointsPartial = []string{
	"Check the failing paths exist in the deployed application version",
	"Review the application routes and reverse-proxy configuration",
	"Inspect application logs for errors on the failing paths",
}

var remediationIntermittent = []string{
	"Re-run the failed deployment; everything looks healthy now",
	"Add a readiness wait before health checks: the app may need longer to warm up",
	"Check for races between service start and the first health probe",
	"Review CI timing: the failure may predate the instance reaching steady state",
}

var remediationUnknown = []string{
	"Re-run diagnostics with --verbose for more detail",
	"Inspect the CI run logs manually",
	"Connect to the instance and review system logs",
}

// ciCategoryRemediations maps a CI-derived failure category to the matching
// remediation list when no live probe produced stronger evidence.
var ciCategoryRemediations = map[string][]string{
	CategorySSHFailure:         remediationSSHFailure,
	CategoryHealthCheckFailure: remediationEndpointsAllDown,
	CategoryDependencyFailure:  remediationRuntimeMissing,
	CategoryAppStartupFailure:  remediationNoHealthyProcess,
	CategoryUnknownFailure:     remediationUnknown,
}
