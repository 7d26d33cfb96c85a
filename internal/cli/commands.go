// Package cli provides testable command implementations for the deploy-doctor
// CLI. The cobra commands in cmd/deploy-doctor delegate here so the command
// logic can be exercised without a terminal.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/opsdoctor/deploy-doctor/internal/cilogs"
	"github.com/opsdoctor/deploy-doctor/internal/cloud"
	"github.com/opsdoctor/deploy-doctor/internal/config"
	"github.com/opsdoctor/deploy-doctor/internal/diagnostics"
	"github.com/opsdoctor/deploy-doctor/internal/logging"
	"github.com/opsdoctor/deploy-doctor/internal/sshexec"
)

// DiagnoseOptions carries everything the diagnose command needs.
type DiagnoseOptions struct {
	ConfigPath   string
	InstanceName string
	Repo         string
	RunID        string
	Timeout      time.Duration
	OutputFormat string
	Verbose      bool
	Interactive  bool
}

// RunDiagnose wires the full pipeline: optional CI log retrieval, the four
// probes, classification, and output rendering.
func RunDiagnose(opts DiagnoseOptions, writer io.Writer) error {
	log, err := logging.New(opts.Verbose)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	if err := config.LoadEnv(""); err != nil {
		log.Warn("Failed to load .env file", zap.Error(err))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// The whole pipeline runs under one caller-level timeout; individual
	// retries inside it cannot be cancelled mid-sleep.
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	host, err := cloud.NewClient(cfg.InstanceName, log)
	if err != nil {
		return fmt.Errorf("create instance API client: %w", err)
	}

	executor := sshexec.NewExecutor(host, cfg.SSHUser,
		sshexec.ExecutionContext{Interactive: opts.Interactive}, log)

	engine := diagnostics.NewEngine(host, executor, cfg, log)

	if opts.Repo != "" && opts.RunID != "" {
		fp, err := fetchFailurePoint(ctx, opts.Repo, opts.RunID, log)
		if err != nil {
			// CI evidence is optional; diagnosis proceeds on live probes.
			log.Warn("Could not retrieve CI failure point", zap.Error(err))
		} else if fp != nil {
			engine.WithFailurePoint(fp)
		}
	}

	report := engine.Run(ctx)
	return OutputReport(report, opts.OutputFormat, opts.Verbose, writer)
}

func loadConfig(opts DiagnoseOptions) (*config.DeploymentConfig, error) {
	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		if opts.InstanceName != "" {
			cfg.InstanceName = opts.InstanceName
		}
		return cfg, nil
	}

	cfg := config.Default()
	cfg.InstanceName = opts.InstanceName
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fetchFailurePoint(ctx context.Context, repo, runID string, log *zap.Logger) (*cilogs.FailurePoint, error) {
	client := cilogs.NewClient(log)
	workflowLog, err := client.FetchAndParse(ctx, repo, runID)
	if err != nil {
		return nil, err
	}
	return workflowLog.IdentifyFailurePoint(), nil
}

// RunLogs fetches and parses one CI run and prints its failure point.
// It exercises the log retriever stand-alone for quick triage.
func RunLogs(repo, runID string, timeout time.Duration, outputFormat string, verbose bool, writer io.Writer) error {
	log, err := logging.New(verbose)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := cilogs.NewClient(log)
	workflowLog, err := client.FetchAndParse(ctx, repo, runID)
	if err != nil {
		return err
	}

	switch strings.ToLower(outputFormat) {
	case "json":
		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")
		return enc.Encode(workflowLog)
	case "yaml":
		enc := yaml.NewEncoder(writer)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(workflowLog)
	default:
		return outputLogSummary(workflowLog, writer)
	}
}

func outputLogSummary(workflowLog *cilogs.WorkflowLog, writer io.Writer) error {
	fmt.Fprintf(writer, "Run status: %s\n", workflowLog.OverallStatus)
	for _, job := range workflowLog.Jobs {
		fmt.Fprintf(writer, "  %s [%s]\n", job.Name, job.Status)
		for _, step := range job.Steps {
			fmt.Fprintf(writer, "    %s [%s]\n", step.Name, step.Status)
		}
	}

	if fp := workflowLog.IdentifyFailurePoint(); fp != nil {
		fmt.Fprintln(writer)
		fmt.Fprintf(writer, "First failure: job %q, step %q (%s)\n",
			fp.JobName, fp.StepName, fp.ErrorCategory)
		if fp.ErrorMessage != "" {
			fmt.Fprintf(writer, "  %s\n", fp.ErrorMessage)
		}
	} else {
		fmt.Fprintln(writer, "No failing step found")
	}
	return nil
}

// OutputReport formats a diagnostic report in the requested format.
func OutputReport(report *diagnostics.Report, outputFormat string, verbose bool, writer io.Writer) error {
	switch strings.ToLower(outputFormat) {
	case "json":
		return outputJSON(report, writer)
	case "yaml":
		return outputYAML(report, writer)
	case "table", "":
		return outputTable(report, verbose, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputJSON(report *diagnostics.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func outputYAML(report *diagnostics.Report, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(report)
}

func outputTable(report *diagnostics.Report, verbose bool, writer io.Writer) error {
	fmt.Fprintln(writer, "Deploy Doctor - Diagnostic Report")
	fmt.Fprintln(writer, "=================================")
	fmt.Fprintln(writer)

	fmt.Fprintln(writer, "Probes:")
	for _, probe := range report.Probes {
		status := "FAIL"
		if probe.Success {
			status = "OK"
		}
		fmt.Fprintf(writer, "  [%-4s] %-25s %s\n", status, probe.ProbeName, probe.Message)
		if verbose {
			for key, value := range probe.Details {
				fmt.Fprintf(writer, "         %s: %v\n", key, value)
			}
		}
	}

	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "Diagnosis: %s (confidence %.2f)\n",
		report.Diagnosis.Category, report.Diagnosis.Confidence)
	fmt.Fprintf(writer, "Root cause: %s\n", report.Diagnosis.RootCause)
	fmt.Fprintln(writer, "Remediation steps:")
	for i, step := range report.Diagnosis.Remediations {
		fmt.Fprintf(writer, "  %d. %s\n", i+1, step)
	}

	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "%d/%d probes passed in %s\n",
		report.Summary.PassedProbes, report.Summary.TotalProbes,
		report.Duration.Round(time.Millisecond))
	return nil
}
