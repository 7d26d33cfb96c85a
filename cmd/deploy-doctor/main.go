// deploy-doctor diagnoses failed cloud-instance deployments: it probes the
// instance, its SSH path, the application layer, and the public health
// endpoints, then fuses the evidence into one ranked diagnosis.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdoctor/deploy-doctor/internal/cli"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "deploy-doctor",
		Short:   "Diagnose failed cloud deployments",
		Long:    "deploy-doctor determines why a cloud deployment failed by probing the instance, SSH, the application layer and its health endpoints, and optionally the CI run logs.",
		Version: version,
	}

	root.AddCommand(newDiagnoseCommand())
	root.AddCommand(newLogsCommand())
	return root
}

func newDiagnoseCommand() *cobra.Command {
	opts := cli.DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the full diagnosis pipeline against a deployment target",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.InstanceName == "" && opts.ConfigPath == "" {
				return fmt.Errorf("either --instance or --config is required")
			}
			return cli.RunDiagnose(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.InstanceName, "instance", "i", "", "name of the target instance")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the deployment config YAML")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "GitHub repository (owner/name) of the CI run")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "CI workflow run id to use as evidence")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 20*time.Minute, "overall pipeline timeout")
	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "table", "output format: table, json, or yaml")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "disable the power-cycle fallback (a human is watching)")
	return cmd
}

func newLogsCommand() *cobra.Command {
	var (
		repo         string
		runID        string
		timeout      time.Duration
		outputFormat string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch a CI run's logs and locate the first failing step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunLogs(repo, runID, timeout, outputFormat, verbose, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "GitHub repository (owner/name)")
	cmd.Flags().StringVar(&runID, "run-id", "", "workflow run id")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "retrieval timeout")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, or yaml")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	cmd.MarkFlagRequired("repo")
	cmd.MarkFlagRequired("run-id")
	return cmd
}
