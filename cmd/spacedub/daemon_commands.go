package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spacedub/internal/daemonctl"
	"spacedub/internal/daemonrun"
	"spacedub/internal/dedup"
	"spacedub/internal/deps"
	"spacedub/internal/jobs"
	"spacedub/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the mention daemon in the foreground",
		Long: "Poll the mentions inbox, admit each new mention once, and process\n" +
			"admitted mentions one at a time until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	daemonCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	daemonCmd.Flags().BoolVar(&development, "dev", false, "Log human-readable output to stdout only")

	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "Daemon", colorize)
			if status.Running {
				detail := "running"
				if status.PID > 0 {
					detail = fmt.Sprintf("running (pid %d)", status.PID)
				}
				fmt.Fprintln(stdout, renderStatusLine("Process", statusOK, detail, colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Process", statusWarn, "not running", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("State dir", statusInfo, cfg.Paths.StateDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Replies", statusInfo, yesNo(cfg.Reply.Enabled), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Summaries", statusInfo, yesNo(strings.TrimSpace(cfg.LLM.APIKey) != ""), colorize))
			fmt.Fprintln(stdout)

			printSection(stdout, "Dependencies", colorize)
			for _, dep := range deps.Check(cfg) {
				fmt.Fprintln(stdout, dependencyLine(dep, colorize))
			}
			if err := cfg.ValidateServices(); err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Services", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Services", statusOK, "configured", colorize))
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Mentions", colorize)
			seen, err := dedup.Open(cfg.Paths.DedupFile, logging.NewNop())
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Dedup record", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Dedup record", statusInfo, fmt.Sprintf("%d admitted", seen.Count()), colorize))
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Jobs", colorize)
			ledger, err := jobs.Open(cfg.JobsDBPath())
			if err != nil {
				return err
			}
			defer ledger.Close()
			stats, err := ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := outcomeRows(stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs recorded")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight}, colorize))
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon (SIGTERM, then SIGKILL after the grace period)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if grace <= 0 {
				grace = time.Duration(cfg.Workflow.ShutdownGrace)*time.Second + 5*time.Second
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit within %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "How long to wait before force-killing (default workflow.shutdown_grace + 5s)")
	return cmd
}

func printSection(w io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
}

func dependencyLine(dep deps.Status, colorize bool) string {
	if dep.Available {
		return renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize)
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	detail := dep.Detail
	if dep.Description != "" {
		detail = fmt.Sprintf("%s (%s)", detail, dep.Description)
	}
	return renderStatusLine(dep.Name, kind, detail, colorize)
}

func outcomeRows(stats map[string]int) [][]string {
	outcomes := make([]string, 0, len(stats))
	for outcome := range stats {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		rows = append(rows, []string{outcome, fmt.Sprintf("%d", stats[outcome])})
	}
	return rows
}
