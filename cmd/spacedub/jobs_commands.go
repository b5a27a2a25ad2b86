package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spacedub/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect finished job history",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func openLedger(ctx *commandContext) (*jobs.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.Open(cfg.JobsDBPath())
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outcomes []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.List(cmd.Context(), limit, outcomes...)
			if err != nil {
				return err
			}
			if asJSON {
				if records == nil {
					records = []jobs.Record{}
				}
				return writeJSON(cmd, records)
			}
			stdout := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(stdout, "No jobs recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.ID,
					rec.Mode,
					rec.Language,
					rec.Outcome,
					rec.Phase,
					formatDuration(rec.Duration()),
					formatFinished(rec.FinishedAt),
					truncate(firstNonEmpty(rec.ResultLink, rec.Reason), 60),
				})
			}
			headers := []string{"ID", "Mode", "Lang", "Outcome", "Phase", "Took", "Finished", "Result"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprint(stdout, renderTable(headers, rows, aligns, shouldColorize(stdout)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Only show these outcomes (succeeded, succeeded_reply_undelivered, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every recorded field of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			rec, err := ledger.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			stdout := cmd.OutOrStdout()
			fields := [][2]string{
				{"ID", rec.ID},
				{"Origin", rec.Origin},
				{"Mode", rec.Mode},
				{"Language", rec.Language},
				{"Outcome", rec.Outcome},
				{"Phase", rec.Phase},
				{"Reason", rec.Reason},
				{"Error kind", rec.ErrorKind},
				{"Manifest", rec.ManifestURL},
				{"Media", rec.MediaRef},
				{"Backend job", rec.ExternalJobID},
				{"Result", rec.ResultLink},
				{"Correlation", rec.CorrelationID},
				{"Started", formatFinished(rec.StartedAt)},
				{"Finished", formatFinished(rec.FinishedAt)},
				{"Took", formatDuration(rec.Duration())},
			}
			for _, field := range fields {
				if field[1] == "" {
					continue
				}
				fmt.Fprintf(stdout, "%-12s %s\n", field[0]+":", field[1])
			}
			return nil
		},
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatFinished(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
