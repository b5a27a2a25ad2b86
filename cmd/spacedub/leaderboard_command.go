package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spacedub/internal/browser"
	"spacedub/internal/config"
	"spacedub/internal/leaderboard"
	"spacedub/internal/logging"
)

func newLeaderboardCommand(ctx *commandContext) *cobra.Command {
	var (
		pageURL  string
		limit    int
		output   string
		fromFile string
		settle   time.Duration
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Scrape the Spaces dashboard leaderboard",
		Long: "Load the Spaces dashboard leaderboard in the browser (or parse a saved\n" +
			"copy with --from-file) and list or save its unique entries.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}

			var result leaderboard.Result
			if path := strings.TrimSpace(fromFile); path != "" {
				result, err = leaderboard.NewScraper(nil, pageURL, 0, logger).ScrapeFile(path, limit)
			} else {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				session, sessErr := browser.NewSession(runCtx, cfg, logger)
				if sessErr != nil {
					return sessErr
				}
				defer session.Close()
				result, err = leaderboard.NewScraper(session, pageURL, settle, logger).Scrape(runCtx, limit)
			}
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if out := strings.TrimSpace(output); out != "" {
				if err := leaderboard.Save(out, result.Entries); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Wrote %d entries to %s\n", len(result.Entries), out)
				return nil
			}
			if asJSON {
				entries := result.Entries
				if entries == nil {
					entries = []leaderboard.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(result.Entries) == 0 {
				fmt.Fprintln(stdout, "No leaderboard entries found")
				return nil
			}
			rows := make([][]string, 0, len(result.Entries))
			for i, entry := range result.Entries {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					truncate(entry.SpaceTitle, 50),
					entry.HostHandle,
					countLabel(entry.ListenerCount),
					strings.Join(entry.Topics, ", "),
				})
			}
			headers := []string{"#", "Space", "Host", "Listeners", "Topics"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}
			fmt.Fprint(stdout, renderTable(headers, rows, aligns, shouldColorize(stdout)))
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", leaderboard.DefaultURL, "Leaderboard page URL")
	cmd.Flags().IntVarP(&limit, "limit", "n", leaderboard.DefaultLimit, "Maximum number of entries (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write entries as JSON to this file")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "Parse a saved HTML copy instead of loading the page")
	cmd.Flags().DurationVar(&settle, "settle", 5*time.Second, "Time allowed for the page to render rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON instead of a table")
	return cmd
}

// cliLogger writes warnings and errors to stderr so command output stays clean.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	level := "warn"
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

func countLabel(count *int) string {
	if count == nil {
		return "-"
	}
	return strconv.Itoa(*count)
}
