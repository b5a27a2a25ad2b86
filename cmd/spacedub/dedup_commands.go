package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spacedub/internal/daemonctl"
	"spacedub/internal/dedup"
	"spacedub/internal/logging"
)

func newDedupCommand(ctx *commandContext) *cobra.Command {
	dedupCmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect the record of admitted mentions",
	}
	dedupCmd.AddCommand(newDedupListCommand(ctx))
	dedupCmd.AddCommand(newDedupCheckCommand(ctx))
	dedupCmd.AddCommand(newDedupMarkCommand(ctx))
	return dedupCmd
}

func openDedup(ctx *commandContext) (*dedup.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return dedup.Open(cfg.Paths.DedupFile, logging.NewNop())
}

func newDedupListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List admitted mention ids in admission order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openDedup(ctx)
			if err != nil {
				return err
			}
			ids := store.IDs()
			if asJSON {
				return writeJSON(cmd, ids)
			}
			stdout := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(stdout, "No mentions admitted yet")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(stdout, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as a JSON array")
	return cmd
}

func newDedupCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Report whether a mention id was already admitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openDedup(ctx)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if store.Seen(id) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: admitted\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not seen\n", id)
			return nil
		},
	}
}

func newDedupMarkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <id>...",
		Short: "Record mention ids as admitted so the daemon skips them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// The daemon rewrites the file from its own copy on every admission.
			if status, err := daemonctl.ProcessInfo(cfg); err != nil {
				return err
			} else if status.Running {
				return fmt.Errorf("daemon is running; stop it before editing %s", cfg.Paths.DedupFile)
			}
			store, err := openDedup(ctx)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			for _, arg := range args {
				id := strings.TrimSpace(arg)
				added, err := store.Mark(id)
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(stdout, "%s: marked\n", id)
				} else {
					fmt.Fprintf(stdout, "%s: already admitted\n", id)
				}
			}
			return nil
		},
	}
}
