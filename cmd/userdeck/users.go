package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/userdeck/userdeck/internal/config"
	"github.com/userdeck/userdeck/pkg/api"
	"github.com/userdeck/userdeck/pkg/mutate"
	"github.com/userdeck/userdeck/pkg/store"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and mutate users from the command line",
	}
	cmd.AddCommand(usersListCmd(), usersBulkDeleteCmd())
	return cmd
}

func usersListCmd() *cobra.Command {
	var (
		query string
		page  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users from the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			client := api.New(cfg.API.BaseURL)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := client.List(ctx, api.ListFilter{
				Query:    query,
				Page:     page,
				PageSize: cfg.API.PageSize,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tACTIVE\tROLES")
			for _, u := range result.Users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\n", u.ID, u.Email, u.Name, u.Active, u.Roles)
			}
			w.Flush()
			info("page %d, %d of %d users", result.Page, len(result.Users), result.Total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search query")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")

	return cmd
}

func usersBulkDeleteCmd() *cobra.Command {
	var (
		delayMS int
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "bulk-delete <id>...",
		Short: "Delete several users, tolerating per-user failures",
		Long: `Delete several users in one operation.

Deletions run sequentially with a pacing delay between calls. A user
whose deletion fails is skipped; the rest still go through. The exit
status is non-zero only when every deletion failed.

Examples:
  userdeck users bulk-delete u1 u2 u3
  userdeck users bulk-delete --delay 250 u1 u2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			if !yes {
				warn("deleting %d users from %s", len(args), cfg.API.BaseURL)
				info("pass --yes to confirm")
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := api.New(cfg.API.BaseURL)
			st := store.New()

			// The coordinator mutates local records, so fetch the targets
			// into the store first.
			for _, id := range args {
				rec, err := client.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", id, err)
				}
				st.ApplyRemote(rec)
			}

			delay := cfg.BulkDelay()
			if cmd.Flags().Changed("delay") {
				delay = time.Duration(delayMS) * time.Millisecond
			}
			coord := mutate.New(st, client, mutate.WithBulkDelay(delay))

			result, err := coord.BulkDelete(ctx, args)
			if err != nil {
				return err
			}
			for _, id := range result.Succeeded {
				success("deleted %s", id)
			}
			for _, f := range result.Failed {
				warn("failed %s: %s", f.ID, f.Reason())
			}
			if len(result.Succeeded) == 0 {
				return fmt.Errorf("all %d deletions failed", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&delayMS, "delay", 100, "Milliseconds between deletion calls")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
