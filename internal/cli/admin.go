package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newReloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reload [workspace]",
		Short: "Rebuild the lexical index of a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var workspace string
			if len(args) == 1 {
				workspace = args[0]
			}
			res, err := a.client.Reload(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				return printJSON(out, res)
			}
			_, _ = okColor.Fprintf(out, "%s %s", res.Workspace, res.Status)
			_, _ = fmt.Fprintf(out, ": %d documents in %.1f ms\n", res.DocumentCount, res.TookMs)
			return nil
		},
	}
}

func newInvalidateCmd(a *app) *cobra.Command {
	var workspace, question string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached answers for one question or a whole workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client.InvalidateCache(cmd.Context(), workspace, question)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				return printJSON(out, res)
			}
			_, _ = fmt.Fprintf(out, "deleted %d cached answers from %s\n", res.Deleted, res.Workspace)
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace (server default when empty)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "only this question; all entries when empty")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lexical indexes, cache sizes and queue gauges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				return printJSON(out, res)
			}

			_, _ = titleColor.Fprintln(out, "Lexical indexes")
			for _, s := range res.Lexical {
				_, _ = fmt.Fprintf(out, "  %-20s %-9s %6d docs  avg len %.1f\n", s.Workspace, s.State, s.Documents, s.AvgLength)
			}

			_, _ = titleColor.Fprintln(out, "Answer cache")
			if !res.Cache.Enabled {
				_, _ = warnColor.Fprintln(out, "  disabled")
			}
			workspaces := make([]string, 0, len(res.Cache.Entries))
			for ws := range res.Cache.Entries {
				workspaces = append(workspaces, ws)
			}
			sort.Strings(workspaces)
			for _, ws := range workspaces {
				_, _ = fmt.Fprintf(out, "  %-20s %6d entries\n", ws, res.Cache.Entries[ws])
			}

			q := res.Queue
			_, _ = titleColor.Fprintln(out, "Queue")
			_, _ = fmt.Fprintf(out, "  in flight %d/%d, waiting %d/%d\n", q.InFlight, q.MaxConcurrent, q.Waiting, q.MaxQueueDepth)
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health; exits non-zero when unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				_, _ = statusColor(res.Status).Fprint(out, res.Status)
				_, _ = dimColor.Fprintf(out, " (version %s)\n", res.Version)

				names := make([]string, 0, len(res.Checks))
				for name := range res.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					_, _ = fmt.Fprintf(out, "  %-12s ", name)
					_, _ = statusColor(res.Checks[name]).Fprintln(out, res.Checks[name])
				}
			}
			if res.Status == "error" {
				return errUnhealthy
			}
			return nil
		},
	}
}
