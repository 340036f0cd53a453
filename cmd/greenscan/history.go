package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"greenscan/internal/report"
)

func newReportCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report <jobId>",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			st, err := openStore(g.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			rep, err := st.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), rep, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml or markdown")
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		limit  int
		offset int
		rule   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored reports, or past findings of one rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(g.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()

			if rule != "" {
				recs, err := st.FindingsByRule(cmd.Context(), rule)
				if err != nil {
					return err
				}
				for _, r := range recs {
					fmt.Fprintf(out, "%s  %s:%d  %s\n", r.JobID, r.File, r.StartLine, r.Severity)
				}
				return nil
			}

			list, err := st.ListReports(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "no reports")
				return nil
			}
			for _, s := range list {
				status := "ok"
				if s.FailedPhase != "" {
					status = "failed:" + s.FailedPhase
				}
				fmt.Fprintf(out, "%s  %s  %-16s total=%d high=%d medium=%d low=%d  %s\n",
					s.JobID, s.AnalyzedAt.Format(time.RFC3339), s.Project, s.Total, s.High, s.Medium, s.Low, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of reports to skip")
	cmd.Flags().StringVar(&rule, "rule", "", "list stored findings of this rule instead")
	return cmd
}

func newWorkspacesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "Inspect and clean up per-run directories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List kept run directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := newWorkspaces(g.cfg).List()
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Dir)
			}
			return nil
		},
	}

	var (
		olderThan time.Duration
		reports   bool
	)
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove run directories older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			removed, err := newWorkspaces(g.cfg).Prune(olderThan, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d run directories\n", len(removed))
			if !reports {
				return nil
			}
			st, err := openStore(g.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.Prune(cmd.Context(), now.Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stored reports\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "minimum age of removed runs")
	prune.Flags().BoolVar(&reports, "reports", false, "also delete stored reports older than the same age")

	cmd.AddCommand(list, prune)
	return cmd
}
