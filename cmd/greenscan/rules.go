package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"greenscan/internal/rules"
)

func newRulesCmd(g *globals) *cobra.Command {
	var check string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List active rules or check a catalog file",
		Long: `Without flags, list the rules that analyses will apply (after
rules.disabled filtering). With --check, parse the given catalog file and
report every entry that would be skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if check != "" {
				rs, diags, err := rules.Load(check)
				if err != nil {
					return err
				}
				for _, d := range diags {
					fmt.Fprintln(out, d.String())
				}
				fmt.Fprintf(out, "%d rules loaded, %d skipped\n", len(rs), len(diags))
				if len(diags) > 0 {
					return fmt.Errorf("%s: %d invalid rules", check, len(diags))
				}
				return nil
			}

			catalog, err := loadCatalog(g.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Source: %s\n\n", catalog.Source())
			for _, r := range catalog.Rules() {
				fmt.Fprintf(out, "  %-24s %-7s %-20s %s\n", r.ID, r.Severity, r.Spec.Node, describe(r))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "validate a catalog file and print its diagnostics")
	return cmd
}

// describe summarizes a rule's constraints on one line.
func describe(r rules.Rule) string {
	var parts []string
	s := r.Spec
	if s.Operator != "" {
		parts = append(parts, "op="+s.Operator)
	}
	if s.OperandType != "" {
		parts = append(parts, "type="+s.OperandType)
	}
	if len(s.Type) > 0 {
		parts = append(parts, "new="+strings.Join(s.Type, "|"))
	}
	if s.Name != "" {
		parts = append(parts, "call="+s.Name)
	}
	if len(s.Ancestor) > 0 {
		parts = append(parts, "in="+strings.Join(s.Ancestor, "|"))
	}
	return strings.Join(parts, " ")
}
