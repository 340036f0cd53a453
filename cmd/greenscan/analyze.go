package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"greenscan/internal/findings"
	"greenscan/internal/orchestrator"
	"greenscan/internal/pipeline"
	"greenscan/internal/report"
)

func newAnalyzeCmd(g *globals) *cobra.Command {
	var (
		project    string
		commit     string
		format     string
		outPath    string
		staticOnly bool
		trace      bool
		save       bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one source file",
		Long: `Run the rule catalog over a source file and, when the toolchain supports
its language, compile and profile it. The merged report is written to
stdout or --out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			name := filepath.Base(args[0])
			if project == "" {
				project = orchestrator.ClassName(name)
			}

			catalog, err := loadCatalog(g.cfg)
			if err != nil {
				return err
			}
			p, err := newPipeline(g.cfg, catalog, trace)
			if err != nil {
				return err
			}
			rep, err := p.Analyze(cmd.Context(), pipeline.Submission{
				Name:       name,
				Content:    content,
				Project:    findings.Project{Name: project, Commit: commit},
				StaticOnly: staticOnly,
			})
			if err != nil {
				return err
			}

			if save {
				st, err := openStore(g.cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveReport(cmd.Context(), rep); err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				file, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer file.Close()
				w = file
			}
			if err := report.Write(w, rep, f); err != nil {
				return err
			}
			if rep.Failed() {
				log.Warn().Str("phase", rep.FailedPhase).Msg("Dynamic analysis did not complete")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (default: file name without extension)")
	cmd.Flags().StringVar(&commit, "commit", "", "commit identifier recorded in the report")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml or markdown")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the report to this file")
	cmd.Flags().BoolVar(&staticOnly, "static-only", false, "skip compilation and profiling")
	cmd.Flags().BoolVar(&trace, "trace", false, "include matcher accept/reject decisions")
	cmd.Flags().BoolVar(&save, "save", false, "store the report in the history database")
	return cmd
}
