package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"greenscan/internal/config"
	"greenscan/internal/logging"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globals holds persistent flag values and the loaded settings.
type globals struct {
	root      string
	logLevel  string
	logFormat string
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "greenscan",
		Short: "greenscan - energy-inefficiency analysis for source programs",
		Long: `greenscan flags energy-inefficient constructs in a source file with a
declarative rule catalog, then compiles and runs the program under an
energy-profiling agent and merges both results into one report.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&g.root, "root", ".", "project root containing .greenscan/settings.yaml")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format override (auto, json, console)")

	root.AddCommand(
		newAnalyzeCmd(g),
		newServeCmd(g),
		newRulesCmd(g),
		newReportCmd(g),
		newHistoryCmd(g),
		newWorkspacesCmd(g),
		newInitCmd(g),
		newVersionCmd(),
	)
	return root
}

// load reads settings and initializes logging. The init and version
// commands work without valid settings.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.root)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	g.cfg = cfg
	logging.Init(logging.Config{
		Format:    cfg.Logging.Format,
		Level:     cfg.Logging.Level,
		Component: "greenscan",
		FilePath:  cfg.Logging.File,
	})
	switch cmd.Name() {
	case "init", "version":
		return nil
	}
	return cfg.Validate()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "greenscan %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	err := newRootCmd().Execute()
	logging.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
