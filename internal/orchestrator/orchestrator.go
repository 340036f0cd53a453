// Package orchestrator supervises the two external phases of dynamic
// analysis: compiling the submitted program and running it under the
// energy-measurement agent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase names a supervised step.
type Phase string

const (
	PhaseCompile Phase = "compile"
	PhaseRun     Phase = "run"
)

// Default command templates and contract values for a JVM with JoularJX.
var (
	DefaultCompile = []string{"javac", "-d", "{{out}}", "{{source}}"}
	DefaultRun     = []string{
		"java", "-XX:-Inline", "-Xint",
		"-javaagent:{{agent}}",
		"-Djoularjx.config={{agentConfig}}",
		"-cp", "{{out}}",
		"{{class}}",
	}
)

const (
	DefaultRunIDPattern   = `joularjx-result/(\S+)/`
	DefaultCompileTimeout = 60 * time.Second
	DefaultRunTimeout     = 5 * time.Minute
)

// Config describes the external toolchain. Command templates may use the
// placeholders {{source}}, {{workdir}}, {{out}}, {{class}}, {{agent}} and
// {{agentConfig}}.
type Config struct {
	Compile        []string
	Run            []string
	Agent          string
	AgentConfig    string
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	// RunIDPattern must contain one capture group for the run identifier.
	RunIDPattern string
}

// Vars are the per-submission placeholder values.
type Vars struct {
	Source  string
	Workdir string
	Out     string
	Class   string
}

// ClassName derives the entry-point name from a source path: "Main.java"
// yields "Main".
func ClassName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PhaseResult records one finished phase.
type PhaseResult struct {
	Phase    Phase         `json:"phase" yaml:"phase"`
	Argv     []string      `json:"argv" yaml:"argv"`
	ExitCode int           `json:"exitCode" yaml:"exitCode"`
	Output   string        `json:"output,omitempty" yaml:"output,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	TimedOut bool          `json:"timedOut,omitempty" yaml:"timedOut,omitempty"`
}

// Outcome is the result of Execute. Compile is always set when Execute got
// as far as starting; Run only if compilation succeeded.
type Outcome struct {
	Compile *PhaseResult
	Run     *PhaseResult
	RunID   string
}

// Orchestrator runs phases through a Runner.
type Orchestrator struct {
	cfg     Config
	run     Runner
	pattern *regexp.Regexp
}

// New validates cfg, filling defaults, and returns an orchestrator. A nil
// run uses ExecRunner.
func New(cfg Config, run Runner) (*Orchestrator, error) {
	if len(cfg.Compile) == 0 {
		cfg.Compile = DefaultCompile
	}
	if len(cfg.Run) == 0 {
		cfg.Run = DefaultRun
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = DefaultCompileTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.RunIDPattern == "" {
		cfg.RunIDPattern = DefaultRunIDPattern
	}
	re, err := regexp.Compile(cfg.RunIDPattern)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: run id pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("orchestrator: run id pattern %q has no capture group", cfg.RunIDPattern)
	}
	if run == nil {
		run = ExecRunner(DefaultMaxOutput)
	}
	return &Orchestrator{cfg: cfg, run: run, pattern: re}, nil
}

// Execute compiles, then runs, then extracts the run identifier. The first
// failure stops the sequence and is returned with the outcome so far.
func (o *Orchestrator) Execute(ctx context.Context, v Vars) (*Outcome, error) {
	out := &Outcome{}

	compiled, err := o.Compile(ctx, v)
	out.Compile = compiled
	if err != nil {
		return out, err
	}

	ran, err := o.Run(ctx, v)
	out.Run = ran
	if err != nil {
		return out, err
	}

	id, err := o.ExtractRunID(ran.Output)
	if err != nil {
		return out, err
	}
	out.RunID = id
	return out, nil
}

// Compile runs the compile phase.
func (o *Orchestrator) Compile(ctx context.Context, v Vars) (*PhaseResult, error) {
	return o.phase(ctx, PhaseCompile, o.cfg.Compile, o.cfg.CompileTimeout, v)
}

// Run runs the instrumented-run phase.
func (o *Orchestrator) Run(ctx context.Context, v Vars) (*PhaseResult, error) {
	return o.phase(ctx, PhaseRun, o.cfg.Run, o.cfg.RunTimeout, v)
}

// ExtractRunID finds the run identifier announced in output. The id names a
// directory under the result root, so it must be a local path.
func (o *Orchestrator) ExtractRunID(output string) (string, error) {
	m := o.pattern.FindStringSubmatch(output)
	if m == nil || m[1] == "" {
		return "", &RunIDError{Pattern: o.pattern.String(), Output: output}
	}
	id := m[1]
	if !filepath.IsLocal(id) || filepath.Clean(id) == "." {
		return "", &RunIDError{Pattern: o.pattern.String(), Output: output, ID: id}
	}
	return id, nil
}

func (o *Orchestrator) phase(ctx context.Context, p Phase, tmpl []string, timeout time.Duration, v Vars) (*PhaseResult, error) {
	argv := o.expand(tmpl, v)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, code, runErr := o.run(pctx, v.Workdir, argv)
	res := &PhaseResult{
		Phase:    p,
		Argv:     argv,
		ExitCode: code,
		Output:   string(output),
		Duration: time.Since(start),
		TimedOut: errors.Is(pctx.Err(), context.DeadlineExceeded),
	}

	logEvent := log.Info()
	if runErr != nil || code != 0 || res.TimedOut {
		logEvent = log.Warn()
	}
	logEvent.
		Str("phase", string(p)).
		Int("exit_code", code).
		Bool("timed_out", res.TimedOut).
		Dur("duration", res.Duration).
		Msg("Phase finished")

	if runErr == nil && code == 0 && !res.TimedOut {
		return res, nil
	}
	if res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, &PhaseError{
		Phase:    p,
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Output:   res.Output,
		Err:      runErr,
	}
}

func (o *Orchestrator) expand(tmpl []string, v Vars) []string {
	r := strings.NewReplacer(
		"{{source}}", v.Source,
		"{{workdir}}", v.Workdir,
		"{{out}}", v.Out,
		"{{class}}", v.Class,
		"{{agent}}", o.cfg.Agent,
		"{{agentConfig}}", o.cfg.AgentConfig,
	)
	argv := make([]string, len(tmpl))
	for i, a := range tmpl {
		argv[i] = r.Replace(a)
	}
	return argv
}
