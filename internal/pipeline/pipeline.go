// Package pipeline runs one submission end to end: parse and match (always),
// then compile, instrumented run, run-id extraction and result-tree loading
// for sources that support dynamic analysis. The first dynamic failure is
// recorded on the report and stops the dynamic half; the static half is
// always returned.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"greenscan/internal/findings"
	"greenscan/internal/logging"
	"greenscan/internal/matcher"
	"greenscan/internal/metrics"
	"greenscan/internal/orchestrator"
	"greenscan/internal/report"
	"greenscan/internal/resulttree"
	"greenscan/internal/rules"
	"greenscan/internal/syntax"
	"greenscan/internal/workspace"
)

// Phase names used in Report.FailedPhase beyond the orchestrator phases.
const (
	PhaseParse      = "parse"
	PhaseRunID      = "runId"
	PhaseResultTree = "resultTree"
)

// Submission is one program to analyse.
type Submission struct {
	// Name is the file name as submitted; findings report it as their file.
	Name    string
	Content []byte
	Project findings.Project
	// StaticOnly skips the dynamic half.
	StaticOnly bool
}

// Options wires the pipeline's collaborators.
type Options struct {
	Registry   *syntax.Registry
	Catalog    *rules.Catalog
	Matcher    *matcher.Matcher
	Workspaces *workspace.Manager
	// Orchestrator may be nil, which disables dynamic analysis.
	Orchestrator *orchestrator.Orchestrator
	// DynamicFor selects the sources that get dynamic analysis. Nil means
	// every source, as long as Orchestrator is set.
	DynamicFor     func(name string) bool
	ResultRoot     string
	ResultSuffixes []string
	Now            func() time.Time
}

// Pipeline analyses submissions. It is safe for concurrent use.
type Pipeline struct {
	opts Options
}

// New checks opts and returns a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("pipeline: no syntax registry")
	}
	if opts.Catalog == nil {
		return nil, errors.New("pipeline: no rule catalog")
	}
	if opts.Workspaces == nil {
		return nil, errors.New("pipeline: no workspace manager")
	}
	if opts.Matcher == nil {
		opts.Matcher = &matcher.Matcher{}
	}
	if opts.ResultRoot == "" {
		opts.ResultRoot = "joularjx-result"
	}
	if len(opts.ResultSuffixes) == 0 {
		opts.ResultSuffixes = resulttree.DefaultSuffixes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts}, nil
}

// Analyze runs sub through the pipeline. Analysis failures are reported on
// the returned report; an error is returned only when the submission could
// not be staged or ctx was cancelled.
func (p *Pipeline) Analyze(ctx context.Context, sub Submission) (*report.Report, error) {
	now := p.opts.Now().UTC()
	jobID := findings.NewJobID()
	ctx = logging.WithJob(ctx, jobID)
	logger := logging.FromContext(ctx)

	run, err := p.opts.Workspaces.Create(sub.Name, bytes.NewReader(sub.Content))
	if err != nil {
		metrics.RecordSubmission("error")
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	defer func() {
		if err := p.opts.Workspaces.Release(run); err != nil {
			logger.Warn().Err(err).Msg("Failed to release workspace")
		}
	}()

	rep := &report.Report{AnalyzedAt: now}
	for _, d := range p.opts.Catalog.Diagnostics() {
		rep.Diagnostics = append(rep.Diagnostics, d.String())
	}

	fs, err := p.static(ctx, sub.Name, run.Source, rep)
	if err != nil {
		metrics.RecordSubmission("error")
		return nil, err
	}
	rep.StaticAnalysis = findings.NewResult(sub.Project, fs, now)
	rep.StaticAnalysis.JobID = jobID

	severities := make([]string, len(fs))
	for i, f := range fs {
		severities[i] = f.Severity
	}
	metrics.RecordFindings(severities)

	logger.Info().
		Str("file", sub.Name).
		Int("findings", len(fs)).
		Msg("Static analysis complete")

	if sub.StaticOnly || !p.dynamicFor(sub.Name) {
		metrics.RecordSubmission("static")
		return rep, nil
	}

	if err := p.dynamic(ctx, sub.Name, run, rep); err != nil {
		return nil, err
	}
	if rep.Failed() {
		metrics.RecordSubmission("partial")
	} else {
		metrics.RecordSubmission("complete")
	}
	return rep, nil
}

func (p *Pipeline) dynamicFor(name string) bool {
	if p.opts.Orchestrator == nil {
		return false
	}
	if p.opts.DynamicFor == nil {
		return true
	}
	return p.opts.DynamicFor(name)
}

// static parses the staged source and applies the catalog. A parse failure
// becomes a single PARSER_ERROR finding.
func (p *Pipeline) static(ctx context.Context, name, path string, rep *report.Report) ([]findings.Finding, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	defer func() { metrics.RecordPhase(PhaseParse, time.Since(start)) }()

	provider, err := p.opts.Registry.For(path)
	if err != nil {
		metrics.RecordFailure(PhaseParse, "unsupported")
		return []findings.Finding{findings.ParseFailure(name, -1, fmt.Errorf("no syntax provider for %s", name))}, nil
	}
	tree, err := provider.Parse(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pipeline: %w", ctxErr)
		}
		metrics.RecordFailure(PhaseParse, "syntax")
		logger.Warn().Err(err).Str("provider", provider.Name()).Msg("Parse failed")
		// Report the submitted name, not the staged path.
		msg := errors.New(strings.ReplaceAll(err.Error(), path, name))
		return []findings.Finding{findings.ParseFailure(name, syntax.ErrorLine(err), msg)}, nil
	}
	tree.RenameFile(path, name)

	res, err := p.opts.Matcher.Apply(ctx, p.opts.Catalog.Rules(), tree)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, d := range res.Diagnostics {
		rep.Diagnostics = append(rep.Diagnostics, d.String())
	}
	rep.Trace = res.Trace
	return res.Findings, nil
}

// dynamic compiles and runs the staged source and loads its measurements.
// Phase failures are recorded on rep; only cancellation is returned.
func (p *Pipeline) dynamic(ctx context.Context, name string, run *workspace.Run, rep *report.Report) error {
	logger := logging.FromContext(ctx)

	outcome, err := p.opts.Orchestrator.Execute(ctx, orchestrator.Vars{
		Source:  run.Source,
		Workdir: run.Dir,
		Out:     run.OutDir,
		Class:   orchestrator.ClassName(name),
	})
	if outcome != nil {
		for _, pr := range []*orchestrator.PhaseResult{outcome.Compile, outcome.Run} {
			if pr != nil {
				metrics.RecordPhase(string(pr.Phase), pr.Duration)
			}
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("pipeline: %w", ctxErr)
		}
		p.fail(ctx, rep, err)
		return nil
	}

	dir := run.Path(p.opts.ResultRoot, outcome.RunID)
	start := time.Now()
	tree, err := resulttree.LoadDir(ctx, outcome.RunID, dir, p.opts.ResultSuffixes)
	metrics.RecordPhase(PhaseResultTree, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("pipeline: %w", ctxErr)
		}
		p.fail(ctx, rep, err)
		return nil
	}

	rep.DynamicAnalysis = &report.Dynamic{RunID: outcome.RunID, ResultTree: tree}
	logger.Info().
		Str("run_id", outcome.RunID).
		Int("files", tree.Leaves()).
		Msg("Dynamic analysis complete")
	return nil
}

// fail records the first dynamic failure on rep.
func (p *Pipeline) fail(ctx context.Context, rep *report.Report, err error) {
	phase, reason := classify(err)
	rep.Error = err.Error()
	rep.FailedPhase = phase
	metrics.RecordFailure(phase, reason)
	logging.FromContext(ctx).Warn().Err(err).Str("phase", phase).Msg("Dynamic analysis failed")
}

// classify maps a dynamic-analysis error to its phase and a metrics reason.
func classify(err error) (phase, reason string) {
	var phaseErr *orchestrator.PhaseError
	var conflict *resulttree.ConflictError
	switch {
	case errors.As(err, &phaseErr):
		reason = "exit"
		if phaseErr.TimedOut {
			reason = "timeout"
		} else if phaseErr.Err != nil {
			reason = "start"
		}
		return string(phaseErr.Phase), reason
	case errors.Is(err, orchestrator.ErrRunIDNotFound):
		return PhaseRunID, "missing"
	case errors.As(err, &conflict):
		return PhaseResultTree, "conflict"
	}
	return PhaseResultTree, "io"
}
