// Package matcher evaluates rule predicates against a syntax tree.
package matcher

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"greenscan/internal/canon"
	"greenscan/internal/findings"
	"greenscan/internal/rules"
	"greenscan/internal/syntax"
)

// Diagnostic reports a rule the matcher could not evaluate.
type Diagnostic struct {
	RuleID  string `json:"ruleId" yaml:"ruleId"`
	Message string `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	return d.RuleID + ": " + d.Message
}

// TraceEvent records one accept or reject decision.
type TraceEvent struct {
	RuleID   string `json:"ruleId" yaml:"ruleId"`
	NodeID   int    `json:"nodeId" yaml:"nodeId"`
	Line     int    `json:"line" yaml:"line"`
	Accepted bool   `json:"accepted" yaml:"accepted"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Result is the outcome of applying a rule list to one tree.
type Result struct {
	Findings    []findings.Finding
	Diagnostics []Diagnostic
	Trace       []TraceEvent
}

// Matcher applies rules to trees. The zero value evaluates with one worker
// per CPU and no trace.
type Matcher struct {
	Workers int
	Trace   bool
}

type ruleOutput struct {
	findings []findings.Finding
	diag     *Diagnostic
	trace    []TraceEvent
}

// Apply evaluates every rule against tree. Findings are grouped by rule in
// the order of rs and, within a rule, follow tree pre-order; concurrent
// evaluation does not affect that order. Each (rule, node) pair yields at
// most one finding.
func (m *Matcher) Apply(ctx context.Context, rs []rules.Rule, tree *syntax.Tree) (*Result, error) {
	byKind := indexByKind(tree)
	outputs := make([]ruleOutput, len(rs))

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs[i] = m.evaluate(gctx, rs[i], tree, byKind)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	res := &Result{Findings: []findings.Finding{}}
	for _, out := range outputs {
		res.Findings = append(res.Findings, out.findings...)
		if out.diag != nil {
			res.Diagnostics = append(res.Diagnostics, *out.diag)
		}
		res.Trace = append(res.Trace, out.trace...)
	}
	return res, nil
}

// indexByKind lists node IDs per canonical kind, in pre-order.
func indexByKind(tree *syntax.Tree) map[canon.NodeKind][]int {
	idx := make(map[canon.NodeKind][]int, 3)
	for _, n := range tree.Nodes {
		if k := canon.Node(n.Kind); k.Known() {
			idx[k] = append(idx[k], n.ID)
		}
	}
	return idx
}

func (m *Matcher) evaluate(ctx context.Context, r rules.Rule, tree *syntax.Tree, byKind map[canon.NodeKind][]int) ruleOutput {
	var out ruleOutput
	if r.Match == nil {
		out.diag = &Diagnostic{RuleID: r.ID, Message: "rule has no match block"}
		return out
	}
	target := r.Match.Target()
	if !target.Known() {
		out.diag = &Diagnostic{RuleID: r.ID, Message: fmt.Sprintf("unsupported node kind %q", target)}
		log.Debug().Str("rule", r.ID).Str("node", string(target)).Msg("Skipping rule with unsupported node kind")
		return out
	}

	candidates := byKind[target]
	for i, id := range candidates {
		if i%256 == 0 && ctx.Err() != nil {
			break
		}
		n := tree.Nodes[id]
		ok, reason := accepts(r.Match, tree, n)
		if m.Trace {
			out.trace = append(out.trace, TraceEvent{RuleID: r.ID, NodeID: id, Line: n.StartLine, Accepted: ok, Reason: reason})
		}
		if ok {
			out.findings = append(out.findings, findings.New(r, n, evidence(target, n)))
		}
	}
	log.Debug().
		Str("rule", r.ID).
		Int("candidates", len(candidates)).
		Int("findings", len(out.findings)).
		Msg("Rule evaluated")
	return out
}

// accepts evaluates the predicate conjunction; reason names the first
// failing check.
func accepts(p rules.Predicate, tree *syntax.Tree, n syntax.Node) (bool, string) {
	switch m := p.(type) {
	case rules.BinaryMatch:
		if m.Operator != "" && !canon.Op(n.Operator).Equal(m.Operator) {
			return false, fmt.Sprintf("operator %q is not %s", n.Operator, m.Operator)
		}
	case rules.ConstructionMatch:
		if len(m.Types) > 0 && !anyType(n.Type, m.Types) {
			return false, fmt.Sprintf("type %q not in %v", typeLabel(n.Type), m.Types)
		}
	case rules.CallMatch:
		if m.Name != "" && n.Callee != m.Name {
			return false, fmt.Sprintf("callee %q is not %q", n.Callee, m.Name)
		}
	}

	c := p.Constraints()
	if c.ResultType != "" && !n.Type.Matches(c.ResultType) {
		return false, fmt.Sprintf("result type %q is not %q", typeLabel(n.Type), c.ResultType)
	}
	if !IsContainedInAny(tree, n.ID, c.Within) {
		return false, fmt.Sprintf("not inside any of %v", c.Within.Kinds())
	}
	return true, ""
}

func anyType(t syntax.TypeRef, want []string) bool {
	for _, w := range want {
		if t.Matches(w) {
			return true
		}
	}
	return false
}

func typeLabel(t syntax.TypeRef) string {
	if t.Qualified != "" {
		return t.Qualified
	}
	return t.Name
}

func evidence(kind canon.NodeKind, n syntax.Node) findings.Evidence {
	ast := findings.ASTNode{Type: n.Kind}
	switch kind {
	case canon.Binary:
		ast.Operator = string(canon.Op(n.Operator))
	case canon.Construction:
		ast.Constructor = n.Type.Name
	case canon.Call:
		ast.Method = n.Callee
	}
	return findings.Evidence{Snippet: n.Snippet, ASTNode: ast}
}
