package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"greenscan/internal/findings"
)

// Meta is the YAML frontmatter of a Markdown report.
type Meta struct {
	JobID       string           `yaml:"jobId"`
	Project     string           `yaml:"project,omitempty"`
	Commit      string           `yaml:"commit,omitempty"`
	AnalyzedAt  time.Time        `yaml:"analyzedAt"`
	Summary     findings.Summary `yaml:"summary"`
	EnergyScore float64          `yaml:"energyScore"`
	RunID       string           `yaml:"runId,omitempty"`
	FailedPhase string           `yaml:"failedPhase,omitempty"`
}

func metaOf(r *Report) Meta {
	m := Meta{
		AnalyzedAt:  r.AnalyzedAt,
		FailedPhase: r.FailedPhase,
	}
	if s := r.StaticAnalysis; s != nil {
		m.JobID = s.JobID
		m.Project = s.Project.Name
		m.Commit = s.Project.Commit
		m.Summary = s.Summary
		m.EnergyScore = findings.TotalScore(s.Findings)
	}
	if r.DynamicAnalysis != nil {
		m.RunID = r.DynamicAnalysis.RunID
	}
	return m
}

func renderMarkdown(r *Report) ([]byte, error) {
	var b strings.Builder
	meta := metaOf(r)

	fmt.Fprintf(&b, "# Energy report %s\n\n", meta.JobID)
	if meta.Project != "" {
		fmt.Fprintf(&b, "Project **%s**", meta.Project)
		if meta.Commit != "" {
			fmt.Fprintf(&b, " at `%s`", meta.Commit)
		}
		b.WriteString("\n\n")
	}

	if r.Error != "" {
		b.WriteString("## Error\n\n")
		if r.FailedPhase != "" {
			fmt.Fprintf(&b, "Failed phase: `%s`\n\n", r.FailedPhase)
		}
		fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(r.Error, "\n"))
	}

	b.WriteString("## Static analysis\n\n")
	b.WriteString("| Severity | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| HIGH | %d |\n| MEDIUM | %d |\n| LOW | %d |\n| Total | %d |\n\n",
		meta.Summary.High, meta.Summary.Medium, meta.Summary.Low, meta.Summary.Total)

	if r.StaticAnalysis != nil {
		for _, f := range r.StaticAnalysis.Findings {
			fmt.Fprintf(&b, "### %s `%s` %s:%d\n\n", f.Severity, f.RuleID, f.File, f.StartLine)
			if f.Message != "" {
				fmt.Fprintf(&b, "%s\n\n", f.Message)
			}
			if f.Evidence.Snippet != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", f.Evidence.Snippet)
			}
			if f.Suggestion != "" {
				fmt.Fprintf(&b, "Suggestion: %s\n\n", f.Suggestion)
			}
		}
	}

	if d := r.DynamicAnalysis; d != nil {
		b.WriteString("## Dynamic analysis\n\n")
		fmt.Fprintf(&b, "Run `%s`, %d measurement files.\n\n", d.RunID, d.ResultTree.Leaves())
		keys := make([]string, 0, len(d.ResultTree))
		for k := range d.ResultTree {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s\n", k)
		}
		if len(keys) > 0 {
			b.WriteString("\n")
		}
	}

	if len(r.Diagnostics) > 0 {
		b.WriteString("## Diagnostics\n\n")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}

	return writeFrontmatter(meta, b.String())
}

// writeFrontmatter marshals v as YAML between --- delimiters followed by body.
func writeFrontmatter(v any, body string) ([]byte, error) {
	fm, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("report: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// ReadMeta splits a Markdown report into its frontmatter and body. The
// document must begin with "---\n".
func ReadMeta(data []byte) (Meta, []byte, error) {
	const delim = "---\n"
	var m Meta
	if !bytes.HasPrefix(data, []byte(delim)) {
		return m, nil, fmt.Errorf("report: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return m, nil, fmt.Errorf("report: missing closing --- delimiter")
	}
	if err := yaml.Unmarshal(rest[:idx], &m); err != nil {
		return m, nil, fmt.Errorf("report: unmarshal frontmatter: %w", err)
	}
	body := rest[idx+4:]
	if len(body) > 0 && body[0] == '\n' {
		body = body[1:]
	}
	return m, body, nil
}
