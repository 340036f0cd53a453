// Package report defines the merged static + dynamic analysis response and
// renders it as JSON, YAML or Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"greenscan/internal/findings"
	"greenscan/internal/matcher"
	"greenscan/internal/resulttree"
)

// Report is the response for one submission. StaticAnalysis is always
// present; DynamicAnalysis only when every dynamic phase succeeded.
type Report struct {
	StaticAnalysis  *findings.AnalysisResult `json:"staticAnalysis" yaml:"staticAnalysis"`
	DynamicAnalysis *Dynamic                 `json:"dynamicAnalysis,omitempty" yaml:"dynamicAnalysis,omitempty"`
	Error           string                   `json:"error,omitempty" yaml:"error,omitempty"`
	FailedPhase     string                   `json:"failedPhase,omitempty" yaml:"failedPhase,omitempty"`
	Diagnostics     []string                 `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Trace           []matcher.TraceEvent     `json:"trace,omitempty" yaml:"trace,omitempty"`
	AnalyzedAt      time.Time                `json:"analyzedAt" yaml:"analyzedAt"`
}

// Dynamic is the profiling half of a report.
type Dynamic struct {
	RunID      string          `json:"runId" yaml:"runId"`
	ResultTree resulttree.Tree `json:"resultTree" yaml:"resultTree"`
}

// JobID returns the static job id, or "" when the report is empty.
func (r *Report) JobID() string {
	if r == nil || r.StaticAnalysis == nil {
		return ""
	}
	return r.StaticAnalysis.JobID
}

// Failed reports whether any phase failed.
func (r *Report) Failed() bool {
	return r != nil && r.Error != ""
}

// Format selects an output encoding.
type Format string

const (
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
)

// ParseFormat accepts json, yaml/yml and markdown/md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json, yaml or markdown)", s)
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		return enc.Close()
	case Markdown:
		data, err := renderMarkdown(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("report: unsupported format %q", format)
}

// Decode reads a JSON report.
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("report: decode: %w", err)
	}
	return &rep, nil
}
