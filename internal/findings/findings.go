// Package findings defines the static-analysis result types, the
// severity-to-energy score, and the per-severity summary.
package findings

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"greenscan/internal/rules"
	"greenscan/internal/syntax"
)

// Finding is one rule match. Findings are created by New or ParseFailure and
// never modified afterwards.
type Finding struct {
	ID          string   `json:"id" yaml:"id"`
	RuleID      string   `json:"ruleId" yaml:"ruleId"`
	Severity    string   `json:"severity" yaml:"severity"`
	EnergyScore float64  `json:"energyScore" yaml:"energyScore"`
	Message     string   `json:"message" yaml:"message"`
	File        string   `json:"file" yaml:"file"`
	StartLine   int      `json:"startLine" yaml:"startLine"`
	EndLine     int      `json:"endLine" yaml:"endLine"`
	Suggestion  string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Evidence    Evidence `json:"evidence" yaml:"evidence"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Evidence is the source context attached to a finding.
type Evidence struct {
	Snippet string  `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	ASTNode ASTNode `json:"astNode" yaml:"astNode"`
}

// ASTNode describes the matched node. Only the field relevant to the node
// kind is set.
type ASTNode struct {
	Type        string `json:"type" yaml:"type"`
	Operator    string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Constructor string `json:"constructor,omitempty" yaml:"constructor,omitempty"`
	Method      string `json:"method,omitempty" yaml:"method,omitempty"`
}

// Score maps a severity to its energy score: HIGH 8.0, MEDIUM 5.0, LOW 2.5,
// anything else 1.0. Case is ignored.
func Score(severity string) float64 {
	switch strings.ToUpper(strings.TrimSpace(severity)) {
	case string(rules.High):
		return 8.0
	case string(rules.Medium):
		return 5.0
	case string(rules.Low):
		return 2.5
	}
	return 1.0
}

// New creates the finding for rule r matching node n.
func New(r rules.Rule, n syntax.Node, ev Evidence) Finding {
	file := n.File
	if file == "" {
		file = "unknown"
	}
	end := n.EndLine
	if end < n.StartLine {
		end = n.StartLine
	}
	return Finding{
		ID:          "F-" + uuid.NewString(),
		RuleID:      r.ID,
		Severity:    string(r.Severity),
		EnergyScore: Score(string(r.Severity)),
		Message:     r.Description,
		File:        file,
		StartLine:   n.StartLine,
		EndLine:     end,
		Suggestion:  r.Suggestion,
		Evidence:    ev,
		Tags:        append([]string(nil), r.Tags...),
	}
}

// ParseFailure creates the single finding reported when file could not be
// parsed. line is -1 when the parser gave no position.
func ParseFailure(file string, line int, err error) Finding {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return New(rules.ParserError, syntax.Node{File: file, StartLine: line, EndLine: line}, Evidence{
		Snippet: msg,
		ASTNode: ASTNode{Type: "ParseError"},
	})
}

// Summary counts findings per known severity. Total includes findings of
// any severity.
type Summary struct {
	Total  int `json:"total" yaml:"total"`
	High   int `json:"high" yaml:"high"`
	Medium int `json:"medium" yaml:"medium"`
	Low    int `json:"low" yaml:"low"`
}

// Summarize counts fs by case-insensitive severity.
func Summarize(fs []Finding) Summary {
	s := Summary{Total: len(fs)}
	for _, f := range fs {
		switch strings.ToUpper(strings.TrimSpace(f.Severity)) {
		case string(rules.High):
			s.High++
		case string(rules.Medium):
			s.Medium++
		case string(rules.Low):
			s.Low++
		}
	}
	return s
}

// TotalScore sums the energy scores of fs.
func TotalScore(fs []Finding) float64 {
	var total float64
	for _, f := range fs {
		total += f.EnergyScore
	}
	return total
}

// Project identifies the submitted program.
type Project struct {
	Name   string `json:"name" yaml:"name"`
	Commit string `json:"commit" yaml:"commit"`
}

// AnalysisResult is the static half of a report.
type AnalysisResult struct {
	JobID      string    `json:"jobId" yaml:"jobId"`
	Project    Project   `json:"project" yaml:"project"`
	AnalyzedAt time.Time `json:"analyzedAt" yaml:"analyzedAt"`
	Findings   []Finding `json:"findings" yaml:"findings"`
	Summary    Summary   `json:"summary" yaml:"summary"`
}

// NewResult assigns a job id and timestamp and computes the summary.
func NewResult(project Project, fs []Finding, now time.Time) *AnalysisResult {
	if fs == nil {
		fs = []Finding{}
	}
	return &AnalysisResult{
		JobID:      NewJobID(),
		Project:    project,
		AnalyzedAt: now.UTC(),
		Findings:   fs,
		Summary:    Summarize(fs),
	}
}

// NewJobID returns a fresh "job-<uuid>" identifier.
func NewJobID() string {
	return "job-" + uuid.NewString()
}
