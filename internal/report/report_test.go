package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"greenscan/internal/findings"
	"greenscan/internal/report"
	"greenscan/internal/resulttree"
)

func sample() *report.Report {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := []findings.Finding{{
		ID:          "F-1",
		RuleID:      "STR_CONCAT_LOOP",
		Severity:    "HIGH",
		EnergyScore: 8,
		Message:     "String concatenation inside a loop",
		File:        "Main.java",
		StartLine:   5,
		EndLine:     5,
		Suggestion:  "Use StringBuilder",
		Evidence: findings.Evidence{
			Snippet: "s = s + i",
			ASTNode: findings.ASTNode{Type: "CtBinaryOperator", Operator: "PLUS"},
		},
	}}
	static := findings.NewResult(findings.Project{Name: "demo", Commit: "abc123"}, fs, at)
	return &report.Report{
		StaticAnalysis: static,
		DynamicAnalysis: &report.Dynamic{
			RunID: "4312-1700000000",
			ResultTree: resulttree.Tree{
				"app": resulttree.Tree{"total": "Main.main,1.5\n"},
			},
		},
		AnalyzedAt: at,
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]report.Format{
		"":         report.JSON,
		"JSON":     report.JSON,
		"yml":      report.YAML,
		"yaml":     report.YAML,
		"md":       report.Markdown,
		"markdown": report.Markdown,
	} {
		got, err := report.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := report.ParseFormat("pdf")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sample(), report.JSON))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Contains(t, raw, "staticAnalysis")
	assert.Contains(t, raw, "dynamicAnalysis")
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "failedPhase")

	dyn := raw["dynamicAnalysis"].(map[string]any)
	assert.Equal(t, "4312-1700000000", dyn["runId"])
	tree := dyn["resultTree"].(map[string]any)
	assert.Equal(t, "Main.main,1.5\n", tree["app"].(map[string]any)["total"])

	back, err := report.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "STR_CONCAT_LOOP", back.StaticAnalysis.Findings[0].RuleID)
}

func TestWriteJSONFailure(t *testing.T) {
	r := sample()
	r.DynamicAnalysis = nil
	r.Error = "compile phase failed with exit code 1"
	r.FailedPhase = "compile"

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, r, report.JSON))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.NotContains(t, raw, "dynamicAnalysis")
	assert.Equal(t, "compile", raw["failedPhase"])
	assert.True(t, r.Failed())
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sample(), report.YAML))

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &raw))
	static := raw["staticAnalysis"].(map[string]any)
	assert.Equal(t, "demo", static["project"].(map[string]any)["name"])
}

func TestWriteMarkdown(t *testing.T) {
	r := sample()
	r.Diagnostics = []string{"rule #3 (LAMBDA): unsupported node kind"}

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, r, report.Markdown))

	meta, body, err := report.ReadMeta(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, r.JobID(), meta.JobID)
	assert.Equal(t, "demo", meta.Project)
	assert.Equal(t, 1, meta.Summary.High)
	assert.Equal(t, 8.0, meta.EnergyScore)
	assert.Equal(t, "4312-1700000000", meta.RunID)

	text := string(body)
	assert.True(t, strings.HasPrefix(text, "# Energy report job-"))
	assert.Contains(t, text, "### HIGH `STR_CONCAT_LOOP` Main.java:5")
	assert.Contains(t, text, "Suggestion: Use StringBuilder")
	assert.Contains(t, text, "Run `4312-1700000000`, 1 measurement files.")
	assert.Contains(t, text, "## Diagnostics")
	assert.NotContains(t, text, "## Error")
}

func TestReadMetaErrors(t *testing.T) {
	_, _, err := report.ReadMeta([]byte("no delimiter"))
	assert.Error(t, err)
	_, _, err = report.ReadMeta([]byte("---\njobId: x\n"))
	assert.Error(t, err)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, report.Write(&bytes.Buffer{}, sample(), report.Format("pdf")))
}

func TestDecodeKeepsNestedResultTree(t *testing.T) {
	r := sample()
	r.DynamicAnalysis.ResultTree = resulttree.Tree{
		"all": resulttree.Tree{"runtime": resulttree.Tree{"a": "1", "b": "2"}},
		"app": resulttree.Tree{"total": resulttree.Tree{"c": "3"}},
	}
	require.Equal(t, 3, r.DynamicAnalysis.ResultTree.Leaves())

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, r, report.JSON))
	back, err := report.Decode(&buf)
	require.NoError(t, err)

	tree := back.DynamicAnalysis.ResultTree
	assert.Equal(t, r.DynamicAnalysis.ResultTree, tree)
	assert.Equal(t, 3, tree.Leaves())
	_, ok := tree["all"].(resulttree.Tree)
	assert.True(t, ok)

	buf.Reset()
	require.NoError(t, report.Write(&buf, back, report.Markdown))
	assert.Contains(t, buf.String(), "Run `4312-1700000000`, 3 measurement files.")
}

func TestYAMLKeepsNestedResultTree(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sample(), report.YAML))

	var back struct {
		DynamicAnalysis report.Dynamic `yaml:"dynamicAnalysis"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	app, ok := back.DynamicAnalysis.ResultTree["app"].(resulttree.Tree)
	require.True(t, ok)
	assert.Equal(t, "Main.main,1.5\n", app["total"])
}
