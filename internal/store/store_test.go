package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenscan/internal/findings"
	"greenscan/internal/report"
	"greenscan/internal/resulttree"
	"greenscan/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "nested", "greenscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newReport(project string, at time.Time, ruleIDs ...string) *report.Report {
	var fs []findings.Finding
	for i, id := range ruleIDs {
		fs = append(fs, findings.Finding{
			ID:          "F-" + project + "-" + id,
			RuleID:      id,
			Severity:    "HIGH",
			EnergyScore: 8,
			File:        "Main.java",
			StartLine:   i + 1,
			EndLine:     i + 1,
			Message:     id + " message",
		})
	}
	return &report.Report{
		StaticAnalysis: findings.NewResult(findings.Project{Name: project, Commit: "c1"}, fs, at),
		AnalyzedAt:     at,
	}
}

func TestSaveAndLoadReport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	r := newReport("demo", at, "STR_CONCAT_LOOP")
	r.DynamicAnalysis = &report.Dynamic{RunID: "42-1", ResultTree: resulttree.Tree{"total": "x"}}
	require.NoError(t, s.SaveReport(ctx, r))

	got, err := s.LoadReport(ctx, r.JobID())
	require.NoError(t, err)
	assert.Equal(t, r.JobID(), got.JobID())
	assert.Equal(t, "demo", got.StaticAnalysis.Project.Name)
	require.Len(t, got.StaticAnalysis.Findings, 1)
	assert.Equal(t, "42-1", got.DynamicAnalysis.RunID)
	assert.Equal(t, "x", got.DynamicAnalysis.ResultTree["total"])
	assert.True(t, at.Equal(got.AnalyzedAt))

	// Saving again replaces rather than duplicates.
	require.NoError(t, s.SaveReport(ctx, r))
	recs, err := s.FindingsByRule(ctx, "STR_CONCAT_LOOP")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestLoadReportNestedResultTree(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := newReport("demo", time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	tree := resulttree.Tree{
		"all": resulttree.Tree{"runtime": resulttree.Tree{"a": "1", "b": "2"}},
		"app": resulttree.Tree{"total": resulttree.Tree{"c": "3"}},
	}
	r.DynamicAnalysis = &report.Dynamic{RunID: "42-2", ResultTree: tree}
	require.NoError(t, s.SaveReport(ctx, r))

	got, err := s.LoadReport(ctx, r.JobID())
	require.NoError(t, err)
	assert.Equal(t, tree, got.DynamicAnalysis.ResultTree)
	assert.Equal(t, 3, got.DynamicAnalysis.ResultTree.Leaves())
}

func TestLoadReportNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadReport(context.Background(), "job-missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSaveReportRequiresJobID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.SaveReport(context.Background(), &report.Report{}))
}

func TestListReports(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	older := newReport("old", base, "A")
	newer := newReport("new", base.Add(500*time.Millisecond), "A", "B")
	newer.FailedPhase = "run"
	require.NoError(t, s.SaveReport(ctx, older))
	require.NoError(t, s.SaveReport(ctx, newer))

	list, err := s.ListReports(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.JobID(), list[0].JobID)
	assert.Equal(t, 2, list[0].Total)
	assert.Equal(t, 2, list[0].High)
	assert.Equal(t, "run", list[0].FailedPhase)
	assert.Equal(t, older.JobID(), list[1].JobID)

	page, err := s.ListReports(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.JobID(), page[0].JobID)
}

func TestFindingsByRuleAndPrune(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	older := newReport("old", base, "A", "B")
	newer := newReport("new", base.Add(time.Hour), "A")
	require.NoError(t, s.SaveReport(ctx, older))
	require.NoError(t, s.SaveReport(ctx, newer))

	recs, err := s.FindingsByRule(ctx, "A")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, newer.JobID(), recs[0].JobID)
	assert.Equal(t, "A message", recs[0].Message)

	n, err := s.Prune(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err = s.FindingsByRule(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
