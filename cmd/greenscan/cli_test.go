package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenscan/internal/config"
	"greenscan/internal/report"
)

// isolate points every on-disk location at a temp dir and returns the
// project root.
func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("GREENSCAN_WORKSPACE_BASE", filepath.Join(base, "ws"))
	t.Setenv("GREENSCAN_STORE_PATH", filepath.Join(base, "greenscan.db"))
	t.Setenv("GREENSCAN_LOG_LEVEL", "error")
	return t.TempDir()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const loopSource = `package main

import "fmt"

func main() {
	s := ""
	for i := 0; i < 3; i++ {
		s = s + "x"
		_ = fmt.Sprintf("%d", i)
	}
	fmt.Println(s)
}
`

func TestHelpListsCommands(t *testing.T) {
	isolate(t)
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"analyze", "serve", "rules", "report", "history", "workspaces", "init", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	isolate(t)
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "greenscan 1.2.3")
}

func TestUnknownCommand(t *testing.T) {
	isolate(t)
	_, err := run(t, "no-such-command")
	assert.Error(t, err)
}

func TestInitDefaults(t *testing.T) {
	root := isolate(t)

	out, err := run(t, "init", "--defaults", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	_, err = os.Stat(config.Path(root))
	require.NoError(t, err)

	_, err = run(t, "init", "--defaults", "--root", root)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--defaults", "--force", "--root", root)
	assert.NoError(t, err)
}

func TestAnalyzeStaticOnlyAndHistory(t *testing.T) {
	root := isolate(t)
	src := filepath.Join(root, "Main.go")
	require.NoError(t, os.WriteFile(src, []byte(loopSource), 0o644))

	out, err := run(t, "analyze", src, "--root", root, "--static-only", "--save", "--commit", "abc")
	require.NoError(t, err)

	rep, err := report.Decode(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "Main", rep.StaticAnalysis.Project.Name)
	assert.Equal(t, "abc", rep.StaticAnalysis.Project.Commit)
	assert.Equal(t, 2, rep.StaticAnalysis.Summary.Total)
	assert.Nil(t, rep.DynamicAnalysis)

	hist, err := run(t, "history", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, hist, rep.JobID())

	byRule, err := run(t, "history", "--root", root, "--rule", "SPRINTF_LOOP")
	require.NoError(t, err)
	assert.Contains(t, byRule, "Main.go:9")

	md, err := run(t, "report", rep.JobID(), "--root", root, "--format", "markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "GO_STR_CONCAT_LOOP")
}

func TestAnalyzeDefaultsTypeVariableConcat(t *testing.T) {
	root := isolate(t)
	src := filepath.Join(root, "Join.go")
	require.NoError(t, os.WriteFile(src, []byte(`package main

func join(parts []string) string {
	s := ""
	for _, p := range parts {
		s = s + p
		s += p
	}
	return s
}
`), 0o644))

	require.True(t, config.Default().Parser.GoTypes)
	out, err := run(t, "analyze", src, "--root", root, "--static-only")
	require.NoError(t, err)

	rep, err := report.Decode(strings.NewReader(out))
	require.NoError(t, err)
	var lines []int
	for _, f := range rep.StaticAnalysis.Findings {
		if f.RuleID == "GO_STR_CONCAT_LOOP" {
			lines = append(lines, f.StartLine)
		}
	}
	assert.Equal(t, []int{6, 7}, lines)
}

func TestAnalyzeWritesOutFile(t *testing.T) {
	root := isolate(t)
	src := filepath.Join(root, "Main.go")
	require.NoError(t, os.WriteFile(src, []byte(loopSource), 0o644))
	dst := filepath.Join(root, "report.json")

	_, err := run(t, "analyze", src, "--root", root, "--static-only", "-o", dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "staticAnalysis")
}

func TestAnalyzeBadFormat(t *testing.T) {
	root := isolate(t)
	_, err := run(t, "analyze", "Main.go", "--root", root, "--format", "pdf")
	assert.ErrorContains(t, err, "unknown report format")
}

func TestLoadCatalogLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	_, err := loadCatalog(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "Rule catalog loaded"))
}

func TestRulesListAndCheck(t *testing.T) {
	root := isolate(t)

	out, err := run(t, "rules", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "builtin:default.yaml")
	assert.Contains(t, out, "STR_CONCAT_LOOP")
	assert.Contains(t, out, "in=ANY_LOOP")

	bad := filepath.Join(root, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
- id: OK_RULE
  severity: LOW
  match: {node: call, name: Sleep}
- id: BAD_RULE
  severity: LOW
  match: {node: LAMBDA}
`), 0o644))
	out, err = run(t, "rules", "--root", root, "--check", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "BAD_RULE")
	assert.Contains(t, out, "1 rules loaded, 1 skipped")
}

func TestRulesDisabledViaSettings(t *testing.T) {
	root := isolate(t)
	t.Setenv("GREENSCAN_RULES_DISABLED", "*_LOOP")

	out, err := run(t, "rules", "--root", root)
	require.NoError(t, err)
	assert.NotContains(t, out, "STR_CONCAT_LOOP")
}

func TestWorkspacesPruneEmpty(t *testing.T) {
	root := isolate(t)
	out, err := run(t, "workspaces", "prune", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 run directories")
}

func TestPromptModelAdvancesAndCollects(t *testing.T) {
	qs := []question{
		{Key: "server.addr", Prompt: "addr", Value: ":8080"},
		{Key: "workspace.base", Prompt: "base", Value: "/tmp/gs"},
	}
	var m tea.Model = newPromptModel(qs)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	pm := m.(promptModel)
	assert.Equal(t, 1, pm.idx)
	assert.False(t, pm.done)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	pm = m.(promptModel)
	assert.True(t, pm.done)
	assert.Equal(t, map[string]string{"server.addr": ":8080", "workspace.base": "/tmp/gs"}, pm.answers())
}

func TestInitQuestionsRoundTrip(t *testing.T) {
	defaults := config.Default()
	answers := map[string]string{}
	for _, q := range initQuestions(defaults) {
		answers[q.Key] = q.Value
	}
	assert.Equal(t, "10", answers["server.max_upload_mb"])

	answers["server.max_upload_mb"] = "25"
	cfg := config.Default()
	require.NoError(t, applyAnswers(cfg, answers))
	assert.Equal(t, 25, cfg.Server.MaxUploadMB)
	assert.Equal(t, defaults.Server.Addr, cfg.Server.Addr)
}

func TestApplyAnswers(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyAnswers(cfg, map[string]string{
		"workspace.base":        "/srv/gs",
		"toolchain.run_timeout": "90s",
	}))
	assert.Equal(t, "/srv/gs", cfg.Workspace.Base)
	assert.Equal(t, filepath.Join("/srv/gs", "greenscan.db"), cfg.Store.Path)
	assert.Equal(t, "1m30s", cfg.Toolchain.RunTimeout.String())

	assert.Error(t, applyAnswers(cfg, map[string]string{"toolchain.run_timeout": "soon"}))
	assert.Error(t, applyAnswers(cfg, map[string]string{"server.max_upload_mb": "lots"}))
	assert.Error(t, applyAnswers(cfg, map[string]string{"nope": "x"}))
}
