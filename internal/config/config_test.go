package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0o755))
	require.NoError(t, os.WriteFile(Path(root), []byte(content), 0o644))
}

func TestLoadDefaultsWithoutSettings(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.True(t, cfg.Toolchain.Enabled)
	assert.Equal(t, []string{".java"}, cfg.Toolchain.Extensions)
	assert.Equal(t, 60*time.Second, cfg.Toolchain.CompileTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Toolchain.RunTimeout)
	assert.Equal(t, "joularjx-result", cfg.Toolchain.ResultRoot)
	assert.Equal(t, []string{".csv"}, cfg.Toolchain.ResultSuffixes)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.MaxUploadMB)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Rules.Path)
	assert.True(t, filepath.IsAbs(cfg.Toolchain.AgentJar))
	assert.NoError(t, cfg.Validate())
}

func TestLoadSettingsFile(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, `
rules:
  path: catalog.yaml
  disabled: [SLEEP_*]
toolchain:
  enabled: false
  compile_timeout: 15s
  run_timeout: 2m
matcher:
  workers: 3
server:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "catalog.yaml"), cfg.Rules.Path)
	assert.Equal(t, []string{"SLEEP_*"}, cfg.Rules.Disabled)
	assert.False(t, cfg.Toolchain.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Toolchain.CompileTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Toolchain.RunTimeout)
	assert.Equal(t, 3, cfg.Matcher.Workers)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.Server.MaxUploadMB)
}

func TestLoadInvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "rules: [unclosed\n")

	_, err := Load(root)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "server:\n  addr: :7000\n")

	t.Setenv("GREENSCAN_SERVER_ADDR", ":9999")
	t.Setenv("GREENSCAN_RULES_DISABLED", "A_*, B ,")
	t.Setenv("GREENSCAN_DYNAMIC", "false")
	t.Setenv("GREENSCAN_RUN_TIMEOUT", "90s")
	t.Setenv("GREENSCAN_MATCHER_WORKERS", "2")

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"A_*", "B"}, cfg.Rules.Disabled)
	assert.False(t, cfg.Toolchain.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Toolchain.RunTimeout)
	assert.Equal(t, 2, cfg.Matcher.Workers)
}

func TestLoadEnvBadValue(t *testing.T) {
	t.Setenv("GREENSCAN_COMPILE_TIMEOUT", "soon")
	t.Setenv("GREENSCAN_MAX_UPLOAD_MB", "lots")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GREENSCAN_COMPILE_TIMEOUT")
	assert.Contains(t, err.Error(), "GREENSCAN_MAX_UPLOAD_MB")
}

func TestLoadDotEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("GREENSCAN_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GREENSCAN_LOG_LEVEL") })

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Rules.Disabled = []string{"SPRINTF_LOOP"}
	cfg.Toolchain.RunTimeout = 3 * time.Minute

	require.NoError(t, Save(root, cfg))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPRINTF_LOOP"}, loaded.Rules.Disabled)
	assert.Equal(t, 3*time.Minute, loaded.Toolchain.RunTimeout)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Toolchain.RunIDPattern = `joularjx-result/\S+/`
	cfg.Toolchain.Compile = nil
	cfg.Server.MaxUploadMB = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture group")
	assert.Contains(t, err.Error(), "toolchain.compile is empty")
	assert.Contains(t, err.Error(), "max_upload_mb")

	cfg = Default()
	cfg.Toolchain.Enabled = false
	cfg.Toolchain.Compile = nil
	assert.NoError(t, cfg.Validate())
}

func TestDynamicFor(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.DynamicFor("Main.java"))
	assert.True(t, cfg.DynamicFor("dir/Main.JAVA"))
	assert.False(t, cfg.DynamicFor("main.go"))

	cfg.Toolchain.Enabled = false
	assert.False(t, cfg.DynamicFor("Main.java"))

	var nilCfg *Config
	assert.False(t, nilCfg.DynamicFor("Main.java"))
}
