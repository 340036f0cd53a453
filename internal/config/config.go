// Package config loads greenscan settings from .greenscan/settings.yaml,
// an optional .env file and GREENSCAN_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Dir is the settings directory relative to the project root.
const Dir = ".greenscan"

// Config is the full settings tree.
type Config struct {
	Rules     Rules     `yaml:"rules"`
	Toolchain Toolchain `yaml:"toolchain"`
	Parser    Parser    `yaml:"parser"`
	Workspace Workspace `yaml:"workspace"`
	Matcher   Matcher   `yaml:"matcher"`
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	Logging   Logging   `yaml:"logging"`
}

// Rules selects the catalog. An empty Path uses the built-in catalog.
// Disabled entries are wildcard patterns over rule ids.
type Rules struct {
	Path     string   `yaml:"path,omitempty"`
	Disabled []string `yaml:"disabled,omitempty"`
	Watch    bool     `yaml:"watch"`
}

// Toolchain describes dynamic analysis. It only runs for sources whose
// extension is listed in Extensions.
type Toolchain struct {
	Enabled        bool          `yaml:"enabled"`
	Extensions     []string      `yaml:"extensions"`
	Compile        []string      `yaml:"compile"`
	Run            []string      `yaml:"run"`
	AgentJar       string        `yaml:"agent_jar"`
	AgentConfig    string        `yaml:"agent_config"`
	CompileTimeout time.Duration `yaml:"compile_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	RunIDPattern   string        `yaml:"run_id_pattern"`
	ResultRoot     string        `yaml:"result_root"`
	ResultSuffixes []string      `yaml:"result_suffixes"`
}

// Parser configures the external syntax-tree command used for non-Go
// sources, and whether Go sources are type-checked.
type Parser struct {
	Command    []string      `yaml:"command,omitempty"`
	Extensions []string      `yaml:"extensions,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	GoTypes    bool          `yaml:"go_types"`
}

type Workspace struct {
	Base string `yaml:"base"`
	Keep bool   `yaml:"keep"`
}

type Matcher struct {
	Workers int  `yaml:"workers"`
	Trace   bool `yaml:"trace"`
}

type Server struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	File   string `yaml:"file,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	base := ".greenscan-data"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".greenscan")
	}
	return &Config{
		Toolchain: Toolchain{
			Enabled:    true,
			Extensions: []string{".java"},
			Compile:    []string{"javac", "-d", "{{out}}", "{{source}}"},
			Run: []string{
				"java", "-XX:-Inline", "-Xint",
				"-javaagent:{{agent}}",
				"-Djoularjx.config={{agentConfig}}",
				"-cp", "{{out}}",
				"{{class}}",
			},
			AgentJar:       "joularjx/joularjx-3.0.1.jar",
			AgentConfig:    "joularjx/config.properties",
			CompileTimeout: 60 * time.Second,
			RunTimeout:     5 * time.Minute,
			RunIDPattern:   `joularjx-result/(\S+)/`,
			ResultRoot:     "joularjx-result",
			ResultSuffixes: []string{".csv"},
		},
		Parser: Parser{
			Extensions: []string{".java"},
			Timeout:    30 * time.Second,
			GoTypes:    true,
		},
		Workspace: Workspace{Base: base},
		Server:    Server{Addr: ":8080", MaxUploadMB: 10},
		Store:     Store{Path: filepath.Join(base, "greenscan.db")},
		Logging:   Logging{Format: "auto", Level: "info"},
	}
}

// Path returns the settings file location under root.
func Path(root string) string {
	return filepath.Join(root, Dir, "settings.yaml")
}

// Load reads settings for the project at root. A missing settings file or
// .env is not an error. Relative agent and catalog paths are resolved
// against root.
func Load(root string) (*Config, error) {
	cfg := Default()

	path := Path(root)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("No settings file; using defaults")
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", path, err)
		}
	}

	envPath := filepath.Join(root, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", envPath).Msg("Failed to load .env file")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Rules.Path = resolve(root, cfg.Rules.Path)
	cfg.Toolchain.AgentJar = resolve(root, cfg.Toolchain.AgentJar)
	cfg.Toolchain.AgentConfig = resolve(root, cfg.Toolchain.AgentConfig)
	return cfg, nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(filepath.Join(root, p))
	if err != nil {
		return filepath.Join(root, p)
	}
	return abs
}

// Save writes cfg to the settings file under root, creating the directory.
func Save(root string, cfg *Config) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate reports settings that would make analyses fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Toolchain.Enabled {
		if len(c.Toolchain.Compile) == 0 {
			errs = append(errs, errors.New("toolchain.compile is empty"))
		}
		if len(c.Toolchain.Run) == 0 {
			errs = append(errs, errors.New("toolchain.run is empty"))
		}
		if c.Toolchain.CompileTimeout <= 0 {
			errs = append(errs, errors.New("toolchain.compile_timeout must be positive"))
		}
		if c.Toolchain.RunTimeout <= 0 {
			errs = append(errs, errors.New("toolchain.run_timeout must be positive"))
		}
		if re, err := regexp.Compile(c.Toolchain.RunIDPattern); err != nil {
			errs = append(errs, fmt.Errorf("toolchain.run_id_pattern: %w", err))
		} else if re.NumSubexp() < 1 {
			errs = append(errs, errors.New("toolchain.run_id_pattern needs a capture group"))
		}
	}
	if len(c.Parser.Command) > 0 && c.Parser.Timeout <= 0 {
		errs = append(errs, errors.New("parser.timeout must be positive"))
	}
	if c.Matcher.Workers < 0 {
		errs = append(errs, errors.New("matcher.workers must not be negative"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if c.Workspace.Base == "" {
		errs = append(errs, errors.New("workspace.base is empty"))
	}
	return errors.Join(errs...)
}

// DynamicFor reports whether dynamic analysis applies to a source file.
// Safe on a nil receiver.
func (c *Config) DynamicFor(path string) bool {
	if c == nil || !c.Toolchain.Enabled {
		return false
	}
	ext := filepath.Ext(path)
	for _, e := range c.Toolchain.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// applyEnv overrides settings from GREENSCAN_* variables.
func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("GREENSCAN_" + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv("GREENSCAN_" + key); ok {
			*dst = splitList(v)
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("GREENSCAN_" + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("GREENSCAN_%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv("GREENSCAN_" + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("GREENSCAN_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv("GREENSCAN_" + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("GREENSCAN_%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("RULES_PATH", &c.Rules.Path)
	list("RULES_DISABLED", &c.Rules.Disabled)
	boolean("RULES_WATCH", &c.Rules.Watch)

	boolean("DYNAMIC", &c.Toolchain.Enabled)
	str("AGENT_JAR", &c.Toolchain.AgentJar)
	str("AGENT_CONFIG", &c.Toolchain.AgentConfig)
	duration("COMPILE_TIMEOUT", &c.Toolchain.CompileTimeout)
	duration("RUN_TIMEOUT", &c.Toolchain.RunTimeout)

	boolean("GO_TYPES", &c.Parser.GoTypes)

	str("WORKSPACE_BASE", &c.Workspace.Base)
	boolean("WORKSPACE_KEEP", &c.Workspace.Keep)

	integer("MATCHER_WORKERS", &c.Matcher.Workers)
	boolean("MATCHER_TRACE", &c.Matcher.Trace)

	str("SERVER_ADDR", &c.Server.Addr)
	integer("MAX_UPLOAD_MB", &c.Server.MaxUploadMB)

	str("STORE_PATH", &c.Store.Path)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
