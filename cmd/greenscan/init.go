package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"greenscan/internal/config"
)

// question is one init prompt. Value is prefilled from the defaults.
type question struct {
	Key    string
	Prompt string
	Value  string
}

func initQuestions(cfg *config.Config) []question {
	return []question{
		{Key: "rules.path", Prompt: "Rule catalog file (empty for built-in)", Value: cfg.Rules.Path},
		{Key: "toolchain.agent_jar", Prompt: "JoularJX agent jar", Value: cfg.Toolchain.AgentJar},
		{Key: "toolchain.agent_config", Prompt: "JoularJX config file", Value: cfg.Toolchain.AgentConfig},
		{Key: "toolchain.run_timeout", Prompt: "Profiling run timeout", Value: cfg.Toolchain.RunTimeout.String()},
		{Key: "workspace.base", Prompt: "Workspace directory", Value: cfg.Workspace.Base},
		{Key: "server.addr", Prompt: "HTTP listen address", Value: cfg.Server.Addr},
		{Key: "server.max_upload_mb", Prompt: "Upload size limit (MB)", Value: strconv.Itoa(cfg.Server.MaxUploadMB)},
	}
}

// applyAnswers copies prompt answers onto cfg.
func applyAnswers(cfg *config.Config, answers map[string]string) error {
	for key, raw := range answers {
		v := strings.TrimSpace(raw)
		switch key {
		case "rules.path":
			cfg.Rules.Path = v
		case "toolchain.agent_jar":
			cfg.Toolchain.AgentJar = v
		case "toolchain.agent_config":
			cfg.Toolchain.AgentConfig = v
		case "toolchain.run_timeout":
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Toolchain.RunTimeout = d
		case "workspace.base":
			cfg.Workspace.Base = v
			cfg.Store.Path = filepath.Join(v, "greenscan.db")
		case "server.addr":
			cfg.Server.Addr = v
		case "server.max_upload_mb":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Server.MaxUploadMB = n
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

func newInitCmd(g *globals) *cobra.Command {
	var (
		force    bool
		defaults bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write .greenscan/settings.yaml for this project",
		Long: `Prompt for the main settings and write them to .greenscan/settings.yaml
under --root. Errors if the file already exists unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(g.root)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if !defaults {
				answers, err := promptQuestions(initQuestions(cfg))
				if err != nil {
					return fmt.Errorf("prompt: %w", err)
				}
				if err := applyAnswers(cfg, answers); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(g.root, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "write defaults without prompting")
	return cmd
}

// promptModel is a bubbletea model that asks one question at a time.
type promptModel struct {
	questions []question
	idx       int
	inputs    []textinput.Model
	done      bool
}

func newPromptModel(questions []question) promptModel {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.Prompt
		ti.CharLimit = 512
		ti.SetValue(q.Value)
		inputs[i] = ti
	}
	m := promptModel{
		questions: questions,
		inputs:    inputs,
	}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	q := m.questions[m.idx]
	return fmt.Sprintf("%s: %s\n", q.Prompt, m.inputs[m.idx].View())
}

// answers returns the current input values keyed by question.
func (m promptModel) answers() map[string]string {
	out := make(map[string]string, len(m.questions))
	for i, q := range m.questions {
		out[q.Key] = m.inputs[i].Value()
	}
	return out
}

// promptQuestions runs the TUI and returns answers keyed by question key.
func promptQuestions(questions []question) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	p := tea.NewProgram(newPromptModel(questions))
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return nil, errors.New("prompt cancelled")
	}
	return final.answers(), nil
}
