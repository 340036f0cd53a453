package syntax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandFunc runs argv and returns its standard output.
type CommandFunc func(ctx context.Context, argv []string) ([]byte, error)

// ExternalProvider delegates parsing to a command that prints a nested JSON
// tree (see DecodeJSON) on stdout. "{{file}}" in Command is replaced with the
// path being parsed; if absent the path is appended.
type ExternalProvider struct {
	Command    []string
	Extensions []string
	Timeout    time.Duration

	// Run executes the command; nil uses os/exec.
	Run CommandFunc
}

func (e *ExternalProvider) Name() string {
	if len(e.Command) == 0 {
		return "external"
	}
	return "external:" + filepath.Base(e.Command[0])
}

func (e *ExternalProvider) Supports(path string) bool {
	if len(e.Command) == 0 {
		return false
	}
	ext := filepath.Ext(path)
	for _, want := range e.Extensions {
		if strings.EqualFold(ext, want) || strings.EqualFold(ext, "."+want) {
			return true
		}
	}
	return false
}

func (e *ExternalProvider) Parse(ctx context.Context, path string) (*Tree, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("external: no parser command configured")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(e.Command)+1)
	substituted := false
	for _, a := range e.Command {
		if strings.Contains(a, "{{file}}") {
			substituted = true
			a = strings.ReplaceAll(a, "{{file}}", path)
		}
		argv = append(argv, a)
	}
	if !substituted {
		argv = append(argv, path)
	}

	run := e.Run
	if run == nil {
		run = execCommand
	}
	out, err := run(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("external: %s: %w", argv[0], err)
	}
	t, err := DecodeJSON(bytes.NewReader(out), path)
	if err != nil {
		return nil, fmt.Errorf("external: %w", err)
	}
	return t, nil
}

func execCommand(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
