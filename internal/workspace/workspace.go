// Package workspace manages private per-submission run directories.
//
// Directory layout:
//
//	<base>/runs/<ulid>/
//	    src/<file>    # the submitted source
//	    out/          # compiler output
//	    ...           # anything the instrumented run writes (its cwd)
//
// Every submission gets its own directory, so concurrent runs of programs
// with the same name never share compiled classes or measurement output.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Manager creates and removes run directories under Base.
type Manager struct {
	Base string
	// Keep leaves run directories in place after Release.
	Keep bool
}

// Run is one submission's private directory.
type Run struct {
	ID     string
	Dir    string
	SrcDir string
	OutDir string
	// Source is the path of the submitted file inside SrcDir.
	Source string
}

// Info describes an existing run directory.
type Info struct {
	ID        string    `json:"id" yaml:"id"`
	Dir       string    `json:"dir" yaml:"dir"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// DefaultBase returns ~/.greenscan.
func DefaultBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".greenscan"), nil
}

func (m *Manager) runsDir() string {
	return filepath.Join(m.Base, "runs")
}

// Create makes a fresh run directory and writes src into it as name. Only
// the base name of name is used.
func (m *Manager) Create(name string, src io.Reader) (*Run, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return nil, fmt.Errorf("workspace: invalid file name %q", name)
	}

	id := ulid.Make().String()
	dir := filepath.Join(m.runsDir(), id)
	r := &Run{
		ID:     id,
		Dir:    dir,
		SrcDir: filepath.Join(dir, "src"),
		OutDir: filepath.Join(dir, "out"),
	}
	r.Source = filepath.Join(r.SrcDir, base)

	for _, d := range []string{r.SrcDir, r.OutDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", d, err)
		}
	}
	if err := writeFile(r.Source, src); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("workspace: write source: %w", err)
	}
	log.Debug().Str("run", id).Str("dir", dir).Msg("Workspace created")
	return r, nil
}

// Path joins rel onto the run directory.
func (r *Run) Path(rel ...string) string {
	return filepath.Join(append([]string{r.Dir}, rel...)...)
}

// Release removes the run directory unless the manager keeps runs.
func (m *Manager) Release(r *Run) error {
	if r == nil || m.Keep {
		return nil
	}
	if err := os.RemoveAll(r.Dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", r.ID, err)
	}
	return nil
}

// Remove deletes the run directory with the given id.
func (m *Manager) Remove(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("workspace: invalid run id %q", id)
	}
	dir := filepath.Join(m.runsDir(), id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("workspace: run %q not found", id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", id, err)
	}
	return nil
}

// List returns existing runs, oldest first. Directories whose name is not a
// run id are ignored.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.runsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: read runs dir: %w", err)
	}
	var runs []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := ulid.ParseStrict(e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, Info{
			ID:        e.Name(),
			Dir:       filepath.Join(m.runsDir(), e.Name()),
			CreatedAt: ulid.Time(id.Time()),
		})
	}
	sort.Slice(runs, func(i, j int) bool { return strings.Compare(runs[i].ID, runs[j].ID) < 0 })
	return runs, nil
}

// Prune removes runs created before now minus olderThan and returns their
// ids.
func (m *Manager) Prune(olderThan time.Duration, now time.Time) ([]string, error) {
	runs, err := m.List()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-olderThan)
	var removed []string
	for _, r := range runs {
		if !r.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(r.Dir); err != nil {
			return removed, fmt.Errorf("workspace: prune %s: %w", r.ID, err)
		}
		removed = append(removed, r.ID)
	}
	return removed, nil
}

func writeFile(dst string, src io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Close()
}
