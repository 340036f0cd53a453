// Package resulttree folds a flat set of measurement files into a nested
// map keyed by path segment.
package resulttree

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultSuffixes are stripped from leaf keys.
var DefaultSuffixes = []string{".csv"}

// Tree maps a path segment to either a leaf (the file's raw content, a
// string) or a nested Tree.
type Tree map[string]any

// File is one measurement file, Path relative to the run root and
// slash-separated.
type File struct {
	Path    string
	Content string
}

// ConflictError reports a key that would have to be both a leaf and a
// subtree, or a duplicated leaf.
type ConflictError struct {
	RunID string
	Key   string
	Path  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("result tree %s: key %q conflicts while inserting %q", e.RunID, e.Key, e.Path)
}

// Build folds files into a tree. Files are inserted in sorted path order, so
// the result and any conflict do not depend on the order of files.
func Build(runID string, files []File, suffixes []string) (Tree, error) {
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	t := Tree{}
	for _, f := range sorted {
		if err := t.Insert(f.Path, f.Content, suffixes); err != nil {
			if ce, ok := err.(*ConflictError); ok {
				ce.RunID = runID
			}
			return nil, err
		}
	}
	return t, nil
}

// Insert adds content under the segments of path, creating intermediate
// subtrees as needed.
func (t Tree) Insert(path, content string, suffixes []string) error {
	segs := segments(path)
	if len(segs) == 0 {
		return fmt.Errorf("result tree: empty path")
	}
	last := len(segs) - 1
	segs[last] = trimSuffix(segs[last], suffixes)

	node := t
	for i, seg := range segs[:last] {
		switch v := node[seg].(type) {
		case nil:
			child := Tree{}
			node[seg] = child
			node = child
		case Tree:
			node = v
		default:
			return &ConflictError{Key: strings.Join(segs[:i+1], "/"), Path: path}
		}
	}
	if _, exists := node[segs[last]]; exists {
		return &ConflictError{Key: strings.Join(segs, "/"), Path: path}
	}
	node[segs[last]] = content
	return nil
}

func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(filepath.ToSlash(path), "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

func trimSuffix(name string, suffixes []string) string {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(name, s) && len(name) > len(s) {
			return strings.TrimSuffix(name, s)
		}
	}
	return name
}

func hasSuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Leaves returns the number of leaves in t.
func (t Tree) Leaves() int {
	n := 0
	for _, v := range t {
		if sub, ok := v.(Tree); ok {
			n += sub.Leaves()
		} else {
			n++
		}
	}
	return n
}

// UnmarshalJSON decodes nested objects as Tree so a reloaded tree keeps its
// structure.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = fromMap(raw)
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (t *Tree) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = fromMap(raw)
	return nil
}

func fromMap(raw map[string]any) Tree {
	if raw == nil {
		return nil
	}
	t := make(Tree, len(raw))
	for k, v := range raw {
		if sub, ok := v.(map[string]any); ok {
			t[k] = fromMap(sub)
			continue
		}
		t[k] = v
	}
	return t
}

// DefaultReadWorkers bounds concurrent file reads in LoadDir.
const DefaultReadWorkers = 8

// LoadDir reads every file under root whose name ends in one of suffixes and
// builds the tree. Reads run concurrently; folding happens on one goroutine.
func LoadDir(ctx context.Context, runID, root string, suffixes []string) (Tree, error) {
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && hasSuffix(d.Name(), suffixes) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("result tree: walk %s: %w", root, err)
	}

	var (
		mu    sync.Mutex
		files = make([]File, 0, len(paths))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultReadWorkers)
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("result tree: read %s: %w", p, err)
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			mu.Lock()
			files = append(files, File{Path: filepath.ToSlash(rel), Content: string(data)})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Build(runID, files, suffixes)
}
