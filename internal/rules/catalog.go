package rules

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed default.yaml
var defaultCatalog []byte

// DefaultSource is the Source of a catalog built from the embedded rules.
const DefaultSource = "builtin:default.yaml"

// Default parses the embedded catalog.
func Default() ([]Rule, []Diagnostic, error) {
	return Parse(defaultCatalog)
}

// Catalog is the loaded, filtered rule list shared by every analysis. It is
// safe for concurrent use; Reload swaps the whole list atomically, so an
// in-flight analysis keeps the snapshot it started with.
type Catalog struct {
	mu       sync.RWMutex
	source   string
	disabled []string
	rules    []Rule
	index    map[string]int
	diags    []Diagnostic
	loadedAt time.Time
}

// NewCatalog builds a catalog from already parsed rules.
func NewCatalog(source string, rules []Rule, diags []Diagnostic) *Catalog {
	c := &Catalog{source: source}
	c.set(rules, diags)
	return c
}

// LoadCatalog reads the catalog at path, or the embedded catalog when path
// is empty, and drops every rule whose id matches a disabled pattern.
func LoadCatalog(path string, disabled []string) (*Catalog, error) {
	c := &Catalog{source: path, disabled: disabled}
	if path == "" {
		c.source = DefaultSource
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog source. On error the previous rules stay in
// effect.
func (c *Catalog) Reload() error {
	c.mu.RLock()
	source, disabled := c.source, c.disabled
	c.mu.RUnlock()

	var (
		rules []Rule
		diags []Diagnostic
		err   error
	)
	if source == DefaultSource || source == "" {
		rules, diags, err = Default()
	} else {
		rules, diags, err = Load(source)
	}
	if err != nil {
		return err
	}

	kept, dropped := Filter(rules, disabled)
	if len(dropped) > 0 {
		log.Debug().Strs("rules", dropped).Msg("Disabled rules skipped")
	}
	for _, d := range diags {
		log.Warn().Str("source", source).Msg(d.String())
	}
	c.set(kept, diags)
	log.Info().Str("source", source).Int("rules", len(kept)).Msg("Rule catalog loaded")
	return nil
}

func (c *Catalog) set(rules []Rule, diags []Diagnostic) {
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.ID] = i
	}
	c.mu.Lock()
	c.rules = rules
	c.index = index
	c.diags = diags
	c.loadedAt = time.Now()
	c.mu.Unlock()
}

// Rules returns the catalog in evaluation order. The slice is the caller's.
func (c *Catalog) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Get resolves a rule id, including the built-in ParserErrorID.
func (c *Catalog) Get(id string) (Rule, bool) {
	if id == ParserErrorID {
		return ParserError, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i], true
}

// Len returns the number of active rules.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// Diagnostics returns the issues found by the most recent load.
func (c *Catalog) Diagnostics() []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// Source returns the file path the catalog was read from, or DefaultSource.
func (c *Catalog) Source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// LoadedAt returns the time of the most recent successful load.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *Catalog) String() string {
	return fmt.Sprintf("%s (%d rules)", c.Source(), c.Len())
}
