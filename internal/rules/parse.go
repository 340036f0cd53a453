package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"greenscan/internal/canon"
)

// Diagnostic reports a catalog entry that was skipped while loading.
type Diagnostic struct {
	Index   int    `json:"index"`
	RuleID  string `json:"ruleId,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule #%d", d.Index)
	if d.RuleID != "" {
		fmt.Fprintf(&b, " (%s)", d.RuleID)
	}
	if d.Line > 0 {
		fmt.Fprintf(&b, " line %d", d.Line)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Parse decodes a catalog document in YAML or JSON. Malformed entries are
// skipped and reported as diagnostics; an error is returned only when the
// document itself cannot be read as a list of rules.
func Parse(data []byte) ([]Rule, []Diagnostic, error) {
	if isJSON(data) {
		return parseJSON(data)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("rules: parse: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil, nil
	}
	list, err := ruleList(&doc)
	if err != nil {
		return nil, nil, err
	}

	c := newCollector()
	for i, item := range list.Content {
		var r Rule
		if err := item.Decode(&r); err != nil {
			c.skip(Diagnostic{Index: i, Line: item.Line, Message: err.Error()})
			continue
		}
		c.add(i, item.Line, r)
	}
	return c.rules, c.diags, nil
}

// parseJSON handles the JSON form: an array of rules or {"rules": [...]}.
func parseJSON(data []byte) ([]Rule, []Diagnostic, error) {
	var items []json.RawMessage
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var wrapped struct {
			Rules []json.RawMessage `json:"rules"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, nil, fmt.Errorf("rules: parse: %w", err)
		}
		if wrapped.Rules == nil {
			return nil, nil, errors.New("rules: document is not a list of rules")
		}
		items = wrapped.Rules
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("rules: parse: %w", err)
	}

	c := newCollector()
	for i, raw := range items {
		var r Rule
		if err := json.Unmarshal(raw, &r); err != nil {
			c.skip(Diagnostic{Index: i, Message: err.Error()})
			continue
		}
		c.add(i, 0, r)
	}
	return c.rules, c.diags, nil
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{')
}

// collector validates decoded rules, keeping the first of any duplicate id.
type collector struct {
	rules []Rule
	diags []Diagnostic
	seen  map[string]int
}

func newCollector() *collector {
	return &collector{seen: make(map[string]int)}
}

func (c *collector) skip(d Diagnostic) {
	c.diags = append(c.diags, d)
}

func (c *collector) add(index, line int, r Rule) {
	r.ID = strings.TrimSpace(r.ID)
	d := Diagnostic{Index: index, RuleID: r.ID, Line: line}
	switch {
	case r.ID == "":
		d.Message = "missing id"
	case strings.EqualFold(r.ID, ParserErrorID):
		d.Message = "id is reserved"
	case strings.TrimSpace(r.Spec.Node) == "":
		d.Message = "missing match.node"
	case !canon.Node(r.Spec.Node).Known():
		d.Message = fmt.Sprintf("unsupported node kind %q", r.Spec.Node)
	}
	if first, dup := c.seen[r.ID]; dup && d.Message == "" {
		d.Message = fmt.Sprintf("duplicate id (first defined by rule #%d)", first)
	}
	if d.Message != "" {
		c.skip(d)
		return
	}
	c.seen[r.ID] = index

	r.Severity = r.Severity.Normalize()
	r.Match = Compile(r.Spec)
	c.rules = append(c.rules, r)
}

// ruleList finds the sequence of rules: the document itself, or the value of
// a top-level "rules" key.
func ruleList(doc *yaml.Node) (*yaml.Node, error) {
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	switch n.Kind {
	case yaml.SequenceNode:
		return n, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "rules" && n.Content[i+1].Kind == yaml.SequenceNode {
				return n.Content[i+1], nil
			}
		}
	}
	return nil, errors.New("rules: document is not a list of rules")
}

// Load reads and parses the catalog file at path.
func Load(path string) ([]Rule, []Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Parse(data)
}
