package syntax

import (
	"encoding/json"
	"fmt"
	"io"
)

// jsonNode is the nested wire form emitted by external parsers.
type jsonNode struct {
	Kind      string      `json:"kind"`
	File      string      `json:"file"`
	StartLine int         `json:"startLine"`
	EndLine   int         `json:"endLine"`
	Operator  string      `json:"operator"`
	Type      *TypeRef    `json:"type"`
	Callee    string      `json:"callee"`
	Snippet   string      `json:"snippet"`
	Children  []*jsonNode `json:"children"`
}

// DecodeJSON reads one nested tree and flattens it into a pre-order arena.
// Nodes without a file inherit their parent's; the root inherits file.
func DecodeJSON(r io.Reader, file string) (*Tree, error) {
	var root jsonNode
	dec := json.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("syntax: decode tree: %w", err)
	}
	if root.Kind == "" {
		return nil, fmt.Errorf("syntax: decode tree: root has no kind")
	}
	t := &Tree{File: file}
	flatten(t, NoParent, &root, file)
	return t, nil
}

func flatten(t *Tree, parent int, jn *jsonNode, file string) {
	if jn == nil {
		return
	}
	if jn.File != "" {
		file = jn.File
	}
	n := Node{
		Kind:      jn.Kind,
		File:      file,
		StartLine: jn.StartLine,
		EndLine:   jn.EndLine,
		Operator:  jn.Operator,
		Callee:    jn.Callee,
		Snippet:   jn.Snippet,
	}
	if n.EndLine < n.StartLine {
		n.EndLine = n.StartLine
	}
	if jn.Type != nil {
		n.Type = *jn.Type
	}
	id := t.Add(parent, n)
	for _, c := range jn.Children {
		flatten(t, id, c, file)
	}
}
