// Package syntax holds the language-neutral syntax tree the matcher consumes
// and the providers that produce it.
//
// A Tree is an arena: nodes are stored in pre-order (depth-first,
// left-to-right) and refer to their parent by index. Parent links are only
// ever read, never followed for ownership, so a tree is safe to share between
// goroutines once built.
package syntax

import "fmt"

// NoParent is the Parent index of a root node.
const NoParent = -1

// TypeRef names a resolved type by its simple and fully qualified spelling.
// Either may be empty when the provider could not resolve it.
type TypeRef struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Qualified string `json:"qualified,omitempty" yaml:"qualified,omitempty"`
}

// Matches reports whether want equals the simple or the qualified name.
func (t TypeRef) Matches(want string) bool {
	if want == "" {
		return false
	}
	return want == t.Name || want == t.Qualified
}

// Node is one syntax-tree node. Kind is the provider's raw spelling
// ("BinaryExpr", "CtInvocationImpl", ...); canonicalisation happens later.
type Node struct {
	ID        int
	Parent    int
	Kind      string
	File      string
	StartLine int
	EndLine   int
	Operator  string
	Type      TypeRef
	Callee    string
	Snippet   string
}

// Tree is an immutable-after-build arena of nodes in pre-order.
type Tree struct {
	File  string
	Nodes []Node
}

// Add appends n as a child of parent and returns its ID. Callers must add
// nodes in pre-order.
func (t *Tree) Add(parent int, n Node) int {
	n.ID = len(t.Nodes)
	n.Parent = parent
	t.Nodes = append(t.Nodes, n)
	return n.ID
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Nodes)
}

// Node returns the node with the given ID.
func (t *Tree) Node(id int) (Node, bool) {
	if t == nil || id < 0 || id >= len(t.Nodes) {
		return Node{}, false
	}
	return t.Nodes[id], true
}

// Parent returns the parent of the node with the given ID.
func (t *Tree) Parent(id int) (Node, bool) {
	n, ok := t.Node(id)
	if !ok {
		return Node{}, false
	}
	return t.Node(n.Parent)
}

// RenameFile replaces the file label old with name on the tree and every node
// carrying it. Providers label nodes with the path they parsed, which for an
// uploaded program is a scratch location rather than the submitted name.
func (t *Tree) RenameFile(old, name string) {
	if t.File == old {
		t.File = name
	}
	for i := range t.Nodes {
		if t.Nodes[i].File == old {
			t.Nodes[i].File = name
		}
	}
}

// Validate checks the arena invariants: IDs equal positions and every parent
// precedes its child, which rules out cycles.
func (t *Tree) Validate() error {
	for i, n := range t.Nodes {
		if n.ID != i {
			return fmt.Errorf("syntax: node at %d has id %d", i, n.ID)
		}
		if n.Parent == NoParent {
			continue
		}
		if n.Parent < 0 || n.Parent >= i {
			return fmt.Errorf("syntax: node %d has invalid parent %d", i, n.Parent)
		}
	}
	return nil
}
