package matcher

import (
	"greenscan/internal/canon"
	"greenscan/internal/syntax"
)

// IsContainedInAny walks from the parent of node id up to the root and
// reports whether some ancestor's canonical kind is in set. An empty set
// always holds.
func IsContainedInAny(tree *syntax.Tree, id int, set canon.AncestorSet) bool {
	if set.Empty() {
		return true
	}
	for n, ok := tree.Parent(id); ok; n, ok = tree.Parent(n.ID) {
		if set.Accepts(canon.Ancestor(n.Kind)) {
			return true
		}
	}
	return false
}
