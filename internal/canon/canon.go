// Package canon maps the loosely spelled vocabulary used by rule authors and
// syntax-tree providers onto a small set of canonical tokens.
//
// Every lookup is total: a token with no known alias is returned unchanged, so
// a predicate comparing it simply fails to match instead of raising an error.
package canon

import (
	"sort"
	"strings"
)

// NodeKind is a canonical syntax-tree node category.
type NodeKind string

const (
	Binary       NodeKind = "BINARY_OPERATOR"
	Construction NodeKind = "OBJECT_CONSTRUCTION"
	Call         NodeKind = "CALL"
)

// Operator is a canonical binary operator.
type Operator string

const (
	Plus  Operator = "PLUS"
	Minus Operator = "MINUS"
	Mul   Operator = "MUL"
	Div   Operator = "DIV"
	Mod   Operator = "MOD"
)

// AncestorKind is a canonical enclosing-statement category.
type AncestorKind string

const (
	For   AncestorKind = "FOR"
	While AncestorKind = "WHILE"
	Do    AncestorKind = "DO"

	// AnyLoop is a wildcard: it is satisfied by any FOR, WHILE or DO ancestor.
	AnyLoop AncestorKind = "ANY_LOOP"
)

// ---------------------------------------------------------------------------
// Alias tables (node and ancestor keys are in fold() form)
// ---------------------------------------------------------------------------

var nodeAliases = map[string]NodeKind{
	"binaryoperator":   Binary,
	"binary":           Binary,
	"binaryop":         Binary,
	"binop":            Binary,
	"binaryexpr":       Binary,
	"binaryexpression": Binary,
	"ctbinaryoperator": Binary,

	"objectconstruction":  Construction,
	"constructorcall":     Construction,
	"constructor":         Construction,
	"ctconstructorcall":   Construction,
	"objectcreationexpr":  Construction,
	"objectcreation":      Construction,
	"new":                 Construction,
	"newexpr":             Construction,
	"newexpression":       Construction,
	"compositelit":        Construction,
	"instancecreation":    Construction,
	"classinstancecreate": Construction,

	"call":             Call,
	"callexpr":         Call,
	"callexpression":   Call,
	"invocation":       Call,
	"ctinvocation":     Call,
	"methodcall":       Call,
	"methodcallexpr":   Call,
	"methodinvocation": Call,
}

var operatorAliases = map[string]Operator{
	"+":     Plus,
	"plus":  Plus,
	"-":     Minus,
	"minus": Minus,
	"*":     Mul,
	"mul":   Mul,
	"/":     Div,
	"div":   Div,
	"%":     Mod,
	"mod":   Mod,
}

var ancestorAliases = map[string]AncestorKind{
	"for":         For,
	"forloop":     For,
	"forstmt":     For,
	"ctfor":       For,
	"rangestmt":   For,
	"foreach":     For,
	"foreachstmt": For,
	"ctforeach":   For,

	"while":     While,
	"whileloop": While,
	"whilestmt": While,
	"ctwhile":   While,

	"do":      Do,
	"doloop":  Do,
	"dostmt":  Do,
	"dowhile": Do,
	"ctdo":    Do,

	"anyloop": AnyLoop,
	"loop":    AnyLoop,
	"ctloop":  AnyLoop,
}

// fold reduces a raw token to its lookup form: trimmed, implementation
// suffix dropped, lower-cased, separators removed.
func fold(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "Impl")
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

// Node returns the canonical kind for raw, or NodeKind(raw) if raw has no alias.
func Node(raw string) NodeKind {
	if k, ok := nodeAliases[fold(raw)]; ok {
		return k
	}
	return NodeKind(raw)
}

// Known reports whether k is one of the three node kinds the matcher can enumerate.
func (k NodeKind) Known() bool {
	return k == Binary || k == Construction || k == Call
}

// Op returns the canonical operator for raw. Symbols and word forms are
// accepted case-insensitively; an unknown operator is returned unchanged.
func Op(raw string) Operator {
	if raw == "" {
		return ""
	}
	// Not fold(): "-" is itself an operator symbol.
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return op
	}
	return Operator(raw)
}

// Equal compares two operators, ignoring case for operators with no alias.
func (o Operator) Equal(other Operator) bool {
	return strings.EqualFold(string(o), string(other))
}

// Ancestor returns the canonical ancestor kind for raw, or AncestorKind(raw).
func Ancestor(raw string) AncestorKind {
	if k, ok := ancestorAliases[fold(raw)]; ok {
		return k
	}
	return AncestorKind(raw)
}

// IsLoop reports whether k is a concrete loop kind.
func (k AncestorKind) IsLoop() bool {
	return k == For || k == While || k == Do
}

// AncestorSet is a set of canonical ancestor kinds. The zero value is empty
// and places no constraint on a node.
type AncestorSet struct {
	kinds map[AncestorKind]struct{}
}

// NewAncestorSet canonicalises raw and returns the resulting set. Blank
// entries are ignored.
func NewAncestorSet(raw ...string) AncestorSet {
	var s AncestorSet
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		if s.kinds == nil {
			s.kinds = make(map[AncestorKind]struct{}, len(raw))
		}
		s.kinds[Ancestor(r)] = struct{}{}
	}
	return s
}

// Empty reports whether the set has no members.
func (s AncestorSet) Empty() bool { return len(s.kinds) == 0 }

// Accepts reports whether an ancestor of canonical kind k satisfies the set.
// A set containing AnyLoop accepts every loop kind.
func (s AncestorSet) Accepts(k AncestorKind) bool {
	if _, ok := s.kinds[k]; ok {
		return true
	}
	if k.IsLoop() {
		_, ok := s.kinds[AnyLoop]
		return ok
	}
	return false
}

// Kinds returns the members in sorted order.
func (s AncestorSet) Kinds() []AncestorKind {
	out := make([]AncestorKind, 0, len(s.kinds))
	for k := range s.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
