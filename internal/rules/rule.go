// Package rules loads and serves the declarative rule catalog.
//
// A catalog file is a YAML (or JSON) list of rules, optionally wrapped in a
// top-level "rules:" key:
//
//	- id: STR_CONCAT_LOOP
//	  severity: HIGH
//	  match:
//	    node: binaryOperator
//	    operator: "+"
//	    operandType: java.lang.String
//	    ancestor: [forLoop, whileLoop]
//
// The authored match block is kept verbatim in Rule.Spec and compiled into a
// Predicate, a variant per target node kind.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"greenscan/internal/canon"
)

// Severity is a rule's severity label. Labels outside the three known ones
// are tolerated and score as the default.
type Severity string

const (
	High   Severity = "HIGH"
	Medium Severity = "MEDIUM"
	Low    Severity = "LOW"
)

// Normalize upper-cases known labels and leaves others untouched.
func (s Severity) Normalize() Severity {
	switch u := Severity(strings.ToUpper(strings.TrimSpace(string(s)))); u {
	case High, Medium, Low:
		return u
	}
	return s
}

// ParserErrorID is the reserved built-in rule attached to parse failures.
const ParserErrorID = "PARSER_ERROR"

// ParserError is the built-in rule resolved for ParserErrorID. It has no
// predicate and is never evaluated by the matcher.
var ParserError = Rule{
	ID:          ParserErrorID,
	Description: "The source file could not be parsed; static analysis was not performed.",
	Severity:    Low,
	Suggestion:  "Fix the syntax error and resubmit.",
	Tags:        []string{"parser"},
	Match:       UnknownMatch{Node: ""},
}

// Rule is one catalog entry. Rules are values and never mutated after load.
type Rule struct {
	ID          string    `yaml:"id" json:"id"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    Severity  `yaml:"severity" json:"severity"`
	Spec        MatchSpec `yaml:"match" json:"match"`
	Suggestion  string    `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
	Tags        []string  `yaml:"tags,omitempty" json:"tags,omitempty"`

	Match Predicate `yaml:"-" json:"-"`
}

// MatchSpec is the match block as authored.
type MatchSpec struct {
	Node        string     `yaml:"node" json:"node"`
	Operator    string     `yaml:"operator,omitempty" json:"operator,omitempty"`
	OperandType string     `yaml:"operandType,omitempty" json:"operandType,omitempty"`
	Ancestor    StringList `yaml:"ancestor,omitempty" json:"ancestor,omitempty"`
	Type        StringList `yaml:"type,omitempty" json:"type,omitempty"`
	Name        string     `yaml:"name,omitempty" json:"name,omitempty"`
}

// StringList decodes from either a scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := value.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
}

// Predicate is the compiled match block. Exactly one of BinaryMatch,
// ConstructionMatch, CallMatch or UnknownMatch.
type Predicate interface {
	Target() canon.NodeKind
	Constraints() Constraints
}

// Constraints are shared by every predicate variant. Zero values place no
// constraint.
type Constraints struct {
	Within     canon.AncestorSet
	ResultType string
}

// BinaryMatch selects binary operators.
type BinaryMatch struct {
	Common   Constraints
	Operator canon.Operator
}

func (BinaryMatch) Target() canon.NodeKind { return canon.Binary }
func (m BinaryMatch) Constraints() Constraints { return m.Common }

// ConstructionMatch selects object constructions whose type is in Types
// (simple or qualified name).
type ConstructionMatch struct {
	Common Constraints
	Types  []string
}

func (ConstructionMatch) Target() canon.NodeKind { return canon.Construction }
func (m ConstructionMatch) Constraints() Constraints { return m.Common }

// CallMatch selects calls to Name.
type CallMatch struct {
	Common Constraints
	Name   string
}

func (CallMatch) Target() canon.NodeKind { return canon.Call }
func (m CallMatch) Constraints() Constraints { return m.Common }

// UnknownMatch holds a rule whose node kind has no canonical form. The
// matcher skips it with a diagnostic.
type UnknownMatch struct {
	Node string
}

func (m UnknownMatch) Target() canon.NodeKind { return canon.Node(m.Node) }
func (UnknownMatch) Constraints() Constraints { return Constraints{} }

// Compile turns an authored match block into its predicate.
func Compile(spec MatchSpec) Predicate {
	common := Constraints{
		Within:     canon.NewAncestorSet(spec.Ancestor...),
		ResultType: strings.TrimSpace(spec.OperandType),
	}
	switch canon.Node(spec.Node) {
	case canon.Binary:
		return BinaryMatch{Common: common, Operator: canon.Op(spec.Operator)}
	case canon.Construction:
		var types []string
		for _, t := range spec.Type {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		return ConstructionMatch{Common: common, Types: types}
	case canon.Call:
		return CallMatch{Common: common, Name: strings.TrimSpace(spec.Name)}
	}
	return UnknownMatch{Node: spec.Node}
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*l = many
	return nil
}
