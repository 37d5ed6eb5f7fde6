package store

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind distinguishes nodes from links.
type Kind string

const (
	KindNode Kind = "node"
	KindLink Kind = "link"
)

// Valid reports whether k is node or link.
func (k Kind) Valid() bool {
	return k == KindNode || k == KindLink
}

// nodeTypes and linkTypes are the closed sets of type names per kind.
var (
	nodeTypes = map[string]bool{
		"ConceptNode":        true,
		"PredicateNode":      true,
		"VariableNode":       true,
		"NumberNode":         true,
		"TypeNode":           true,
		"GroundedSchemaNode": true,
		"ContextNode":        true,
		"AgentNode":          true,
	}
	linkTypes = map[string]bool{
		"InheritanceLink": true,
		"SimilarityLink":  true,
		"MemberLink":      true,
		"EvaluationLink":  true,
		"ImplicationLink": true,
		"ListLink":        true,
		"AndLink":         true,
		"OrLink":          true,
		"NotLink":         true,
		"ExecutionLink":   true,
		"AtTimeLink":      true,
	}
)

// Type names used by the triple convention.
const (
	ConceptNode    = "ConceptNode"
	PredicateNode  = "PredicateNode"
	ListLink       = "ListLink"
	EvaluationLink = "EvaluationLink"
)

// ValidType reports whether typeName belongs to kind's type set.
func ValidType(kind Kind, typeName string) bool {
	switch kind {
	case KindNode:
		return nodeTypes[typeName]
	case KindLink:
		return linkTypes[typeName]
	}
	return false
}

// KindOf returns the kind a type name belongs to.
func KindOf(typeName string) (Kind, bool) {
	if nodeTypes[typeName] {
		return KindNode, true
	}
	if linkTypes[typeName] {
		return KindLink, true
	}
	return "", false
}

// TruthValue is a probabilistic (strength, confidence) pair in [0,1]^2.
type TruthValue struct {
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

// DefaultTruthValue is assigned to atoms created without one.
var DefaultTruthValue = TruthValue{Strength: 1.0, Confidence: 1.0}

// Clamped returns tv with both components forced into [0,1]. NaN becomes 0.
func (tv TruthValue) Clamped() TruthValue {
	return TruthValue{Strength: clamp01(tv.Strength), Confidence: clamp01(tv.Confidence)}
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// AttentionValue carries short- and long-term importance. Unclamped.
type AttentionValue struct {
	STI float64 `json:"sti"`
	LTI float64 `json:"lti"`
}

// Atom is a node or a link owned by one knowledge base.
type Atom struct {
	ID        int64
	OwnerID   int64
	Kind      Kind
	TypeName  string
	Name      string // nodes only
	Value     []byte // undecoded payload, nil when absent
	TV        TruthValue
	AV        AttentionValue
	CreatedAt int64
	UpdatedAt int64
}

// IsNode reports whether the atom is a node.
func (a *Atom) IsNode() bool { return a.Kind == KindNode }

// IsLink reports whether the atom is a link.
func (a *Atom) IsLink() bool { return a.Kind == KindLink }

// DecodedValue decodes the stored payload. A payload that is not valid JSON
// is returned as a raw string; a missing payload is nil.
func (a *Atom) DecodedValue() any {
	if a.Value == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(a.Value, &v); err != nil {
		return string(a.Value)
	}
	return v
}

// EncodeValue turns a caller-supplied payload into its stored form.
// Strings are stored verbatim, raw JSON as-is, everything else marshaled.
func EncodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(val), nil
	case []byte:
		return val, nil
	case json.RawMessage:
		if len(val) == 0 || string(val) == "null" {
			return nil, nil
		}
		return []byte(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, Validationf("encode value: %v", err)
	}
	return b, nil
}

// outgoingKey is the canonical form of an ordered target list: "12,7,12".
func outgoingKey(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
