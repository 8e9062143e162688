package model

import "time"

// RelationshipKind names a family relationship between two people.
type RelationshipKind string

const (
	RelSpouse    RelationshipKind = "spouse"
	RelCompanion RelationshipKind = "companion"
	RelSibling   RelationshipKind = "sibling"
	RelChildOf   RelationshipKind = "child_of"
	RelParentOf  RelationshipKind = "parent_of"
)

// Symmetric reports whether A-kind-B implies B-kind-A.
func (k RelationshipKind) Symmetric() bool {
	switch k {
	case RelSpouse, RelCompanion, RelSibling:
		return true
	}
	return false
}

// Valid reports whether k is a known relationship kind.
func (k RelationshipKind) Valid() bool {
	switch k {
	case RelSpouse, RelCompanion, RelSibling, RelChildOf, RelParentOf:
		return true
	}
	return false
}

// EdgeType is the relationship type used in the graph.
func (k RelationshipKind) EdgeType() string {
	switch k {
	case RelSpouse:
		return "SPOUSE_OF"
	case RelCompanion:
		return "COMPANION_OF"
	case RelSibling:
		return "SIBLING_OF"
	case RelChildOf:
		return "CHILD_OF"
	case RelParentOf:
		return "PARENT_OF"
	}
	return ""
}

// RelationshipMention is a family relationship found in a document.
type RelationshipMention struct {
	FromKey string           `json:"from_key"`
	ToKey   string           `json:"to_key"`
	Kind    RelationshipKind `json:"kind"`
	Name    string           `json:"name,omitempty"` // display name of the other person
}

// DedupKey identifies equivalent edges: unordered endpoints for symmetric
// kinds, ordered for directed ones.
func (r RelationshipMention) DedupKey() string {
	a, b := r.FromKey, r.ToKey
	if r.Kind.Symmetric() && b < a {
		a, b = b, a
	}
	return string(r.Kind) + "|" + a + "|" + b
}

// Endpoints returns the endpoints in the order they are stored. Symmetric
// edges are always stored low key first.
func (r RelationshipMention) Endpoints() (string, string) {
	if r.Kind.Symmetric() && r.ToKey < r.FromKey {
		return r.ToKey, r.FromKey
	}
	return r.FromKey, r.ToKey
}

// CitationEdge links a person to the source that mentions them.
type CitationEdge struct {
	PersonID            string
	SourceID            string
	Confidence          float64
	BirthYearCalculated bool
	Now                 time.Time
}

// CommitResult reports what one commit changed.
type CommitResult struct {
	PersonID        string `json:"person_id"`
	Created         bool   `json:"created"`
	CitationCreated bool   `json:"citation_created"`
	EdgesCreated    int    `json:"edges_created"`
	EdgesExisting   int    `json:"edges_existing"`
}
