package model

import (
	"sort"
	"time"
)

// CanonicalRecord is the persisted, reconciled person node for one identity.
type CanonicalRecord struct {
	ID          string           `json:"id"`
	IdentityKey string           `json:"identity_key"`
	Values      map[Field]string `json:"values"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Citations   []string         `json:"citations,omitempty"` // source document ids

	BirthYearCalculated bool `json:"birth_year_calculated,omitempty"`
}

// Value returns the stored value of a field, or "".
func (c *CanonicalRecord) Value(f Field) string {
	if c == nil {
		return ""
	}
	return c.Values[f]
}

// HasCitation reports whether the record already cites the document.
func (c *CanonicalRecord) HasCitation(docID string) bool {
	for _, id := range c.Citations {
		if id == docID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it freely.
func (c *CanonicalRecord) Clone() *CanonicalRecord {
	if c == nil {
		return nil
	}
	out := *c
	out.Values = make(map[Field]string, len(c.Values))
	for k, v := range c.Values {
		out.Values[k] = v
	}
	out.Citations = append([]string(nil), c.Citations...)
	return &out
}

// AddCitation records docID once, keeping the list sorted.
func (c *CanonicalRecord) AddCitation(docID string) bool {
	if c.HasCitation(docID) {
		return false
	}
	c.Citations = append(c.Citations, docID)
	sort.Strings(c.Citations)
	return true
}

// PersonNode is the property bag written for a person.
type PersonNode struct {
	ID                  string
	IdentityKey         string
	Values              map[Field]string
	BirthYearCalculated bool
	// Touch moves updated_at forward; unchanged re-commits leave it alone.
	Touch bool
	Now   time.Time
}

// SourceNode is one cited document.
type SourceNode struct {
	ID        string
	URL       string
	Site      string
	Name      string
	Published string
	Now       time.Time
}
