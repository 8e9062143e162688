package model

// FieldConflict is a disagreement on one monitored field between a new
// merged record and the stored canonical record.
type FieldConflict struct {
	Field         Field   `json:"field"`
	ExistingValue string  `json:"existing_value"`
	NewValue      string  `json:"new_value"`
	NewConfidence float64 `json:"new_confidence"`
	NewSource     string  `json:"new_source"`

	// Context for whoever decides.
	IdentityKey string `json:"identity_key,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

// ConflictSet is ordered by MonitoredFields.
type ConflictSet []FieldConflict

// Fields returns the conflicting field names in order.
func (s ConflictSet) Fields() []Field {
	out := make([]Field, 0, len(s))
	for _, c := range s {
		out = append(out, c.Field)
	}
	return out
}

// Decision is the outcome chosen for a single FieldConflict.
type Decision string

const (
	KeepExisting Decision = "keep_existing"
	UseNew       Decision = "use_new"
	Merge        Decision = "merge"
	Skip         Decision = "skip"
)

func (d Decision) Valid() bool {
	switch d {
	case KeepExisting, UseNew, Merge, Skip:
		return true
	}
	return false
}

// ParseDecision accepts the canonical names plus the short forms used at the prompt.
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "keep_existing", "keep", "k", "1":
		return KeepExisting, true
	case "use_new", "new", "n", "2":
		return UseNew, true
	case "merge", "m", "3":
		return Merge, true
	case "skip", "s", "4":
		return Skip, true
	}
	return "", false
}

// AuditKind classifies what happened to a field during resolution.
type AuditKind string

const (
	AuditFilled   AuditKind = "filled"
	AuditKept     AuditKind = "kept"
	AuditReplaced AuditKind = "replaced"
	AuditMerged   AuditKind = "merged"
	AuditSkipped  AuditKind = "skipped"
	// AuditRefined: a compatible date replaced by a more precise one.
	AuditRefined AuditKind = "refined"
)

// AuditEntry records one field outcome. Fields without a conflict or a fill
// have no entry.
type AuditEntry struct {
	Field    Field     `json:"field"`
	Kind     AuditKind `json:"kind"`
	Decision Decision  `json:"decision,omitempty"`
	Existing string    `json:"existing,omitempty"`
	New      string    `json:"new,omitempty"`
	Value    string    `json:"value"`
}

// ResolvedRecord is the canonical record after resolution, ready to commit.
type ResolvedRecord struct {
	CanonicalRecord
	Created bool         `json:"created"`
	Audit   []AuditEntry `json:"audit,omitempty"`
}

// Changed reports whether committing would alter stored person values.
func (r ResolvedRecord) Changed() bool {
	if r.Created {
		return true
	}
	for _, a := range r.Audit {
		if a.Kind == AuditFilled || a.Kind == AuditReplaced || a.Kind == AuditRefined {
			return true
		}
		if a.Kind == AuditMerged && a.Value != a.Existing {
			return true
		}
	}
	return false
}
