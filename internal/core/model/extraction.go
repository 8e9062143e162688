package model

import (
	"math"
	"sort"
	"strconv"
)

// Field names a person attribute that extractors can populate.
type Field string

const (
	FieldFullName   Field = "full_name"
	FieldMaidenName Field = "maiden_name"
	FieldBirthDate  Field = "birth_date"
	FieldDeathDate  Field = "death_date"
	FieldAge        Field = "age"
	FieldGender     Field = "gender"
	FieldBirthPlace Field = "birth_place"
	FieldDeathPlace Field = "death_place"
)

// AllFields lists every person field in a stable order.
var AllFields = []Field{
	FieldFullName,
	FieldMaidenName,
	FieldBirthDate,
	FieldDeathDate,
	FieldAge,
	FieldGender,
	FieldBirthPlace,
	FieldDeathPlace,
}

// MonitoredFields are the only fields that can produce a FieldConflict, in detection order.
var MonitoredFields = []Field{
	FieldBirthDate,
	FieldDeathDate,
	FieldGender,
	FieldBirthPlace,
	FieldDeathPlace,
}

// IsDate reports whether the field holds a (possibly partial) calendar date.
func (f Field) IsDate() bool {
	return f == FieldBirthDate || f == FieldDeathDate
}

// IsMonitored reports whether the field participates in conflict detection.
func (f Field) IsMonitored() bool {
	for _, m := range MonitoredFields {
		if m == f {
			return true
		}
	}
	return false
}

// ExtractorKind classifies how an extractor works. It drives the merge tie-break.
type ExtractorKind string

const (
	KindModel   ExtractorKind = "model"   // LLM / NLP model based
	KindPattern ExtractorKind = "pattern" // regex based
)

// ExtractionResult is one extractor's opinion about one document.
// Empty strings and a nil Age mean "not found".
type ExtractionResult struct {
	FullName   string `json:"full_name,omitempty"`
	MaidenName string `json:"maiden_name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	DeathDate  string `json:"death_date,omitempty"`
	Age        *int   `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	DeathPlace string `json:"death_place,omitempty"`

	// BirthYearCalculated is set when BirthDate was derived from DeathDate and Age.
	BirthYearCalculated bool `json:"birth_year_calculated,omitempty"`

	Confidence float64       `json:"confidence"`
	SourceTag  string        `json:"source_tag"`
	Kind       ExtractorKind `json:"kind"`
}

// Value returns the string form of a field and whether it is populated.
func (r ExtractionResult) Value(f Field) (string, bool) {
	var v string
	switch f {
	case FieldFullName:
		v = r.FullName
	case FieldMaidenName:
		v = r.MaidenName
	case FieldBirthDate:
		v = r.BirthDate
	case FieldDeathDate:
		v = r.DeathDate
	case FieldAge:
		if r.Age != nil {
			v = strconv.Itoa(*r.Age)
		}
	case FieldGender:
		v = r.Gender
	case FieldBirthPlace:
		v = r.BirthPlace
	case FieldDeathPlace:
		v = r.DeathPlace
	}
	return v, v != ""
}

// ClampedConfidence returns the confidence limited to [0,1]; NaN counts as 0.
func (r ExtractionResult) ClampedConfidence() float64 {
	if math.IsNaN(r.Confidence) {
		return 0
	}
	return math.Max(0, math.Min(1, r.Confidence))
}

// FieldValue is a merged field with its provenance.
type FieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceTag  string  `json:"source_tag"`
}

// MergedRecord is the consolidated opinion about one document.
type MergedRecord struct {
	Fields              map[Field]FieldValue `json:"fields"`
	BirthYearCalculated bool                 `json:"birth_year_calculated,omitempty"`
}

// Get returns the provenance-bearing value of a field.
func (m MergedRecord) Get(f Field) (FieldValue, bool) {
	fv, ok := m.Fields[f]
	return fv, ok
}

// Value returns the bare value of a field, or "".
func (m MergedRecord) Value(f Field) string {
	return m.Fields[f].Value
}

func (m MergedRecord) IsEmpty() bool {
	return len(m.Fields) == 0
}

// Confidence is the document's overall extraction confidence: the highest
// confidence among the values that made it into the record.
func (m MergedRecord) Confidence() float64 {
	var best float64
	for _, fv := range m.Fields {
		if fv.Confidence > best {
			best = fv.Confidence
		}
	}
	return best
}

// Sources lists the distinct source tags that contributed, sorted.
func (m MergedRecord) Sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, fv := range m.Fields {
		if !seen[fv.SourceTag] {
			seen[fv.SourceTag] = true
			out = append(out, fv.SourceTag)
		}
	}
	sort.Strings(out)
	return out
}
