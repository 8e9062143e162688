package conflict

import (
	"testing"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(values map[model.Field]string, conf float64) model.MergedRecord {
	f := map[model.Field]model.FieldValue{}
	for k, v := range values {
		f[k] = model.FieldValue{Value: v, Confidence: conf, SourceTag: "openai"}
	}
	return model.MergedRecord{Fields: f}
}

func TestDetectNoExisting(t *testing.T) {
	d := NewDetector(DefaultPlaceTolerance)
	set := d.Detect(record(map[model.Field]string{model.FieldDeathDate: "2018"}, 0.9), nil)
	assert.Empty(t, set)
}

func TestDetectDeathYearConflict(t *testing.T) {
	d := NewDetector(DefaultPlaceTolerance)
	existing := &model.CanonicalRecord{
		IdentityKey: "maxine kaczmarowski|d:2018",
		Values:      map[model.Field]string{model.FieldFullName: "Maxine Kaczmarowski", model.FieldDeathDate: "May 24, 2018"},
	}
	set := d.Detect(record(map[model.Field]string{model.FieldDeathDate: "1928"}, 0.95), existing)

	require.Len(t, set, 1)
	assert.Equal(t, model.FieldDeathDate, set[0].Field)
	assert.Equal(t, "May 24, 2018", set[0].ExistingValue)
	assert.Equal(t, "1928", set[0].NewValue)
	assert.Equal(t, 0.95, set[0].NewConfidence)
	assert.Equal(t, "openai", set[0].NewSource)
	assert.Equal(t, "maxine kaczmarowski|d:2018", set[0].IdentityKey)
}

func TestDetectOrderAndEquality(t *testing.T) {
	d := NewDetector(1)
	existing := &model.CanonicalRecord{Values: map[model.Field]string{
		model.FieldFullName:   "Rose Dompke",
		model.FieldBirthDate:  "1928",
		model.FieldDeathDate:  "2001",
		model.FieldGender:     "female",
		model.FieldBirthPlace: "Gary, Indiana",
		model.FieldDeathPlace: "Chicago",
	}}
	set := d.Detect(record(map[model.Field]string{
		model.FieldFullName:   "Rosemary Dompke", // names never conflict
		model.FieldBirthDate:  "1 Jan 1928",      // same at common precision
		model.FieldDeathDate:  "2002",
		model.FieldGender:     "M",
		model.FieldBirthPlace: "gary indiana",
		model.FieldDeathPlace: "Milwaukee",
	}, 0.9), existing)

	assert.Equal(t, []model.Field{model.FieldDeathDate, model.FieldGender, model.FieldDeathPlace}, set.Fields())
}

func TestEqual(t *testing.T) {
	d := NewDetector(1)
	tests := []struct {
		name  string
		field model.Field
		a, b  string
		want  bool
	}{
		{"gender alias", model.FieldGender, "F", "female", true},
		{"gender differs", model.FieldGender, "F", "M", false},
		{"year vs day", model.FieldBirthDate, "1928", "January 12, 1928", true},
		{"month mismatch", model.FieldBirthDate, "Feb 1928", "January 12, 1928", false},
		{"unparseable same text", model.FieldDeathDate, "Unknown ", "unknown", true},
		{"unparseable vs date", model.FieldDeathDate, "spring", "2001", false},
		{"place typo", model.FieldBirthPlace, "Chicago", "Chicgo", true},
		{"place punctuation", model.FieldDeathPlace, "St. Louis, MO", "st louis mo", true},
		{"place differs", model.FieldDeathPlace, "Chicago", "Gary", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Equal(tt.field, tt.a, tt.b))
		})
	}
}

func TestPlaceToleranceZero(t *testing.T) {
	d := NewDetector(0)
	assert.False(t, d.Equal(model.FieldBirthPlace, "Chicago", "Chicgo"))
}

func TestFills(t *testing.T) {
	existing := &model.CanonicalRecord{Values: map[model.Field]string{model.FieldDeathDate: "2018"}}
	fills := Fills(record(map[model.Field]string{
		model.FieldDeathDate:  "1928",
		model.FieldBirthPlace: "Gary",
		model.FieldAge:        "90",
	}, 0.9), existing)
	assert.Equal(t, []model.Field{model.FieldAge, model.FieldBirthPlace}, fills)
}
