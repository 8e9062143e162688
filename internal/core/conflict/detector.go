// Package conflict compares a newly merged record with the stored canonical
// record and reports the monitored fields on which they disagree.
package conflict

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/agenthands/lineage/internal/core/dates"
	"github.com/agenthands/lineage/internal/core/model"
)

const DefaultPlaceTolerance = 1

type Detector struct {
	// PlaceTolerance is the largest edit distance at which two normalized
	// place names still count as the same place.
	PlaceTolerance int
}

func NewDetector(placeTolerance int) *Detector {
	if placeTolerance < 0 {
		placeTolerance = 0
	}
	return &Detector{PlaceTolerance: placeTolerance}
}

// Detect returns the conflicts in MonitoredFields order. A nil existing
// record never conflicts.
func (d *Detector) Detect(merged model.MergedRecord, existing *model.CanonicalRecord) model.ConflictSet {
	if existing == nil {
		return nil
	}
	var out model.ConflictSet
	for _, f := range model.MonitoredFields {
		nv, ok := merged.Get(f)
		ev := existing.Value(f)
		if !ok || nv.Value == "" || ev == "" {
			continue
		}
		if d.Equal(f, ev, nv.Value) {
			continue
		}
		out = append(out, model.FieldConflict{
			Field:         f,
			ExistingValue: ev,
			NewValue:      nv.Value,
			NewConfidence: nv.Confidence,
			NewSource:     nv.SourceTag,
			IdentityKey:   existing.IdentityKey,
		})
	}
	return out
}

// Equal applies the field-specific equality.
func (d *Detector) Equal(f model.Field, a, b string) bool {
	switch {
	case f == model.FieldGender:
		return model.NormalizeGender(a) == model.NormalizeGender(b)
	case f.IsDate():
		da, okA := dates.Parse(a)
		db, okB := dates.Parse(b)
		if okA && okB {
			return dates.EqualAtCommonPrecision(da, db)
		}
		return normalizeText(a) == normalizeText(b)
	case f == model.FieldBirthPlace || f == model.FieldDeathPlace:
		na, nb := normalizeText(a), normalizeText(b)
		if na == nb {
			return true
		}
		return levenshtein.Distance(na, nb, nil) <= d.PlaceTolerance
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// Fills lists monitored and unmonitored fields present only in the new record.
func Fills(merged model.MergedRecord, existing *model.CanonicalRecord) []model.Field {
	var out []model.Field
	for _, f := range model.AllFields {
		if v, ok := merged.Get(f); ok && v.Value != "" && existing.Value(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
