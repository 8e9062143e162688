// Package merge folds several extractors' results for one document into a
// single MergedRecord.
package merge

import (
	"github.com/agenthands/lineage/internal/core/model"
)

const DefaultHighThreshold = 0.8

// DefaultPriority ranks extractor kinds for tie-breaks; lower wins.
var DefaultPriority = map[model.ExtractorKind]int{
	model.KindModel:   0,
	model.KindPattern: 1,
}

type Merger struct {
	HighThreshold float64
	Priority      map[model.ExtractorKind]int
}

func NewMerger(highThreshold float64) *Merger {
	if highThreshold <= 0 {
		highThreshold = DefaultHighThreshold
	}
	return &Merger{HighThreshold: highThreshold, Priority: DefaultPriority}
}

func (m *Merger) priority(k model.ExtractorKind) int {
	if p, ok := m.Priority[k]; ok {
		return p
	}
	return len(m.Priority)
}

// better reports whether candidate a beats b for one field. The ordering is
// total, so the winner never depends on input order.
func (m *Merger) better(a, b model.ExtractionResult, av, bv string) bool {
	ac, bc := a.ClampedConfidence(), b.ClampedConfidence()
	if ac != bc {
		return ac > bc
	}
	if pa, pb := m.priority(a.Kind), m.priority(b.Kind); pa != pb {
		return pa < pb
	}
	if a.SourceTag != b.SourceTag {
		return a.SourceTag < b.SourceTag
	}
	return av < bv
}

// Merge picks a winner per field. Any result at or above HighThreshold
// beats every result below it; within a band the higher confidence wins.
func (m *Merger) Merge(results []model.ExtractionResult) model.MergedRecord {
	out := model.MergedRecord{Fields: map[model.Field]model.FieldValue{}}
	var birthWinner *model.ExtractionResult

	for _, f := range model.AllFields {
		var (
			best    *model.ExtractionResult
			bestVal string
		)
		for i := range results {
			r := &results[i]
			v, ok := r.Value(f)
			if !ok {
				continue
			}
			if best == nil || m.beats(*r, *best, v, bestVal) {
				best, bestVal = r, v
			}
		}
		if best == nil {
			continue
		}
		out.Fields[f] = model.FieldValue{
			Value:      bestVal,
			Confidence: best.ClampedConfidence(),
			SourceTag:  best.SourceTag,
		}
		if f == model.FieldBirthDate {
			birthWinner = best
		}
	}
	if birthWinner != nil {
		out.BirthYearCalculated = birthWinner.BirthYearCalculated
	}
	return out
}

func (m *Merger) beats(a, b model.ExtractionResult, av, bv string) bool {
	aHigh := a.ClampedConfidence() >= m.HighThreshold
	bHigh := b.ClampedConfidence() >= m.HighThreshold
	if aHigh != bHigh {
		return aHigh
	}
	return m.better(a, b, av, bv)
}
