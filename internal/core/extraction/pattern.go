package extraction

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/agenthands/lineage/internal/core/dates"
	"github.com/agenthands/lineage/internal/core/model"
)

const PatternConfidence = 0.7

// PatternExtractor reads obituaries with regular expressions. It never
// fails; missing facts are simply left empty.
type PatternExtractor struct {
	Confidence float64
}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{Confidence: PatternConfidence}
}

func (p *PatternExtractor) Tag() string               { return "regex" }
func (p *PatternExtractor) Kind() model.ExtractorKind { return model.KindPattern }

func (p *PatternExtractor) Extract(ctx context.Context, text string) (model.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ExtractionResult{}, err
	}
	res := model.ExtractionResult{
		Confidence: p.Confidence,
		SourceTag:  p.Tag(),
		Kind:       p.Kind(),
	}

	res.FullName, res.MaidenName = extractName(text)
	res.Age = extractAge(text)
	res.BirthDate, res.DeathDate = extractDates(text)
	res.Gender = extractGender(text)
	res.BirthPlace = firstGroup(birthPlaceRe, text)
	res.DeathPlace = firstGroup(deathPlaceRe, text)
	if res.DeathPlace == "" {
		res.DeathPlace = firstGroup(ofPlaceRe, text)
	}

	if res.BirthDate == "" && res.DeathDate != "" && res.Age != nil {
		if y := dates.Year(res.DeathDate); y > 0 && *res.Age < y {
			res.BirthDate = strconv.Itoa(y - *res.Age)
			res.BirthYearCalculated = true
		}
	}
	return res, nil
}

func extractName(text string) (full, maiden string) {
	if m := lastFirstNeeRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[2]) + " " + m[1], m[3]
	}
	if m := firstLastNeeRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]) + " " + m[2], m[3]
	}
	if m := maidenRe.FindStringSubmatch(text); m != nil {
		maiden = m[1]
	}
	if m := titleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), maiden
	}
	return firstCapitalizedPair(text), maiden
}

// firstCapitalizedPair returns the first two adjacent capitalized words of
// the first sentence.
func firstCapitalizedPair(text string) string {
	first, _, _ := strings.Cut(text, ".")
	words := strings.Fields(first)
	for i := 0; i+1 < len(words); i++ {
		a := strings.Trim(words[i], ",;:")
		b := strings.Trim(words[i+1], ",;:")
		if isCapitalized(a) && isCapitalized(b) {
			return a + " " + b
		}
	}
	return ""
}

func isCapitalized(w string) bool {
	for i, r := range w {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return len(w) > 1
}

func extractAge(text string) *int {
	for _, re := range agePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || n > 125 {
			continue
		}
		return &n
	}
	return nil
}

func extractDates(text string) (birth, death string) {
	if m := dateRangeRe.FindStringSubmatch(text); m != nil {
		b, okB := dates.Parse(m[1])
		d, okD := dates.Parse(m[2])
		if okB && okD && b.Year <= d.Year {
			return b.String(), d.String()
		}
	}
	for _, re := range birthPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if d, ok := dates.Parse(m[1]); ok {
				birth = d.String()
				break
			}
		}
	}
	for _, re := range deathPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if d, ok := dates.Parse(m[1]); ok {
				death = d.String()
				break
			}
		}
	}
	return birth, death
}

// extractGender counts gendered words; a tie leaves gender unknown.
func extractGender(text string) string {
	f := len(femaleRe.FindAllStringIndex(text, -1))
	m := len(maleRe.FindAllStringIndex(text, -1))
	switch {
	case f > m:
		return "F"
	case m > f:
		return "M"
	}
	return ""
}

func firstGroup(re interface{ FindStringSubmatch(string) []string }, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
