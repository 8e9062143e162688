package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/agenthands/lineage/internal/core/common"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/llm"
)

const (
	LLMConfidence = 0.9
	// Long obituaries are cut before prompting.
	maxPromptText = 12000
)

// DefaultPrompt takes the obituary text as its only %s.
const DefaultPrompt = `Extract person information about the deceased from this obituary text following these rules:
1. full_name: the complete name of the deceased
2. maiden_name: a name following "nee" or "NEE", otherwise null
3. death_date: the date of death formatted as "DD Mon YYYY"
4. age: age at death as an integer
5. birth_date: formatted as "DD Mon YYYY"; if only the year is known give just "YYYY"
6. gender: "M" or "F", determined from pronouns and relationships
7. birth_place and death_place: "City, State" when stated, otherwise null
8. is_birth_year_calculated: true ONLY if the birth year was calculated from age and death date

Return only a JSON object with exactly these keys:
{"full_name": str, "maiden_name": str|null, "death_date": str|null, "age": int|null,
 "birth_date": str|null, "gender": str|null, "birth_place": str|null, "death_place": str|null,
 "is_birth_year_calculated": bool}

Obituary text:
%s
`

// LLMExtractor asks a language model for the person facts as JSON.
type LLMExtractor struct {
	LLM        llm.LLMClient
	Prompt     string
	Confidence float64
	tag        string
}

func NewLLMExtractor(client llm.LLMClient, tag, prompt string) *LLMExtractor {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if tag == "" {
		tag = "llm"
	}
	return &LLMExtractor{LLM: client, Prompt: prompt, Confidence: LLMConfidence, tag: tag}
}

func (e *LLMExtractor) Tag() string               { return e.tag }
func (e *LLMExtractor) Kind() model.ExtractorKind { return model.KindModel }

type llmPerson struct {
	FullName   string  `json:"full_name"`
	MaidenName string  `json:"maiden_name"`
	DeathDate  string  `json:"death_date"`
	Age        flexInt `json:"age"`
	BirthDate  string  `json:"birth_date"`
	Gender     string  `json:"gender"`
	BirthPlace string  `json:"birth_place"`
	DeathPlace string  `json:"death_place"`
	Calculated bool    `json:"is_birth_year_calculated"`
}

// flexInt accepts 92, "92" and "92 years".
type flexInt struct{ v *int }

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	fields := strings.Fields(s)
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		var fl float64
		if json.Unmarshal([]byte(fields[0]), &fl) != nil {
			return nil
		}
		n = int(fl)
	}
	f.v = &n
	return nil
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (model.ExtractionResult, error) {
	prompt := fmt.Sprintf(e.Prompt, common.Truncate(text, maxPromptText))

	response, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return model.ExtractionResult{}, fmt.Errorf("%w: %s: %v", model.ErrExtraction, e.tag, err)
	}

	p, err := common.ParseJSON[llmPerson](response)
	if err != nil {
		return model.ExtractionResult{}, fmt.Errorf("%w: %s: %v", model.ErrExtraction, e.tag, err)
	}

	return model.ExtractionResult{
		FullName:            clean(p.FullName),
		MaidenName:          clean(p.MaidenName),
		BirthDate:           clean(p.BirthDate),
		DeathDate:           clean(p.DeathDate),
		Age:                 p.Age.v,
		Gender:              model.NormalizeGender(clean(p.Gender)),
		BirthPlace:          clean(p.BirthPlace),
		DeathPlace:          clean(p.DeathPlace),
		BirthYearCalculated: p.Calculated && clean(p.BirthDate) != "",
		Confidence:          e.Confidence,
		SourceTag:           e.tag,
		Kind:                model.KindModel,
	}, nil
}

// clean drops the placeholders models emit for unknown values.
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "unknown", "n/a", "":
		return ""
	}
	return s
}
