package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NameNormalizer rewrites a normalized name before it becomes part of a key.
type NameNormalizer interface {
	Canonical(normalizedName string) string
}

type identityNormalizer struct{}

func (identityNormalizer) Canonical(s string) string { return s }

// VariantTable is the on-disk form:
//
//	first_names:
//	  terrence: [terry, terrance]
//	last_names:
//	  kaczmarowski: [kaczmarowsky]
type VariantTable struct {
	FirstNames map[string][]string `yaml:"first_names"`
	LastNames  map[string][]string `yaml:"last_names"`
}

// VariantNormalizer maps first and last name variants onto their canonical spelling.
type VariantNormalizer struct {
	first map[string]string
	last  map[string]string
}

func NewVariantNormalizer(t VariantTable) *VariantNormalizer {
	return &VariantNormalizer{
		first: buildVariantMap(t.FirstNames),
		last:  buildVariantMap(t.LastNames),
	}
}

func buildVariantMap(in map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, variants := range in {
		c := NormalizeName(canonical)
		out[c] = c
		for _, v := range variants {
			out[NormalizeName(v)] = c
		}
	}
	return out
}

// LoadVariants reads a YAML variant table.
func LoadVariants(path string) (*VariantNormalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read name variants: %w", err)
	}
	var t VariantTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse name variants %s: %w", path, err)
	}
	return NewVariantNormalizer(t), nil
}

// Canonical rewrites the first and last word of the name. Middle names and
// suffixes pass through.
func (v *VariantNormalizer) Canonical(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return name
	}
	if c, ok := v.first[words[0]]; ok {
		words[0] = c
	}
	last := len(words) - 1
	if isSuffix(words[last]) && last > 1 {
		last--
	}
	if last > 0 {
		if c, ok := v.last[words[last]]; ok {
			words[last] = c
		}
	}
	return strings.Join(words, " ")
}

func isSuffix(w string) bool {
	switch w {
	case "jr", "sr", "ii", "iii", "iv":
		return true
	}
	return false
}
