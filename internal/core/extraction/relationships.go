package extraction

import (
	"strings"

	"github.com/agenthands/lineage/internal/core/identity"
	"github.com/agenthands/lineage/internal/core/model"
)

var titles = []string{"Dr.", "Mr.", "Mrs.", "Ms.", "Rev.", "Fr."}

// Relationships finds family members of the subject mentioned in text. A
// relative given only by first name inherits the subject's last name.
// Relatives carry name-only identity keys built with canonical, the same
// naming the subject's key uses; nothing is known of their dates. A nil
// canonical only normalizes.
func Relationships(text string, subject identity.Key, subjectName string, canonical func(string) string) []model.RelationshipMention {
	if canonical == nil {
		canonical = identity.NormalizeName
	}
	lastName := ""
	if words := strings.Fields(subjectName); len(words) > 1 {
		lastName = words[len(words)-1]
	}

	var out []model.RelationshipMention
	seen := map[string]bool{}
	for _, p := range relationPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			name := cleanRelativeName(m[1], lastName)
			norm := canonical(name)
			if norm == "" || norm == subject.NameKey() {
				continue
			}
			relKey := identity.BuildKey(norm, 0, 0).String()
			mention := model.RelationshipMention{
				FromKey: subject.String(),
				ToKey:   relKey,
				Kind:    model.RelationshipKind(p.kind),
				Name:    name,
			}
			if p.reverse {
				mention.FromKey, mention.ToKey = relKey, subject.String()
			}
			if seen[mention.DedupKey()] {
				continue
			}
			seen[mention.DedupKey()] = true
			out = append(out, mention)
		}
	}
	return out
}

func cleanRelativeName(name, lastName string) string {
	name = strings.TrimSpace(name)
	for _, t := range titles {
		name = strings.TrimSpace(strings.TrimPrefix(name, t))
	}
	if !strings.Contains(name, " ") && lastName != "" {
		name += " " + lastName
	}
	return name
}
