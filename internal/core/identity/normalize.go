package identity

import (
	"strconv"
	"strings"
	"unicode"
)

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true,
	"dr": true, "rev": true, "fr": true,
}

// NormalizeName case-folds a display name, collapses whitespace, strips
// leading honorifics and drops punctuation other than hyphens and
// apostrophes. Generational suffixes (jr, sr, ii, iii) are kept.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteRune('\'')
		default:
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	for len(words) > 0 && honorifics[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// Key is the identity fingerprint "name|b:YYYY|d:YYYY"; year parts are
// omitted when unknown.
type Key string

func BuildKey(normalizedName string, birthYear, deathYear int) Key {
	var b strings.Builder
	b.WriteString(normalizedName)
	if birthYear > 0 {
		b.WriteString("|b:")
		b.WriteString(strconv.Itoa(birthYear))
	}
	if deathYear > 0 {
		b.WriteString("|d:")
		b.WriteString(strconv.Itoa(deathYear))
	}
	return Key(b.String())
}

// NameKey is the name part of the key.
func (k Key) NameKey() string {
	name, _, _ := strings.Cut(string(k), "|")
	return name
}

// Years returns the birth and death years encoded in k, 0 when absent.
func (k Key) Years() (birth, death int) {
	parts := strings.Split(string(k), "|")
	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, "b:"):
			birth, _ = strconv.Atoi(p[2:])
		case strings.HasPrefix(p, "d:"):
			death, _ = strconv.Atoi(p[2:])
		}
	}
	return birth, death
}

func (k Key) String() string { return string(k) }
