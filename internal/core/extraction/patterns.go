package extraction

import "regexp"

const (
	longDate    = `[A-Z][a-z]{2,8}\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`
	dayFirst    = `\d{1,2}\s+[A-Z][a-z]{2,8}\.?\s+\d{4}`
	numericDate = `\d{1,2}[/-]\d{1,2}[/-]\d{4}`
	anyDate     = `(?:` + longDate + `|` + dayFirst + `|` + numericDate + `)`
	placeWord   = `(?:St\.\s+)?[A-Z][A-Za-z'\-]+`
	place       = `(` + placeWord + `(?:\s+` + placeWord + `)*(?:,\s*` + placeWord + `(?:\s+` + placeWord + `)*)?)`
	personName  = `([A-Z][a-z'\-]+(?:\s+(?:[A-Z]\.|[A-Z][a-z'\-]+))*)`
)

var (
	// "Kaczmarowski, Maxine T. (NEE Dompke)"
	lastFirstNeeRe = regexp.MustCompile(`([A-Z][A-Za-z'\-]+),\s+([A-Z][A-Za-z.\s]+?)\s*\((?i:nee|née)\s+([A-Za-z'\-]+)\)`)
	// "Maxine T. Kaczmarowski (nee Dompke)"
	firstLastNeeRe = regexp.MustCompile(`([A-Z][A-Za-z.]*(?:\s+[A-Z][A-Za-z.]*)*?)\s+([A-Z][A-Za-z'\-]+)\s+\((?i:nee|née)\s+([A-Za-z'\-]+)\)`)
	titleRe        = regexp.MustCompile(`(?m)^\s*(.+?)\s+Obituary\b`)
	maidenRe       = regexp.MustCompile(`\b(?:n[eé]e|NEE|maiden name)\s+([A-Z][A-Za-z'\-]+)`)

	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)at the age of (\d{1,3})`),
		regexp.MustCompile(`(?i)\baged? (\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3}) years? old`),
		regexp.MustCompile(`\b(\d{1,3}), of\b`),
	}

	// Two dates in parentheses or joined by a dash: "(Jan 12, 1928 - May 24, 2018)".
	dateRangeRe = regexp.MustCompile(`(` + anyDate + `)\s*[-–]\s*(` + anyDate + `)`)

	deathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:died|passed away|passed|entered into rest)\s+(?:peacefully\s+)?(?:on\s+)?(?:\w+day,?\s+)?(` + anyDate + `)`),
		regexp.MustCompile(`(` + longDate + `)(?:,)?\s+at the age of`),
		regexp.MustCompile(`(?:died|passed away)\s+in\s+(\d{4})`),
	}

	birthPatterns = []*regexp.Regexp{
		regexp.MustCompile(`born\s+(?:on\s+)?(` + anyDate + `)`),
		regexp.MustCompile(`born[^.]*?\bin\s+(\d{4})\b`),
	}

	birthPlaceRe = regexp.MustCompile(`\bborn\b[^.]*?\bin\s+` + place)
	deathPlaceRe = regexp.MustCompile(`\b(?:died|passed away)\b[^.]*?\b(?:in|at home in)\s+` + place)
	ofPlaceRe    = regexp.MustCompile(`\b\d{1,3},\s+of\s+` + place)

	femaleRe = regexp.MustCompile(`(?i)\b(she|her|hers|mrs\.|ms\.|miss|daughter|sister|mother|grandmother|aunt|wife|nee|née)\b`)
	maleRe   = regexp.MustCompile(`(?i)\b(he|him|his|mr\.|son|brother|father|grandfather|uncle|husband)\b`)
)

// Relationship mentions. The captured group is the relative's name.
var relationPatterns = []struct {
	re      *regexp.Regexp
	kind    string
	reverse bool // relative is the child
}{
	{regexp.MustCompile(`\b(?:his|her)\s+(?:beloved\s+|loving\s+|late\s+)?(?:wife|husband|spouse)(?:\s+of\s+\d+\s+years)?,?\s+(?:the late\s+)?` + personName), "spouse", false},
	{regexp.MustCompile(`\b(?i:beloved|loving|devoted)\s+(?:wife|husband|spouse)\s+of\s+(?:the late\s+)?` + personName), "spouse", false},
	{regexp.MustCompile(`\bmarried\s+(?:to\s+)?(?:the late\s+)?` + personName), "spouse", false},
	{regexp.MustCompile(`\b(?:his|her)\s+(?:companion|partner)(?:\s+of\s+\d+\s+years)?,?\s+` + personName), "companion", false},
	{regexp.MustCompile(`\b(?i:son|daughter)\s+of\s+(?:the late\s+)?` + personName), "child_of", false},
	{regexp.MustCompile(`\b(?:his|her)\s+(?:late\s+)?(?:father|mother)\s+` + personName), "child_of", false},
	{regexp.MustCompile(`\b(?:his|her)\s+(?:beloved\s+|late\s+)?(?:son|daughter)\s+` + personName), "child_of", true},
	{regexp.MustCompile(`\b(?:his|her)\s+(?:beloved\s+|late\s+)?(?:brother|sister)\s+` + personName), "sibling", false},
	{regexp.MustCompile(`\b(?i:dear|loving)\s+(?:brother|sister)\s+of\s+(?:the late\s+)?` + personName), "sibling", false},
}
