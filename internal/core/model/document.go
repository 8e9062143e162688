package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a document's position in the processing state machine.
type Status string

const (
	StatusPending          Status = "pending"
	StatusFetched          Status = "fetched"
	StatusExtracted        Status = "extracted"
	StatusMerged           Status = "merged"
	StatusResolved         Status = "resolved"
	StatusConflictPending  Status = "conflict_pending"
	StatusImported         Status = "imported"
	StatusFailed           Status = "failed"
	StatusExtractionFailed Status = "extraction_failed"
)

// Terminal reports whether no further automatic processing happens.
func (s Status) Terminal() bool {
	switch s {
	case StatusImported, StatusFailed, StatusExtractionFailed:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusFetched, StatusExtracted, StatusMerged, StatusResolved,
		StatusConflictPending, StatusImported, StatusFailed, StatusExtractionFailed:
		return st, true
	}
	return "", false
}

// Metadata is whatever the raw extractor could read from page markup.
type Metadata struct {
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	BirthDate       string `json:"birth_date,omitempty" yaml:"birth_date,omitempty"`
	DeathDate       string `json:"death_date,omitempty" yaml:"death_date,omitempty"`
	Location        string `json:"location,omitempty" yaml:"location,omitempty"`
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
}

// SourceDocument is the persisted per-URL processing record.
type SourceDocument struct {
	ID         string        `json:"id" yaml:"id"`
	URL        string        `json:"url" yaml:"url"`
	Source     string        `json:"source" yaml:"source"`
	Status     Status        `json:"status" yaml:"status"`
	RawText    string        `json:"-" yaml:"-"`
	Text       string        `json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	Metadata   Metadata      `json:"metadata" yaml:"metadata"`
	Merged     *MergedRecord `json:"merged,omitempty" yaml:"-"`
	RetryCount int           `json:"retry_count" yaml:"retry_count"`
	LastError  string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	DateAdded  time.Time     `json:"date_added" yaml:"date_added"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" yaml:"updated_at"`
}

// DocumentID derives a stable id from the URL so re-adding a URL never
// produces a second Source node.
func DocumentID(rawURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(rawURL))).String()
}

// SourceSite names the site a URL belongs to.
func SourceSite(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "legacy.com" || strings.HasSuffix(host, ".legacy.com") {
		return "legacy.com"
	}
	return host
}

// NewSourceDocument builds a pending document for url.
func NewSourceDocument(rawURL string, now time.Time) SourceDocument {
	rawURL = strings.TrimSpace(rawURL)
	return SourceDocument{
		ID:        DocumentID(rawURL),
		URL:       rawURL,
		Source:    SourceSite(rawURL),
		Status:    StatusPending,
		DateAdded: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeGender maps free-form gender strings to M, F or U.
func NormalizeGender(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man", "boy":
		return "M"
	case "f", "female", "woman", "girl":
		return "F"
	case "":
		return ""
	}
	return "U"
}
