package fetch

import (
	"fmt"
	"strings"

	"github.com/agenthands/lineage/internal/core/model"
)

// RawExtractor turns fetched content into clean text and metadata.
type RawExtractor interface {
	Extract(raw string) (string, model.Metadata, error)
}

// PlainText accepts content that is already text.
type PlainText struct{}

func (PlainText) Extract(raw string) (string, model.Metadata, error) {
	text := collapse(raw)
	if len(text) < MinTextLength {
		return "", model.Metadata{}, fmt.Errorf("%w: text too short (%d chars)", model.ErrExtraction, len(text))
	}
	return text, model.Metadata{}, nil
}

// Registry picks a RawExtractor by source site, falling back to a default.
type Registry struct {
	bySite   map[string]RawExtractor
	fallback RawExtractor
}

func NewRegistry(fallback RawExtractor) *Registry {
	if fallback == nil {
		fallback = HTMLTextExtractor{}
	}
	return &Registry{bySite: map[string]RawExtractor{}, fallback: fallback}
}

// Register binds an extractor to a site as returned by model.SourceSite.
func (r *Registry) Register(site string, e RawExtractor) {
	r.bySite[strings.ToLower(site)] = e
}

func (r *Registry) For(url string) RawExtractor {
	if e, ok := r.bySite[model.SourceSite(url)]; ok {
		return e
	}
	return r.fallback
}

// Extract dispatches to the extractor registered for url. Content that does
// not look like markup is treated as plain text.
func (r *Registry) Extract(url, raw string) (string, model.Metadata, error) {
	e := r.For(url)
	if _, isHTML := e.(HTMLTextExtractor); isHTML && !looksLikeHTML(raw) {
		e = PlainText{}
	}
	return e.Extract(raw)
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<") || strings.Contains(head, "<html") || strings.Contains(head, "<body")
}
