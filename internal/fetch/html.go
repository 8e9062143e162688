package fetch

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/agenthands/lineage/internal/core/model"
)

// MinTextLength is the shortest text accepted as an obituary.
const MinTextLength = 50

var (
	containerClasses = []string{
		"obituarytext", "obituary-text", "obituary__text", "obituary-content",
		"obit-text", "obit-content", "obituary", "obit",
	}
	containerIDs = []string{
		"obituary", "obit", "obituary-content", "obituary-text", "obit-content", "obit-text",
	}

	spaceRe       = regexp.MustCompile(`\s+`)
	obitSuffixRe  = regexp.MustCompile(`(?i)\s+Obituary.*$`)
	skippedAtoms  = map[atom.Atom]bool{atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true, atom.Nav: true, atom.Footer: true}
	blockTextAtom = map[atom.Atom]bool{atom.P: true, atom.Div: true, atom.Section: true}
)

// HTMLTextExtractor turns an obituary page into plain text plus whatever
// metadata the markup carries.
type HTMLTextExtractor struct{}

func (HTMLTextExtractor) Extract(raw string) (string, model.Metadata, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", model.Metadata{}, fmt.Errorf("%w: parse html: %v", model.ErrExtraction, err)
	}

	var meta model.Metadata
	readHead(doc, &meta)

	var text string
	if n := findContainer(doc); n != nil {
		text = textOf(n)
	} else {
		text = longestBlock(doc)
	}
	if len(text) < MinTextLength {
		if desc := metaContent(doc, "description"); len(desc) > len(text) {
			text = desc
		}
	}

	if len(text) < MinTextLength {
		return "", meta, fmt.Errorf("%w: text too short (%d chars)", model.ErrExtraction, len(text))
	}
	return text, meta, nil
}

// readHead reads "Maxine Kaczmarowski Obituary (2018) - Milwaukee, WI - Publisher"
// style titles and the publication date meta tag.
func readHead(doc *html.Node, meta *model.Metadata) {
	if t := findFirst(doc, atom.Title); t != nil {
		parts := strings.Split(collapse(rawText(t)), " - ")
		if len(parts) >= 2 {
			meta.Name = strings.TrimSpace(obitSuffixRe.ReplaceAllString(parts[0], ""))
			meta.Location = strings.TrimSpace(parts[1])
		}
	}
	meta.PublicationDate = metaContent(doc, "article:published_time")
}

func metaContent(doc *html.Node, name string) string {
	var out string
	walk(doc, func(n *html.Node) bool {
		if out != "" {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			key := attr(n, "name")
			if key == "" {
				key = attr(n, "property")
			}
			if strings.EqualFold(key, name) {
				out = collapse(attr(n, "content"))
				return false
			}
		}
		return true
	})
	return out
}

func findContainer(doc *html.Node) *html.Node {
	if n := findFirst(doc, atom.Article); n != nil && len(textOf(n)) >= MinTextLength {
		return n
	}
	var found *html.Node
	for _, want := range containerClasses {
		walk(doc, func(n *html.Node) bool {
			if found != nil || skippedAtoms[n.DataAtom] {
				return false
			}
			if n.Type != html.ElementNode {
				return true
			}
			for _, c := range strings.Fields(strings.ToLower(attr(n, "class"))) {
				if c == want {
					found = n
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	for _, want := range containerIDs {
		walk(doc, func(n *html.Node) bool {
			if found != nil || skippedAtoms[n.DataAtom] {
				return false
			}
			if n.Type != html.ElementNode {
				return true
			}
			if strings.EqualFold(attr(n, "id"), want) {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// longestBlock falls back to the largest paragraph or div; a page without
// one yields all of its body text.
func longestBlock(doc *html.Node) string {
	var best string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && skippedAtoms[n.DataAtom] {
			return false
		}
		if n.Type == html.ElementNode && blockTextAtom[n.DataAtom] {
			if t := textOf(n); len(t) > 100 && len(t) > len(best) {
				best = t
			}
		}
		return true
	})
	if best == "" {
		if body := findFirst(doc, atom.Body); body != nil {
			return textOf(body)
		}
	}
	return best
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && skippedAtoms[c.DataAtom] {
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return collapse(b.String())
}

func rawText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func findFirst(doc *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits n depth first; visit returning false prunes the subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
