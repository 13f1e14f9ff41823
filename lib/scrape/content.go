package scrape

import (
	"encoding/json"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"pagewatch/lib/htmlutil"
)

// Kind classifies loaded content.
type Kind int

const (
	KindNone Kind = iota
	KindMarkup
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindMarkup:
		return "markup"
	case KindJSON:
		return "json"
	}
	return "none"
}

// Content is an immutable snapshot of fetched content. Snapshots are
// replaced wholesale on refresh and never mutated, so concurrent readers
// can hold one safely.
type Content struct {
	Raw  string
	Kind Kind

	root      *html.Node
	doc       *goquery.Document
	jsonValue any
}

// sniffJSON reports whether the first non-whitespace character opens a
// JSON document.
func sniffJSON(raw string) bool {
	for _, c := range raw {
		if unicode.IsSpace(c) {
			continue
		}
		return c == '{' || c == '['
	}
	return false
}

// NewContent classifies raw and, for markup, parses it into an element
// tree with parse. JSON content is never tree-parsed; its decoded form is
// kept for value templates and decode failures are ignored, the heuristic
// only loses template access to the "json" variable.
func NewContent(raw string, parse ParseFunc) (*Content, error) {
	if sniffJSON(raw) {
		content := &Content{Raw: raw, Kind: KindJSON}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			content.jsonValue = decoded
		}
		return content, nil
	}

	root, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &Content{
		Raw:  raw,
		Kind: KindMarkup,
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

// Pretty returns an indented rendering of markup content, or the raw
// content for anything else.
func (c *Content) Pretty() string {
	if c == nil || c.Kind != KindMarkup {
		if c == nil {
			return ""
		}
		return c.Raw
	}
	return htmlutil.Pretty(c.root)
}
