package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"pagewatch/lib/htmlutil"
	"pagewatch/lib/render"
)

// ExtractMode selects which part of a matched element becomes the value.
type ExtractMode string

const (
	// ExtractText takes the concatenated descendant text.
	ExtractText ExtractMode = "text"
	// ExtractContent takes the element's inner markup.
	ExtractContent ExtractMode = "content"
	// ExtractTag takes the element's outer markup.
	ExtractTag ExtractMode = "tag"
)

// SelectorConfig is the configured form of one extraction.
//
// Exactly one of Select and SelectList may be set. When neither is set a
// ValueTemplate must be, and it renders directly against the raw content.
type SelectorConfig struct {
	Name          string        `json:"name"`
	Select        string        `json:"select"`
	SelectList    string        `json:"select_list"`
	Attribute     string        `json:"attribute"`
	Extract       string        `json:"extract"`
	Separator     string        `json:"separator"`
	ValueTemplate string        `json:"value_template"`
	OnError       OnErrorConfig `json:"on_error"`
}

// Selector is a compiled extraction descriptor. Selectors are immutable
// after construction and safe for concurrent use.
type Selector struct {
	name      string
	matcher   cascadia.Selector
	list      bool
	attribute string
	extract   ExtractMode
	separator string
	template  *render.Renderer
	onError   OnError
}

// NewSelector compiles cfg. CSS paths and templates are validated here so
// a selector that constructs will never fail on syntax at scrape time.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("selector requires a name")
	}
	if cfg.Select != "" && cfg.SelectList != "" {
		return nil, fmt.Errorf("selector %q: select and select_list are mutually exclusive", cfg.Name)
	}
	if cfg.Select == "" && cfg.SelectList == "" && cfg.ValueTemplate == "" {
		return nil, fmt.Errorf("selector %q: requires select, select_list or value_template", cfg.Name)
	}

	out := &Selector{
		name:      cfg.Name,
		extract:   ExtractText,
		separator: ",",
	}

	path := cfg.Select
	if cfg.SelectList != "" {
		path = cfg.SelectList
		out.list = true
	}
	if path != "" {
		matcher, err := cascadia.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("selector %q: compile css path: %w", cfg.Name, err)
		}
		out.matcher = matcher
	}

	switch ExtractMode(cfg.Extract) {
	case "":
	case ExtractText, ExtractContent, ExtractTag:
		out.extract = ExtractMode(cfg.Extract)
	default:
		return nil, fmt.Errorf("selector %q: unknown extract mode %q", cfg.Name, cfg.Extract)
	}

	out.attribute = cfg.Attribute
	if cfg.Separator != "" {
		out.separator = cfg.Separator
	}
	if cfg.ValueTemplate != "" {
		tmpl, err := render.New(cfg.Name+".value_template", cfg.ValueTemplate)
		if err != nil {
			return nil, err
		}
		out.template = tmpl
	}

	onError, err := newOnError(cfg.Name, cfg.OnError)
	if err != nil {
		return nil, err
	}
	out.onError = onError
	return out, nil
}

func (s *Selector) Name() string {
	return s.name
}

// resolve extracts the selector's value from content. vars is the ambient
// variable map templates render with, in addition to "value".
func (s *Selector) resolve(content *Content, vars map[string]any) (string, error) {
	if content == nil || content.Kind == KindNone {
		return "", ErrNoContent
	}

	if s.matcher == nil {
		data := render.Variables(content.Raw, vars)
		if content.jsonValue != nil {
			data["json"] = content.jsonValue
		}
		return s.template.Render(data)
	}

	if content.Kind != KindMarkup {
		return "", ErrUnsupportedContent
	}

	var value string
	if s.list {
		joined, err := s.resolveList(content)
		if err != nil {
			return "", err
		}
		value = joined
	} else {
		sel := content.doc.FindMatcher(s.matcher).First()
		if sel.Length() == 0 {
			return "", ErrNoMatch
		}
		extracted, err := s.extractOne(sel)
		if err != nil {
			return "", err
		}
		value = extracted
	}

	if s.template != nil {
		return s.template.Render(render.Variables(value, vars))
	}
	return value, nil
}

// resolveList joins every match with the separator. Zero matches join to
// the empty string rather than erroring.
func (s *Selector) resolveList(content *Content) (string, error) {
	sel := content.doc.FindMatcher(s.matcher)
	parts := make([]string, 0, sel.Length())

	var extractErr error
	sel.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		part, err := s.extractOne(el)
		if err != nil {
			extractErr = err
			return false
		}
		parts = append(parts, part)
		return true
	})
	if extractErr != nil {
		return "", extractErr
	}
	return strings.Join(parts, s.separator), nil
}

func (s *Selector) extractOne(el *goquery.Selection) (string, error) {
	node := el.Nodes[0]

	// Raw-text elements keep their source text no matter the mode.
	if node.Type == html.ElementNode {
		switch node.Data {
		case "style", "script", "template":
			return htmlutil.GetText(node), nil
		}
	}

	if s.attribute != "" {
		value, ok := el.Attr(s.attribute)
		if !ok {
			return "", fmt.Errorf("element has no attribute %q", s.attribute)
		}
		return value, nil
	}

	switch s.extract {
	case ExtractContent:
		return el.Html()
	case ExtractTag:
		return htmlutil.Render(node)
	}
	return el.Text(), nil
}
