package scrape

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFunc turns raw markup into a node tree.
type ParseFunc func(raw string) (*html.Node, error)

// Parser returns the named markup parser. Supported names are "html"
// (full document), "fragment" (body fragment) and "xml" (strict element
// tree for feeds). The empty name selects "html".
func Parser(name string) (ParseFunc, error) {
	switch name {
	case "", "html":
		return parseHTML, nil
	case "fragment":
		return parseFragment, nil
	case "xml":
		return parseXML, nil
	}
	return nil, fmt.Errorf("unknown parser %q", name)
}

func parseHTML(raw string) (*html.Node, error) {
	return html.Parse(strings.NewReader(raw))
}

func parseFragment(raw string) (*html.Node, error) {
	body := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(raw), body)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	document := &html.Node{Type: html.DocumentNode}
	document.AppendChild(body)
	return document, nil
}

// parseXML builds an element tree from xml tokens. Names are lowercased
// so css selectors behave the same as they do over parsed html.
func parseXML(raw string) (*html.Node, error) {
	document := &html.Node{Type: html.DocumentNode}
	parent := document

	decoder := xml.NewDecoder(strings.NewReader(raw))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			node := &html.Node{
				Type: html.ElementNode,
				Data: strings.ToLower(tok.Name.Local),
			}
			for _, attr := range tok.Attr {
				node.Attr = append(node.Attr, html.Attribute{
					Key: strings.ToLower(attr.Name.Local),
					Val: attr.Value,
				})
			}
			parent.AppendChild(node)
			parent = node
		case xml.EndElement:
			if parent != document {
				parent = parent.Parent
			}
		case xml.CharData:
			parent.AppendChild(&html.Node{
				Type: html.TextNode,
				Data: string(tok),
			})
		case xml.Comment:
			parent.AppendChild(&html.Node{
				Type: html.CommentNode,
				Data: string(tok),
			})
		}
	}
	return document, nil
}
