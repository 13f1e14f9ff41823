package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// GetText returns the concatenated text of node and all of its
// descendants, in document order.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText strips non-printable runes and collapses whitespace runs so
// scraped text fits on a single log or table line.
func CleanText(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	out := strings.Trim(newStr.String(), " \t\n")
	return innerWhitespace.ReplaceAllString(out, " ")
}

// Render serializes node back to markup.
func Render(node *html.Node) (string, error) {
	var buffer bytes.Buffer
	err := html.Render(&buffer, node)
	if err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// Pretty renders the tree one node per line with two-space indentation.
// Used for trace dumps of parsed documents.
func Pretty(node *html.Node) string {
	var buffer bytes.Buffer
	prettyRecursive(node, &buffer, 0)
	return buffer.String()
}

func prettyRecursive(node *html.Node, buffer *bytes.Buffer, depth int) {
	if node == nil {
		return
	}
	indent := strings.Repeat("  ", depth)

	switch node.Type {
	case html.TextNode:
		text := strings.TrimSpace(node.Data)
		if text != "" {
			buffer.WriteString(indent)
			buffer.WriteString(text)
			buffer.WriteString("\n")
		}
		return
	case html.CommentNode:
		fmt.Fprintf(buffer, "%s<!--%s-->\n", indent, node.Data)
		return
	case html.DoctypeNode:
		fmt.Fprintf(buffer, "%s<!DOCTYPE %s>\n", indent, node.Data)
		return
	}

	childDepth := depth
	if node.Type == html.ElementNode {
		childDepth = depth + 1

		buffer.WriteString(indent)
		buffer.WriteString("<")
		buffer.WriteString(node.Data)
		for _, a := range node.Attr {
			fmt.Fprintf(buffer, " %s=%q", a.Key, a.Val)
		}
		buffer.WriteString(">\n")
	}

	child := node.FirstChild
	for child != nil {
		prettyRecursive(child, buffer, childDepth)
		child = child.NextSibling
	}

	if node.Type == html.ElementNode && !voidElements[node.Data] {
		fmt.Fprintf(buffer, "%s</%s>\n", indent, node.Data)
	}
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}
