package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, markup string) *html.Node {
	node, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	return node
}

func TestGetText(t *testing.T) {
	node := parse(t, `<div>Hello <b>bold</b> world</div>`)
	require.Equal(t, "Hello bold world", GetText(node))
}

func TestGetTextEmptyElement(t *testing.T) {
	node := parse(t, `<div></div>`)
	require.Equal(t, "", GetText(node))
}

func TestCleanText(t *testing.T) {
	require.Equal(
		t,
		"Current Version: 2024.7",
		CleanText("\n\t  Current  Version:\n 2024.7  "),
	)
}

func TestRenderRoundTrip(t *testing.T) {
	node := parse(t, `<p class="x">text</p>`)
	out, err := Render(node)
	require.NoError(t, err)
	require.Contains(t, out, `<p class="x">text</p>`)
}

func TestPretty(t *testing.T) {
	node := parse(t, `<div><span id="v">42</span></div>`)
	out := Pretty(node)

	require.Contains(t, out, `<span id="v">`)
	require.Contains(t, out, "42")
	require.Contains(t, out, "</span>")

	spanLine := ""
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "<span") {
			spanLine = line
		}
	}
	require.True(t, strings.HasPrefix(spanLine, "      "))
}
