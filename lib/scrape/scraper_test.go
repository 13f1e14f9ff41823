package scrape

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pagewatch/lib/wiredump"
)

func TestScraperSetContentAndReset(t *testing.T) {
	ctx := context.Background()
	scraper, err := NewScraper("page", "html", nil)
	require.NoError(t, err)

	sel, err := NewSelector(SelectorConfig{Name: "title", Select: "h1"})
	require.NoError(t, err)

	// Nothing loaded yet.
	_, err = scraper.Scrape(ctx, sel, nil)
	require.ErrorIs(t, err, ErrNoContent)

	err = scraper.SetContent(ctx, `<h1>hello</h1>`)
	require.NoError(t, err)
	value, err := scraper.Scrape(ctx, sel, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", value)

	scraper.Reset()
	_, err = scraper.Scrape(ctx, sel, nil)
	require.ErrorIs(t, err, ErrNoContent)
	require.Equal(t, KindNone, scraper.Snapshot().Kind)
}

func TestScraperJSONContent(t *testing.T) {
	ctx := context.Background()
	scraper, err := NewScraper("page", "html", nil)
	require.NoError(t, err)

	err = scraper.SetContent(ctx, `{"temp": 21.5}`)
	require.NoError(t, err)
	require.Equal(t, KindJSON, scraper.Snapshot().Kind)

	sel, err := NewSelector(SelectorConfig{
		Name:          "temp",
		ValueTemplate: "{{.json.temp}}",
	})
	require.NoError(t, err)
	value, err := scraper.Scrape(ctx, sel, nil)
	require.NoError(t, err)
	require.Equal(t, "21.5", value)
}

func TestScraperSoupDump(t *testing.T) {
	ctx := context.Background()
	dir := wiredump.New(t.TempDir())
	scraper, err := NewScraper("page", "html", dir)
	require.NoError(t, err)

	err = scraper.SetContent(ctx, `<div id="a">x</div>`)
	require.NoError(t, err)

	dumped, err := os.ReadFile(filepath.Join(dir.Path(), "page_soup.txt"))
	require.NoError(t, err)
	require.Contains(t, string(dumped), `<div id="a">`)
}

func TestFieldSetPolicies(t *testing.T) {
	ctx := context.Background()
	scraper, err := NewScraper("page", "html", nil)
	require.NoError(t, err)

	selectors := make([]*Selector, 0, 3)
	for _, cfg := range []SelectorConfig{
		{
			Name:    "keeps_last",
			Select:  ".value",
			OnError: OnErrorConfig{Log: "none", Value: "last"},
		},
		{
			Name:    "goes_none",
			Select:  ".value",
			OnError: OnErrorConfig{Log: "none"},
		},
		{
			Name:    "falls_back",
			Select:  ".value",
			OnError: OnErrorConfig{Log: "none", Value: "default", Default: "n/a"},
		},
	} {
		sel, err := NewSelector(cfg)
		require.NoError(t, err)
		selectors = append(selectors, sel)
	}

	fields, err := NewFieldSet(scraper, selectors)
	require.NoError(t, err)
	require.Equal(t, []string{"keeps_last", "goes_none", "falls_back"}, fields.Names())

	err = scraper.SetContent(ctx, `<div class="value">7</div>`)
	require.NoError(t, err)

	values, err := fields.Values(ctx, nil)
	require.NoError(t, err)
	for _, name := range fields.Names() {
		require.True(t, values[name].Available)
		require.Equal(t, "7", values[name].Value)
	}

	// The element disappears on the next refresh.
	err = scraper.SetContent(ctx, `<div class="other"></div>`)
	require.NoError(t, err)

	result, err := fields.Value(ctx, "keeps_last", nil)
	require.NoError(t, err)
	require.True(t, result.Available)
	require.Equal(t, "7", result.Value)

	result, err = fields.Value(ctx, "goes_none", nil)
	require.NoError(t, err)
	require.False(t, result.Available)

	result, err = fields.Value(ctx, "falls_back", nil)
	require.NoError(t, err)
	require.True(t, result.Available)
	require.Equal(t, "n/a", result.Value)

	// Repeated failures keep producing the fallback.
	result, err = fields.Value(ctx, "falls_back", nil)
	require.NoError(t, err)
	require.Equal(t, "n/a", result.Value)

	_, err = fields.Value(ctx, "unknown", nil)
	require.Error(t, err)
}

func TestFieldSetDuplicateNames(t *testing.T) {
	scraper, err := NewScraper("page", "html", nil)
	require.NoError(t, err)

	a, err := NewSelector(SelectorConfig{Name: "dup", Select: ".a"})
	require.NoError(t, err)
	b, err := NewSelector(SelectorConfig{Name: "dup", Select: ".b"})
	require.NoError(t, err)

	_, err = NewFieldSet(scraper, []*Selector{a, b})
	require.Error(t, err)
}
