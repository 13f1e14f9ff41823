package scrape

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pagewatch/lib/wiredump"
)

var tracer = otel.Tracer("pagewatch/lib/scrape")

// Scraper holds the current content snapshot and resolves selectors
// against it. SetContent and Reset swap the snapshot atomically, so
// value reads are safe to run concurrently with refresh cycles.
type Scraper struct {
	name    string
	parse   ParseFunc
	dump    *wiredump.Dir
	content atomic.Pointer[Content]
}

// NewScraper builds a scraper using the named parser for markup content.
// dump may be nil to disable parsed-tree traces.
func NewScraper(name, parser string, dump *wiredump.Dir) (*Scraper, error) {
	parse, err := Parser(parser)
	if err != nil {
		return nil, err
	}
	s := &Scraper{name: name, parse: parse, dump: dump}
	s.content.Store(&Content{})
	return s, nil
}

// SetContent replaces the snapshot with freshly fetched content. On parse
// failure the snapshot resets so readers never see a stale document.
func (s *Scraper) SetContent(ctx context.Context, raw string) error {
	ctx, span := tracer.Start(ctx, "SetContent")
	defer span.End()

	content, err := NewContent(raw, s.parse)
	if err != nil {
		s.Reset()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse content")
		return err
	}
	s.content.Store(content)
	span.SetAttributes(attribute.String("kind", content.Kind.String()))
	slog.DebugContext(
		ctx, "content loaded",
		"scraper", s.name,
		"kind", content.Kind.String(),
		"bytes", len(raw),
	)

	if content.Kind == KindMarkup {
		s.dump.Write("page_soup", content.Pretty())
	}
	return nil
}

// Reset drops the snapshot, leaving the scraper without content.
func (s *Scraper) Reset() {
	s.content.Store(&Content{})
}

// Snapshot returns the current content snapshot, never nil.
func (s *Scraper) Snapshot() *Content {
	return s.content.Load()
}

// Scrape resolves sel against the current snapshot. vars is the ambient
// variable map selector templates render with.
func (s *Scraper) Scrape(ctx context.Context, sel *Selector, vars map[string]any) (string, error) {
	_, span := tracer.Start(ctx, "Scrape", trace.WithAttributes(
		attribute.String("selector", sel.Name()),
	))
	defer span.End()

	value, err := sel.resolve(s.Snapshot(), vars)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve selector")
		return "", err
	}
	return value, nil
}
