package scrape

import (
	"context"
	"fmt"
	"sync"
)

// Field pairs a selector with the last value it resolved to, which the
// "last" error strategy falls back on.
type Field struct {
	selector *Selector

	mu       sync.Mutex
	previous Result
}

// FieldSet owns the named selectors of one scraper instance and applies
// each field's error policy when extraction fails. Reads are on demand
// and safe to run concurrently.
type FieldSet struct {
	scraper *Scraper
	fields  map[string]*Field
	order   []string
}

func NewFieldSet(scraper *Scraper, selectors []*Selector) (*FieldSet, error) {
	fields := make(map[string]*Field, len(selectors))
	order := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if _, ok := fields[sel.Name()]; ok {
			return nil, fmt.Errorf("duplicate selector name %q", sel.Name())
		}
		fields[sel.Name()] = &Field{selector: sel}
		order = append(order, sel.Name())
	}
	return &FieldSet{scraper: scraper, fields: fields, order: order}, nil
}

// Names returns field names in configuration order.
func (f *FieldSet) Names() []string {
	return f.order
}

// Value resolves the named field against the current snapshot. A failed
// extraction is logged per the field's policy and mapped onto a Result by
// its strategy; the returned error is reserved for unknown fields and
// broken default templates.
func (f *FieldSet) Value(ctx context.Context, name string, vars map[string]any) (Result, error) {
	field, ok := f.fields[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown field %q", name)
	}
	return field.value(ctx, f.scraper, vars)
}

// Values resolves every field, keyed by name.
func (f *FieldSet) Values(ctx context.Context, vars map[string]any) (map[string]Result, error) {
	out := make(map[string]Result, len(f.order))
	for _, name := range f.order {
		result, err := f.Value(ctx, name, vars)
		if err != nil {
			return nil, err
		}
		out[name] = result
	}
	return out, nil
}

func (field *Field) value(ctx context.Context, scraper *Scraper, vars map[string]any) (Result, error) {
	raw, err := scraper.Scrape(ctx, field.selector, vars)

	field.mu.Lock()
	defer field.mu.Unlock()

	if err == nil {
		field.previous = Result{Value: raw, Available: true}
		return field.previous, nil
	}

	policy := field.selector.onError
	policy.LogFailure(ctx, field.selector.Name(), err)

	resolved, resolveErr := policy.Resolve(field.previous, vars)
	if resolveErr != nil {
		return Result{}, resolveErr
	}
	if resolved.Available {
		field.previous = resolved
	}
	return resolved, nil
}
