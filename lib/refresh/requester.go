// Package refresh drives the authenticate, fetch, parse, extract cycle
// of one scraper instance, on a timer or by manual trigger.
package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"pagewatch/lib/fetch"
	"pagewatch/lib/form"
	"pagewatch/lib/render"
)

// Requester obtains the content for one cycle: it renders the resource
// URL, runs the form submitter when one is configured, and falls back to
// fetching the main resource.
type Requester struct {
	name     string
	client   *fetch.Client
	resource *render.Renderer
	form     *form.Submitter
}

// NewRequester compiles the resource URL, which may be a template
// rendered once per cycle. submitter may be nil when no form is
// configured.
func NewRequester(name, resource string, client *fetch.Client, submitter *form.Submitter) (*Requester, error) {
	renderer, err := render.New(name+".resource", resource)
	if err != nil {
		return nil, err
	}
	return &Requester{
		name:     name,
		client:   client,
		resource: renderer,
		form:     submitter,
	}, nil
}

// NotifyError forwards a cycle failure to the form submitter so it can
// re-authenticate next cycle.
func (r *Requester) NotifyError() {
	if r.form != nil {
		r.form.NotifyError()
	}
}

// Content returns the cycle's raw content plus the variable map the
// form submission produced.
func (r *Requester) Content(ctx context.Context) (string, map[string]any, error) {
	resource, err := r.resource.Render(nil)
	if err != nil {
		return "", nil, fmt.Errorf("render resource url: %w", err)
	}

	var vars map[string]any
	if r.form != nil {
		result, err := r.form.Submit(ctx, resource)
		if err != nil {
			return "", nil, err
		}
		vars = result.Variables
		if result.HasContent {
			slog.DebugContext(
				ctx, "using form submit response as content",
				"requester", r.name,
			)
			return result.Content, vars, nil
		}
	}

	res, err := r.client.Request(ctx, "page", "", resource, nil, vars)
	if err != nil {
		return "", nil, err
	}
	return res.Body, vars, nil
}
