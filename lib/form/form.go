// Package form submits a login form ahead of the main content fetch so
// the shared cookie jar carries an authenticated session.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"pagewatch/lib/fetch"
	"pagewatch/lib/htmlutil"
	"pagewatch/lib/render"
	"pagewatch/lib/scrape"
	"pagewatch/lib/wiredump"
)

var tracer = otel.Tracer("pagewatch/lib/form")

// Config is the configured form of a form submission.
type Config struct {
	// PageURL is the page holding the login form. When empty the main
	// resource URL is used, and the submit response doubles as the
	// cycle's content.
	PageURL string `json:"page_url"`
	// Select locates the form element. When empty no page is fetched
	// and every input value must come from Inputs.
	Select string `json:"select"`
	// Inputs are static input values, overriding scraped ones.
	Inputs map[string]string `json:"inputs"`
	// InputFilter names scraped inputs to drop before submitting.
	InputFilter []string `json:"input_filter"`
	SubmitOnce  bool     `json:"submit_once"`
	// ResubmitOnError re-arms the submitter when a later pipeline stage
	// fails. Defaults to true.
	ResubmitOnError *bool `json:"resubmit_on_error"`
	// Parser names the markup parser for the form and submit pages.
	Parser string `json:"parser"`
	// Variables are selectors evaluated against the submit response;
	// their values feed every template rendered later in the cycle.
	Variables []scrape.SelectorConfig `json:"variables"`
}

// Result is the outcome of one submission pass.
type Result struct {
	// Content holds the submit response body when the submission itself
	// produced the page to scrape, which is the case whenever no
	// dedicated form page URL is configured.
	Content    string
	HasContent bool
	// Variables maps variable-selector names onto the values they
	// resolved from the submit response.
	Variables map[string]any
}

// Submitter owns the submit-once state of one configured form. It is
// driven by the refresh coordinator and never shared across instances.
type Submitter struct {
	name            string
	client          *fetch.Client
	pageURL         *render.Renderer
	matcher         cascadia.Selector
	inputs          map[string]string
	inputFilter     []string
	submitOnce      bool
	resubmitOnError bool
	parse           scrape.ParseFunc
	parser          string
	variables       []*scrape.Selector
	dump            *wiredump.Dir

	shouldSubmit bool
	vars         map[string]any
}

// NewSubmitter compiles cfg against the instance's fetch client. dump may
// be nil to disable form-page traces.
func NewSubmitter(name string, cfg Config, client *fetch.Client, dump *wiredump.Dir) (*Submitter, error) {
	out := &Submitter{
		name:            name,
		client:          client,
		inputs:          cfg.Inputs,
		inputFilter:     cfg.InputFilter,
		submitOnce:      cfg.SubmitOnce,
		resubmitOnError: cfg.ResubmitOnError == nil || *cfg.ResubmitOnError,
		parser:          cfg.Parser,
		dump:            dump,
		shouldSubmit:    true,
	}

	parse, err := scrape.Parser(cfg.Parser)
	if err != nil {
		return nil, err
	}
	out.parse = parse

	if cfg.PageURL != "" {
		pageURL, err := render.New(name+".form.page_url", cfg.PageURL)
		if err != nil {
			return nil, err
		}
		out.pageURL = pageURL
	}
	if cfg.Select != "" {
		matcher, err := cascadia.Compile(cfg.Select)
		if err != nil {
			return nil, fmt.Errorf("form %q: compile css path: %w", name, err)
		}
		out.matcher = matcher
	}
	for _, selCfg := range cfg.Variables {
		sel, err := scrape.NewSelector(selCfg)
		if err != nil {
			return nil, err
		}
		out.variables = append(out.variables, sel)
	}
	return out, nil
}

// NotifyError re-arms the submitter after a later pipeline stage failed,
// so the next cycle authenticates again.
func (s *Submitter) NotifyError() {
	if !s.resubmitOnError {
		return
	}
	slog.Debug(
		"refresh failed, form will be resubmitted next cycle",
		"form", s.name,
	)
	s.shouldSubmit = true
}

// Submit runs one submission pass against mainURL. A pass skipped by
// submit-once returns the variable map cached from the last submission.
func (s *Submitter) Submit(ctx context.Context, mainURL string) (Result, error) {
	if !s.shouldSubmit {
		slog.DebugContext(ctx, "skipping form submit", "form", s.name)
		return Result{Variables: s.vars}, nil
	}

	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()

	pageURL := mainURL
	if s.pageURL != nil {
		rendered, err := s.pageURL.Render(s.vars)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to render form page url")
			return Result{}, fmt.Errorf("render form page url: %w", err)
		}
		pageURL = rendered
	}

	inputs := map[string]string{}
	var action, method string

	if s.matcher != nil {
		form, err := s.fetchForm(ctx, pageURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to locate form")
			return Result{}, err
		}
		inputs = harvestInputs(form)
		for _, name := range s.inputFilter {
			delete(inputs, name)
		}
		action = form.AttrOr("action", "")
		method = form.AttrOr("method", "")
		slog.DebugContext(
			ctx, "found form",
			"form", s.name,
			"action", action,
			"method", method,
			"inputs", len(inputs),
		)
	} else {
		slog.DebugContext(
			ctx, "no form selector, submitting configured inputs",
			"form", s.name,
		)
	}

	for k, v := range s.inputs {
		inputs[k] = v
	}
	if method == "" {
		method = http.MethodPost
	}

	submitURL, err := submitTarget(action, s.configuredPageURL(pageURL), mainURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve submit url")
		return Result{}, err
	}

	res, err := s.client.Request(ctx, "form_submit", method, submitURL, inputs, s.vars)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "form submission failed")
		return Result{}, err
	}
	slog.DebugContext(ctx, "form submitted", "form", s.name, "url", submitURL)

	if s.submitOnce {
		s.shouldSubmit = false
	}
	s.vars = s.scrapeVariables(ctx, res.Body)

	if s.pageURL == nil {
		return Result{Content: res.Body, HasContent: true, Variables: s.vars}, nil
	}
	return Result{Variables: s.vars}, nil
}

// configuredPageURL returns the rendered page URL only when one was
// configured; the submit-target precedence must not treat a fallback to
// the main resource as a dedicated form page.
func (s *Submitter) configuredPageURL(rendered string) string {
	if s.pageURL == nil {
		return ""
	}
	return rendered
}

// fetchForm loads the form page and returns the first element matching
// the form selector.
func (s *Submitter) fetchForm(ctx context.Context, pageURL string) (*goquery.Selection, error) {
	res, err := s.client.Request(ctx, "form_page", http.MethodGet, pageURL, nil, s.vars)
	if err != nil {
		return nil, err
	}
	root, err := s.parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse form page: %w", err)
	}
	s.dump.Write("form_page_soup", htmlutil.Pretty(root))

	form := goquery.NewDocumentFromNode(root).FindMatcher(s.matcher).First()
	if form.Length() == 0 {
		return nil, ErrFormNotFound
	}
	return form, nil
}

// harvestInputs maps the form's input descendants by name. Inputs
// without a name attribute are dropped.
func harvestInputs(form *goquery.Selection) map[string]string {
	inputs := map[string]string{}
	form.Find("input").Each(func(_ int, el *goquery.Selection) {
		name, ok := el.Attr("name")
		if !ok || name == "" {
			return
		}
		inputs[name] = el.AttrOr("value", "")
	})
	return inputs
}

// submitTarget resolves where the form posts to. An action resolves
// relative to the form page when one is configured, else relative to the
// main resource; without an action the form page wins over the main
// resource.
func submitTarget(action, pageURL, mainURL string) (string, error) {
	switch {
	case action != "" && pageURL != "":
		return resolveRef(pageURL, action)
	case action != "":
		return resolveRef(mainURL, action)
	case pageURL != "":
		return pageURL, nil
	}
	return mainURL, nil
}

func resolveRef(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse form action %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// scrapeVariables evaluates the variable selectors against the submit
// response. Individual selector failures leave the variable empty rather
// than failing the submission.
func (s *Submitter) scrapeVariables(ctx context.Context, body string) map[string]any {
	if len(s.variables) == 0 {
		return nil
	}

	vars := make(map[string]any, len(s.variables))
	scraper, err := scrape.NewScraper(s.name+".form", s.parser, nil)
	if err == nil {
		err = scraper.SetContent(ctx, body)
	}
	if err != nil {
		slog.WarnContext(
			ctx, "failed to parse submit response for form variables",
			"form", s.name,
			"err", err,
		)
		for _, sel := range s.variables {
			vars[sel.Name()] = ""
		}
		return vars
	}

	for _, sel := range s.variables {
		value, err := scraper.Scrape(ctx, sel, nil)
		if err != nil {
			slog.WarnContext(
				ctx, "form variable failed to resolve",
				"form", s.name,
				"variable", sel.Name(),
				"err", err,
			)
			value = ""
		}
		vars[sel.Name()] = value
	}
	return vars
}
