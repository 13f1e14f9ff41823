// Package fetch performs the HTTP side of a scraper instance: one
// session-carrying client per instance, with templated headers, params
// and payloads rendered per request.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"pagewatch/lib/render"
	"pagewatch/lib/telemetry"
	"pagewatch/lib/wiredump"
)

const defaultTimeout = time.Second * 10

// Auth carries optional request credentials.
type Auth struct {
	// Type is "basic" (default) or "digest".
	Type     string
	Username string
	Password string
}

// Options configures a Client.
type Options struct {
	// Name identifies the scraper instance in logs.
	Name string
	// Method is the default request method, GET when empty.
	Method string
	// Timeout bounds every request, 10s when zero.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool
	// UserAgent overrides the user-agent header when non-empty.
	UserAgent string
	Auth      *Auth
	// CloudflareBypass wraps the transport to pass Cloudflare's browser
	// checks.
	CloudflareBypass bool
	// MaxRPS caps the request rate when positive.
	MaxRPS float64
	// Headers, Params and Body may contain templates, rendered with the
	// ambient variable map on every request.
	Headers map[string]string
	Params  map[string]string
	Body    string
	// Dump receives request/response traces when non-nil.
	Dump *wiredump.Dir
}

// Response is a completed non-error exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	Cookies    []*http.Cookie
}

// Client wraps a resty client for one scraper instance. The cookie jar is
// shared by every request the instance makes, so sessions established by
// a form submission carry over to content fetches.
type Client struct {
	name    string
	http    *resty.Client
	method  string
	headers *render.MapRenderer
	params  *render.MapRenderer
	body    *render.Renderer
	limiter *rate.Limiter
}

func NewClient(opts Options) (*Client, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetAllowGetMethodPayload(true)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)

	if opts.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.Auth != nil {
		switch opts.Auth.Type {
		case "", "basic":
			client.SetBasicAuth(opts.Auth.Username, opts.Auth.Password)
		case "digest":
			client.SetDigestAuth(opts.Auth.Username, opts.Auth.Password)
		default:
			return nil, fmt.Errorf("unknown auth type %q", opts.Auth.Type)
		}
	}

	telemetry.InstrumentResty(client, "pagewatch/lib/fetch")
	attachDump(client, opts.Dump)

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	headers, err := render.NewMap(opts.Name+".headers", opts.Headers)
	if err != nil {
		return nil, err
	}
	params, err := render.NewMap(opts.Name+".params", opts.Params)
	if err != nil {
		return nil, err
	}
	var body *render.Renderer
	if opts.Body != "" {
		body, err = render.New(opts.Name+".payload", opts.Body)
		if err != nil {
			return nil, err
		}
	}
	var limiter *rate.Limiter
	if opts.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return &Client{
		name:    opts.Name,
		http:    client,
		method:  method,
		headers: headers,
		params:  params,
		body:    body,
		limiter: limiter,
	}, nil
}

// Request performs one rendered exchange. tag names the exchange in trace
// dumps, method falls back to the client default when empty and body
// overrides the configured payload template when non-nil; a
// map[string]string body is submitted as form data.
func (c *Client) Request(ctx context.Context, tag, method, rawURL string, body any, vars map[string]any) (*Response, error) {
	if method == "" {
		method = c.method
	}

	headers, err := c.headers.Render(vars)
	if err != nil {
		return nil, fmt.Errorf("render headers: %w", err)
	}
	params, err := c.params.Render(vars)
	if err != nil {
		return nil, fmt.Errorf("render params: %w", err)
	}
	merged, err := MergeURLParams(rawURL, params)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		err := c.limiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
	}

	req := c.http.R().
		SetContext(context.WithValue(ctx, dumpTagContextKey, tag)).
		SetHeaders(headers)

	switch b := body.(type) {
	case nil:
		if c.body != nil {
			payload, err := c.body.Render(vars)
			if err != nil {
				return nil, fmt.Errorf("render payload: %w", err)
			}
			if payload != "" {
				req.SetBody(payload)
			}
		}
	case map[string]string:
		req.SetFormData(b)
	case string:
		req.SetBody(b)
	default:
		return nil, fmt.Errorf("unsupported request body type %T", body)
	}

	slog.DebugContext(
		ctx, "executing request",
		"client", c.name,
		"tag", tag,
		"method", method,
		"url", merged,
	)

	res, err := req.Execute(method, merged)
	if err != nil {
		return nil, classifyTransportError(method, merged, err)
	}

	if res.StatusCode() >= 400 && res.StatusCode() <= 599 {
		return nil, &StatusError{Method: method, URL: merged, Code: res.StatusCode()}
	}

	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.String(),
		Cookies:    res.Cookies(),
	}, nil
}

func classifyTransportError(method, url string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &RequestError{Method: method, URL: url, Err: err, Timeout: timeout}
}
