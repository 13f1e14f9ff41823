package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"pagewatch/lib/wiredump"
)

type contextKey int

const dumpTagContextKey contextKey = iota

// attachDump registers middleware that writes every exchange to dump as
// request/response header, body and cookie files named by the request's
// trace tag.
func attachDump(client *resty.Client, dump *wiredump.Dir) {
	if dump == nil {
		return
	}
	d := dumper{dump: dump}
	client.OnBeforeRequest(d.onBeforeRequest)
	client.OnAfterResponse(d.onAfterResponse)
	client.OnError(d.onError)
}

type dumper struct {
	dump *wiredump.Dir
}

func requestTag(ctx context.Context) string {
	tag, ok := ctx.Value(dumpTagContextKey).(string)
	if !ok || tag == "" {
		return "request"
	}
	return tag
}

func (d dumper) onBeforeRequest(cli *resty.Client, req *resty.Request) error {
	tag := requestTag(req.Context())
	d.dump.Write(tag+"_request_headers", formatHeaders(req.Header))
	d.dump.Write(tag+"_request_body", formatRequestBody(req))
	d.dump.Write(tag+"_request_cookies", formatJarCookies(cli, req.URL))
	return nil
}

func (d dumper) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	tag := requestTag(res.Request.Context())
	if res.StatusCode() >= 400 {
		// Failed exchanges get only the "_error" trio, leaving the last
		// good response's files in place.
		dumpErrorResponse(d.dump, tag, res)
		return nil
	}
	d.dump.Write(tag+"_response_headers", formatHeaders(res.Header()))
	d.dump.Write(tag+"_response_body", res.String())
	d.dump.Write(tag+"_response_cookies", formatCookies(res.Cookies()))
	return nil
}

func (d dumper) onError(req *resty.Request, err error) {
	tag := requestTag(req.Context())

	var respErr *resty.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		dumpErrorResponse(d.dump, tag, respErr.Response)
		return
	}
	d.dump.Write(tag+"_response_error", err.Error())
}

// dumpErrorResponse writes the response side of a failed exchange under
// "_error" suffixed names.
func dumpErrorResponse(dump *wiredump.Dir, tag string, res *resty.Response) {
	dump.Write(tag+"_response_headers_error", formatHeaders(res.Header()))
	dump.Write(tag+"_response_body_error", res.String())
	dump.Write(tag+"_response_cookies_error", formatCookies(res.Cookies()))
}

func formatHeaders(headers http.Header) string {
	var out strings.Builder
	for k, vals := range headers {
		for _, v := range vals {
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// formatRequestBody runs before the raw request is built, so it renders
// what the caller set rather than what went over the wire.
func formatRequestBody(req *resty.Request) string {
	if len(req.FormData) > 0 {
		return req.FormData.Encode()
	}
	switch body := req.Body.(type) {
	case nil:
		return ""
	case string:
		return body
	case []byte:
		return string(body)
	}
	return fmt.Sprintf("%v", req.Body)
}

func formatJarCookies(cli *resty.Client, rawURL string) string {
	jar := cli.GetClient().Jar
	if jar == nil {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return formatCookies(jar.Cookies(u))
}

func formatCookies(cookies []*http.Cookie) string {
	var out strings.Builder
	for _, c := range cookies {
		out.WriteString(c.String())
		out.WriteString("\n")
	}
	return strings.TrimSuffix(out.String(), "\n")
}
