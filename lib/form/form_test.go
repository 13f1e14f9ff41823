package form

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"pagewatch/lib/fetch"
	"pagewatch/lib/scrape"
)

const loginPage = `
<html><body>
<form id="login" action="/session" method="post">
	<input type="hidden" name="csrf" value="tok-123">
	<input type="text" name="user" value="">
	<input type="password" name="password">
	<input type="submit" value="Sign in">
	<input type="hidden" value="nameless">
</form>
</body></html>`

func newTestClient(t *testing.T) *fetch.Client {
	t.Helper()
	client, err := fetch.NewClient(fetch.Options{Name: "store"})
	require.NoError(t, err)
	return client
}

func TestSubmitScrapedForm(t *testing.T) {
	var submitted map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Write([]byte(loginPage))
		case "/session":
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			submitted = r.PostForm
			w.Write([]byte("welcome"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	submitter, err := NewSubmitter("store", Config{
		PageURL:     server.URL + "/login",
		Select:      "#login",
		Inputs:      map[string]string{"user": "watcher", "password": "secret"},
		InputFilter: []string{"csrf"},
	}, newTestClient(t), nil)
	require.NoError(t, err)

	result, err := submitter.Submit(context.Background(), server.URL+"/data")
	require.NoError(t, err)

	// A dedicated form page means the submit response is session-only.
	require.False(t, result.HasContent)

	require.Equal(t, []string{"watcher"}, submitted["user"])
	require.Equal(t, []string{"secret"}, submitted["password"])
	_, hasCsrf := submitted["csrf"]
	require.False(t, hasCsrf)
}

func TestSubmitInlineContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`<form id="f" method="post"><input name="a" value="1"></form>`))
		case http.MethodPost:
			w.Write([]byte(`<div id="price">42</div>`))
		}
	}))
	defer server.Close()

	// No page URL: the form lives on the main resource and the submit
	// response is the content to scrape.
	submitter, err := NewSubmitter("store", Config{Select: "#f"}, newTestClient(t), nil)
	require.NoError(t, err)

	result, err := submitter.Submit(context.Background(), server.URL)
	require.NoError(t, err)
	require.True(t, result.HasContent)
	require.Equal(t, `<div id="price">42</div>`, result.Content)
}

func TestSubmitConfigOnly(t *testing.T) {
	gets := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
			return
		}
		require.NoError(t, r.ParseForm())
		require.Equal(t, "key-9", r.PostFormValue("api_key"))
	}))
	defer server.Close()

	// No form selector: nothing is fetched before the submit.
	submitter, err := NewSubmitter("store", Config{
		PageURL: server.URL + "/auth",
		Inputs:  map[string]string{"api_key": "key-9"},
	}, newTestClient(t), nil)
	require.NoError(t, err)

	_, err = submitter.Submit(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, 0, gets)
}

func TestFormNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no forms here</body></html>`))
	}))
	defer server.Close()

	submitter, err := NewSubmitter("store", Config{Select: "#login"}, newTestClient(t), nil)
	require.NoError(t, err)

	_, err = submitter.Submit(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrFormNotFound)
}

func TestSubmitTarget(t *testing.T) {
	cases := []struct {
		name    string
		action  string
		pageURL string
		expect  string
	}{
		{
			name:    "action relative to form page",
			action:  "/session",
			pageURL: "https://auth.test/login",
			expect:  "https://auth.test/session",
		},
		{
			name:   "action relative to main resource",
			action: "submit.php",
			expect: "https://store.test/data/submit.php",
		},
		{
			name:    "no action falls back to form page",
			pageURL: "https://auth.test/login",
			expect:  "https://auth.test/login",
		},
		{
			name:   "no action and no form page",
			expect: "https://store.test/data/",
		},
		{
			name:    "absolute action ignores bases",
			action:  "https://sso.test/token",
			pageURL: "https://auth.test/login",
			expect:  "https://sso.test/token",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := submitTarget(c.action, c.pageURL, "https://store.test/data/")
			require.NoError(t, err)
			require.Equal(t, c.expect, out)
		})
	}
}

func TestSubmitOnceAndResubmit(t *testing.T) {
	posts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
	}))
	defer server.Close()

	submitter, err := NewSubmitter("store", Config{
		PageURL:    server.URL + "/auth",
		Inputs:     map[string]string{"k": "v"},
		SubmitOnce: true,
	}, newTestClient(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = submitter.Submit(ctx, server.URL)
	require.NoError(t, err)
	require.Equal(t, 1, posts)

	// Second pass skips while submit-once holds.
	_, err = submitter.Submit(ctx, server.URL)
	require.NoError(t, err)
	require.Equal(t, 1, posts)

	// A failure downstream re-arms the submitter.
	submitter.NotifyError()
	_, err = submitter.Submit(ctx, server.URL)
	require.NoError(t, err)
	require.Equal(t, 2, posts)
}

func TestResubmitOnErrorDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	resubmit := false
	submitter, err := NewSubmitter("store", Config{
		PageURL:         server.URL,
		Inputs:          map[string]string{"k": "v"},
		SubmitOnce:      true,
		ResubmitOnError: &resubmit,
	}, newTestClient(t), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = submitter.Submit(ctx, server.URL)
	require.NoError(t, err)

	submitter.NotifyError()
	require.False(t, submitter.shouldSubmit)
}

func TestSubmitVariables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><span id="sess">abc123</span></body></html>`))
	}))
	defer server.Close()

	submitter, err := NewSubmitter("store", Config{
		Inputs: map[string]string{"k": "v"},
		Variables: []scrape.SelectorConfig{
			{Name: "session", Select: "#sess"},
			{Name: "missing", Select: "#nope"},
		},
	}, newTestClient(t), nil)
	require.NoError(t, err)

	result, err := submitter.Submit(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "abc123", result.Variables["session"])

	// Failed variable selectors resolve to empty, not an error.
	require.Equal(t, "", result.Variables["missing"])

	// Variables cached from the last submission survive skipped passes.
	submitter.shouldSubmit = false
	result, err = submitter.Submit(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "abc123", result.Variables["session"])
}

func TestSubmitHTTPErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	submitter, err := NewSubmitter("store", Config{
		Inputs:     map[string]string{"k": "v"},
		SubmitOnce: true,
	}, newTestClient(t), nil)
	require.NoError(t, err)

	_, err = submitter.Submit(context.Background(), server.URL)
	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.Code)

	// A failed submission must not flip the submit-once state.
	require.True(t, submitter.shouldSubmit)
}
