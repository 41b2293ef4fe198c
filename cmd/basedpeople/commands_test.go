package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/config"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useTestServer points newAPIClient at ts for the duration of the test.
func useTestServer(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

// captureOutput redirects stdout and stderr writers into buffers.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr, oldColor := stdout, stderr, noColor
	stdout, stderr, noColor = &out, &errOut, true
	t.Cleanup(func() { stdout, stderr, noColor = oldOut, oldErr, oldColor })
	return &out, &errOut
}

var ctx = context.Background()

func TestSeedRemote(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /seed": `{"success":true,"processed":2,"results":[
			{"person":"Jane Doe","slug":"jane-doe","success":true,"run_id":"run_1","status":"queued"},
			{"person":"John Roe","slug":"john-roe","success":false,"error":"HTTP 429: slow down"}]}`,
	})
	useTestServer(t, ts)
	_, errOut := captureOutput(t)

	summary, err := seedRemote(ctx, "s3cr&t")
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.Processed)
	assert.Len(t, summary.Results, 2)

	require.Len(t, ts.requests, 1)
	assert.Equal(t, "/seed?secret=s3cr%26t", ts.requests[0].Path, "secret must be escaped")

	printSeedSummary(summary)
	got := errOut.String()
	assert.Contains(t, got, "Jane Doe: run run_1 (queued)")
	assert.Contains(t, got, "John Roe: HTTP 429: slow down")
	assert.Contains(t, got, "1 of 2 runs could not be created")
}

func TestSeedRemote_RequiresSecret(t *testing.T) {
	_, err := seedRemote(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BP_SEED_SECRET")
}

func TestSeedCommand_SlugsRequireLocal(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	captureOutput(t)

	rootCmd.SetArgs([]string{"seed", "jane-doe"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--local")
}

func TestSelectPeople(t *testing.T) {
	cat, err := catalog.New([]catalog.Person{
		{Name: "Jane Doe", Slug: "jane-doe"},
		{Name: "John Roe", Slug: "john-roe"},
	})
	require.NoError(t, err)

	all, err := selectPeople(cat, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := selectPeople(cat, []string{"john-roe"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "John Roe", some[0].Name)

	_, err = selectPeople(cat, []string{"jane-doe", "nobody", "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody, ghost")
}

func TestSearchOptionsPath(t *testing.T) {
	tests := []struct {
		name string
		opts searchOptions
		want string
	}{
		{
			name: "text and filters",
			opts: searchOptions{Text: "scaling laws", From: "2023", Keywords: []string{"ai", "policy"}, Limit: 5},
			want: "/search?from=2023&keyword=ai&keyword=policy&limit=5&q=scaling+laws",
		},
		{
			name: "escaping",
			opts: searchOptions{Text: "go & python", Type: "Podcast Interview", Limit: 20},
			want: "/search?limit=20&q=go+%26+python&type=Podcast+Interview",
		},
		{
			name: "filters only",
			opts: searchOptions{Slug: "jane-doe", To: "2024-06", Limit: 1},
			want: "/search?limit=1&slug=jane-doe&to=2024-06",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.path()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := (searchOptions{Limit: 0}).path()
	assert.Error(t, err, "zero limit")
}

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `{"count":1,"results":[{"slug":"jane-doe","name":"Jane Doe","url":"https://x","title":"Scaling laws","type":"Podcast Interview","date":"2024-05-01"}]}`,
	})
	useTestServer(t, ts)
	out, _ := captureOutput(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"search", "scaling", "--keyword", "ai"})
	require.NoError(t, rootCmd.Execute())

	require.Len(t, ts.requests, 1)
	assert.Contains(t, ts.requests[0].Path, "q=scaling")
	assert.Contains(t, ts.requests[0].Path, "keyword=ai")

	got := out.String()
	assert.Contains(t, got, "2024-05-01  Jane Doe  Podcast Interview  Scaling laws")
	assert.Contains(t, got, "https://x")
}

func TestReconcileCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/reconcile": `{"queued":[{"slug":"jane-doe","run_id":"r1","status":"fetch_failed"}]}`,
	})
	useTestServer(t, ts)
	_, errOut := captureOutput(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"reconcile"})
	require.NoError(t, rootCmd.Execute())

	require.Len(t, ts.requests, 1)
	r := ts.requests[0]
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, "/admin/reconcile", r.Path)
	assert.Equal(t, "Bearer test-token", r.Auth)
	assert.Contains(t, errOut.String(), "Queued 1 refetch jobs")
}

func TestPrintPersonPage(t *testing.T) {
	out, _ := captureOutput(t)

	apps := []storage.Appearance{
		{Title: "Senate testimony", Type: "Congressional Testimony", Date: "2023-02-10", Period: "policy", URL: "https://b"},
		{Title: "Scaling laws", Type: "Podcast Interview", Date: "2024-05-01", Period: "research", URL: "https://a"},
	}
	run := &storage.PersonRun{Periods: []storage.Period{
		{Slug: "research", Name: "Research years"},
		{Slug: "policy", Name: "Policy work"},
	}}
	page := query.BuildPersonPage(catalog.Person{Name: "Jane Doe", Category: "AI Researcher"}, run, apps)

	printPersonPage(page)
	got := out.String()
	for _, want := range []string{"Jane Doe  AI Researcher", "2 appearances", "Research years", "Policy work", "Scaling laws"} {
		assert.Contains(t, got, want)
	}
	assert.Less(t, strings.Index(got, "Research years"), strings.Index(got, "Policy work"), "buckets should follow declaration order")
}

func TestPrintPersonPage_Empty(t *testing.T) {
	out, _ := captureOutput(t)

	printPersonPage(query.BuildPersonPage(catalog.Person{Name: "John Roe"}, nil, nil))
	assert.Contains(t, out.String(), "No appearances recorded yet.")
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	assert.Equal(t, "test message", colorize(colorGreen, "test message"))

	noColor = false
	assert.Contains(t, colorize(colorGreen, "test message"), "\033[")
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"
	_, err := client.get(ctx, "/health")
	require.NoError(t, err)

	client.token = ""
	_, err = client.get(ctx, "/health")
	require.NoError(t, err)

	require.Len(t, ts.requests, 2)
	assert.Equal(t, "Bearer my-secret-token", ts.requests[0].Auth)
	assert.Empty(t, ts.requests[1].Auth, "no header without a token")
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/admin/reconcile", nil)
	require.NoError(t, err)

	var result any
	err = decodeJSON(resp, &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Seed.Secret = "hidden"

	keys := config.ShowAll(cfg)
	require.NotEmpty(t, keys)

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		assert.NotEqual(t, "hidden", k.Value, "secret leaked through key %s", k.Key)
	}
	assert.True(t, found, "expected server.port=4000 in ShowAll output")
}

func TestServerURL(t *testing.T) {
	old := serverFlag
	defer func() { serverFlag = old }()

	cfg := config.Config{}
	cfg.Server.Port = 9000

	serverFlag = ""
	assert.Equal(t, "http://127.0.0.1:9000", serverURL(cfg))
	serverFlag = "https://basedpeople.example/"
	assert.Equal(t, "https://basedpeople.example", serverURL(cfg))
}

func TestConfigCommands_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BP_FEED_LIMIT", "")
	out, _ := captureOutput(t)
	defer rootCmd.SetArgs(nil)

	run := func(args ...string) {
		t.Helper()
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute(), "%v", args)
	}

	run("config", "set", "feed.limit", "12")
	out.Reset()
	run("config", "get", "feed.limit")
	assert.Equal(t, "12", strings.TrimSpace(out.String()), "after set")

	run("config", "unset", "feed.limit")
	out.Reset()
	run("config", "get", "feed.limit")
	assert.Equal(t, "50", strings.TrimSpace(out.String()), "after unset")

	rootCmd.SetArgs([]string{"config", "set", "admin.token", "x"})
	assert.Error(t, rootCmd.Execute(), "setting a secret")
}
