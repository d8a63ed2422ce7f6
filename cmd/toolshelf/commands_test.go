package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/toolshelf/internal/config"
	"github.com/kalambet/toolshelf/internal/exchange"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
	Passphrase  string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
	statuses map[string]int
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{statuses: map[string]int{}}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
			Passphrase:  r.Header.Get("X-Passphrase"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			if code, ok := ts.statuses[key]; ok {
				w.WriteHeader(code)
			}
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

// use routes CLI commands to ts for the duration of the test.
func (ts *testServer) use(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

// resetFlags clears flag values left behind by earlier Execute calls.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func (ts *testServer) body(t *testing.T, i int) map[string]any {
	t.Helper()
	if i >= len(ts.requests) {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(ts.requests))
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ts.requests[i].Body), &m); err != nil {
		t.Fatalf("body parse error: %v (%q)", err, ts.requests[i].Body)
	}
	return m
}

var ctx = context.Background()

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/tools": `[]`,
	})

	resp, err := ts.client().get(ctx, "/api/tools")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []any
	if err := decodeJSON(resp, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestToolsCreateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/tools": `{"id":"0190c3e1-aaaa","name":"Timer","tool_type":"html","version":1}`,
	})
	ts.use(t)

	file := filepath.Join(t.TempDir(), "timer.html")
	if err := os.WriteFile(file, []byte("<p>tick</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runCLI(t, "tools", "create", "--name", "Timer", "--file", file, "--tags", "kitchen, time"); err != nil {
		t.Fatalf("create: %v", err)
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/api/tools" {
		t.Errorf("request = %s %s, want POST /api/tools", r.Method, r.Path)
	}
	body := ts.body(t, 0)
	if body["name"] != "Timer" {
		t.Errorf("body.name = %v, want Timer", body["name"])
	}
	if body["html_content"] != "<p>tick</p>" {
		t.Errorf("body.html_content = %v", body["html_content"])
	}
	tags, _ := body["tags"].([]any)
	if len(tags) != 2 || tags[0] != "kitchen" || tags[1] != "time" {
		t.Errorf("body.tags = %v, want [kitchen time]", body["tags"])
	}
}

func TestToolsCreateCommand_MissingArgs(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	err := runCLI(t, "tools", "create")
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestToolsUpdateCommand_SendsCurrentVersion(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/tools/t1": `{"id":"t1","name":"Timer","description":"d","tags":["a"],"tool_type":"html","version":4}`,
		"PUT /api/tools/t1": `{"id":"t1","name":"Clock","version":5}`,
	})
	ts.use(t)

	if err := runCLI(t, "tools", "update", "t1", "--name", "Clock"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(ts.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(ts.requests))
	}
	body := ts.body(t, 1)
	if body["version"] != float64(4) {
		t.Errorf("body.version = %v, want 4", body["version"])
	}
	if body["name"] != "Clock" {
		t.Errorf("body.name = %v, want Clock", body["name"])
	}
	if body["description"] != "d" {
		t.Errorf("body.description = %v, want unchanged d", body["description"])
	}
	if _, ok := body["html_content"]; ok {
		t.Error("metadata-only update should not send html_content")
	}
}

func TestDecodeJSON_VersionConflict(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /api/tools/t1": `{"error":{"message":"stale","type":"optimistic_lock_conflict","current_version":7,"expected_version":5}}`,
	})
	ts.statuses["PUT /api/tools/t1"] = http.StatusConflict

	resp, err := ts.client().put(ctx, "/api/tools/t1", map[string]any{"version": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 409")
	}
	if !strings.Contains(err.Error(), "version 7") || !strings.Contains(err.Error(), "version 5") {
		t.Errorf("error = %q, want both versions", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/api/tools/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want status and message", err.Error())
	}
}

func TestSnapshotsDiffCommand_CompareTo(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/tools/t1/snapshots/s1/diff": `{"unified_diff":"--- a\n+++ b\n-old\n+new\n"}`,
	})
	ts.use(t)

	if err := runCLI(t, "snapshots", "diff", "t1", "s1", "s2"); err != nil {
		t.Fatalf("diff: %v", err)
	}
	if got := ts.requests[0].Path; got != "/api/tools/t1/snapshots/s1/diff?compare_to=s2" {
		t.Errorf("path = %q", got)
	}
}

func TestSnapshotsRestoreCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/tools/t1/snapshots/s1/restore": `{"tool":{"id":"t1","name":"Timer","version":3},"restored_snapshot_id":"s1","backup_snapshot_id":"s9"}`,
	})
	ts.use(t)

	if err := runCLI(t, "snapshots", "restore", "t1", "s1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ts.requests[0].Method != "POST" {
		t.Errorf("method = %q, want POST", ts.requests[0].Method)
	}
}

func TestImportCommand_Encrypted(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/tools/import": `{"imported_count":1,"skipped_count":0,"tool_ids":["t9"]}`,
	})
	ts.use(t)
	t.Setenv("TOOLSHELF_PASSPHRASE", "hunter2")

	payload := []byte("age-encryption.org/v1\n-> scrypt abc 18\nbody")
	file := filepath.Join(t.TempDir(), "tools.age")
	if err := os.WriteFile(file, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := runCLI(t, "import", file); err != nil {
		t.Fatalf("import: %v", err)
	}
	r := ts.requests[0]
	if r.ContentType != exchange.ContentType {
		t.Errorf("content type = %q, want %q", r.ContentType, exchange.ContentType)
	}
	if r.Passphrase != "hunter2" {
		t.Errorf("X-Passphrase = %q, want hunter2", r.Passphrase)
	}
	if r.Body != string(payload) {
		t.Error("import body should be the file bytes unchanged")
	}
}

func TestExportCommand_WritesFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/tools/export": `packed`,
	})
	ts.use(t)

	out := filepath.Join(t.TempDir(), "tools.msgpack")
	if err := runCLI(t, "export", "t1", "t2", "-o", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "packed" {
		t.Errorf("file = %q, want packed", data)
	}
	ids, _ := ts.body(t, 0)["tool_ids"].([]any)
	if len(ids) != 2 {
		t.Errorf("tool_ids = %v, want 2 ids", ids)
	}
	if _, ok := ts.body(t, 0)["passphrase"]; ok {
		t.Error("unencrypted export should not send a passphrase")
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok","schema_version":2}`,
	})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]any
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("status = %v, want ok", result["status"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	client := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		token:      "test-token",
		httpClient: http.DefaultClient,
	}
	if _, err := client.get(ctx, "/health"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	keys := config.ShowAll(config.Config{})
	for _, k := range keys {
		if k.Key == "server.api_token" {
			t.Error("ShowAll should not include secret keys")
		}
	}
	if len(keys) == 0 {
		t.Error("expected some keys")
	}
}

func TestSplitTags(t *testing.T) {
	if got := splitTags("  "); got != nil {
		t.Errorf("splitTags(blank) = %v, want nil", got)
	}
	got := splitTags("a, b ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("splitTags = %v", got)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(3, 500); got != "3" {
		t.Errorf("countLabel(3, 500) = %q, want 3", got)
	}
	if got := countLabel(500, 500); got != "500+" {
		t.Errorf("countLabel(500, 500) = %q, want 500+", got)
	}
}
