package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zorak1103/ha-macs/internal/logging"
)

func newTestServer(t *testing.T, opts ServerOptions) *httptest.Server {
	t.Helper()

	registry := NewRegistry()
	registry.RegisterTool(Tool{Name: "echo", Description: "Echo the text argument"},
		func(_ context.Context, args map[string]any) (*ToolsCallResult, error) {
			text, _ := args["text"].(string)
			return TextResult(text), nil
		})
	registry.RegisterTool(Tool{Name: "fail"},
		func(context.Context, map[string]any) (*ToolsCallResult, error) {
			return nil, errors.New("exploded")
		})
	registry.RegisterResource(Resource{URI: "macs://test", Name: "Test"},
		func(_ context.Context, uri string) (*ResourcesReadResult, error) {
			return &ResourcesReadResult{Contents: []ResourceContent{{URI: uri, Text: "hello"}}}, nil
		})

	s := NewServer(registry, opts, logging.Discard())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func rpc(t *testing.T, url, body string) (*http.Response, Response) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out Response
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal %q: %v", raw, err)
		}
	}
	return resp, out
}

func TestServer_JSONRPC(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, ServerOptions{Version: "3.1"})

	tests := []struct {
		name     string
		body     string
		wantCode ErrorCode
		check    func(t *testing.T, result any)
	}{
		{
			name: "initialize",
			body: `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"test","version":"1"}}}`,
			check: func(t *testing.T, result any) {
				info := result.(map[string]any)["serverInfo"].(map[string]any)
				if info["name"] != ServerName || info["version"] != "3.1" {
					t.Errorf("serverInfo = %v", info)
				}
			},
		},
		{
			name: "tools list sorted",
			body: `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
			check: func(t *testing.T, result any) {
				tools := result.(map[string]any)["tools"].([]any)
				var names []string
				for _, tool := range tools {
					names = append(names, tool.(map[string]any)["name"].(string))
				}
				if diff := cmp.Diff([]string{"echo", "fail"}, names); diff != "" {
					t.Errorf("tool names mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name: "tool call",
			body: `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
			check: func(t *testing.T, result any) {
				content := result.(map[string]any)["content"].([]any)
				if content[0].(map[string]any)["text"] != "hi" {
					t.Errorf("content = %v", content)
				}
			},
		},
		{
			name: "resource read",
			body: `{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"macs://test"}}`,
			check: func(t *testing.T, result any) {
				contents := result.(map[string]any)["contents"].([]any)
				if contents[0].(map[string]any)["text"] != "hello" {
					t.Errorf("contents = %v", contents)
				}
			},
		},
		{name: "unknown tool", body: `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope"}}`, wantCode: ToolNotFound},
		{name: "failing tool", body: `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"fail"}}`, wantCode: ToolExecutionErr},
		{name: "unknown resource", body: `{"jsonrpc":"2.0","id":7,"method":"resources/read","params":{"uri":"macs://x"}}`, wantCode: ResourceNotFound},
		{name: "unknown method", body: `{"jsonrpc":"2.0","id":8,"method":"prompts/list"}`, wantCode: MethodNotFound},
		{name: "bad version", body: `{"jsonrpc":"1.0","id":9,"method":"ping"}`, wantCode: InvalidRequest},
		{name: "bad json", body: `{`, wantCode: ParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, resp := rpc(t, srv.URL, tt.body)
			if tt.wantCode != 0 {
				if resp.Error == nil || resp.Error.Code != tt.wantCode {
					t.Fatalf("error = %+v, want code %d", resp.Error, tt.wantCode)
				}
				return
			}
			if resp.Error != nil {
				t.Fatalf("unexpected error %+v", resp.Error)
			}
			tt.check(t, resp.Result)
		})
	}
}

func TestServer_Notification(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, ServerOptions{})
	httpResp, resp := rpc(t, srv.URL, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if httpResp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", httpResp.StatusCode)
	}
	if resp.JSONRPC != "" {
		t.Errorf("notification got a response: %+v", resp)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, ServerOptions{})
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != InvalidRequest {
		t.Errorf("error = %+v, want InvalidRequest", out.Error)
	}
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		want       healthResponse
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			want:       healthResponse{Status: "ok", Version: "0"},
		},
		{
			name: "degraded",
			checks: map[string]HealthCheck{
				"store": func(context.Context) error { return nil },
				"mqtt":  func(context.Context) error { return errors.New("not connected") },
			},
			wantStatus: http.StatusServiceUnavailable,
			want: healthResponse{
				Status:  "degraded",
				Version: "0",
				Checks:  map[string]string{"store": "ok", "mqtt": "not connected"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, ServerOptions{HealthChecks: tt.checks})
			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatalf("GET /health: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var got healthResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("health mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServer_StaticFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "macs-card.js"), []byte("console.log('macs')"), 0o600); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, ServerOptions{WWWDir: dir})

	resp, err := http.Get(srv.URL + "/macs/macs-card.js?v=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); !strings.Contains(got, "no-cache") {
		t.Errorf("Cache-Control = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "console.log('macs')" {
		t.Errorf("body = %q", body)
	}

	missing, err := http.Get(srv.URL + "/macs/nope.js")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", missing.StatusCode)
	}
}

func TestServer_NoStaticWithoutDir(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, ServerOptions{})
	resp, err := http.Get(srv.URL + "/macs/macs-card.js")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	s := NewServer(NewRegistry(), ServerOptions{}, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if s.IsInitialized() {
		t.Error("IsInitialized() = true before handshake")
	}
}
