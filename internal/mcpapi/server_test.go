package mcpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apify/actor-sandbox/internal/codeexec"
	"github.com/apify/actor-sandbox/internal/procexec"
	"github.com/apify/actor-sandbox/internal/sandboxfs"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	root := t.TempDir()
	resolver := sandboxfs.NewResolver(root)
	runner := procexec.NewRunner(root)
	executor := codeexec.NewExecutor(root, runner, resolver)
	return New(root, runner, resolver, executor)
}

func TestToolNamesListsAllFourTools(t *testing.T) {
	f := newTestFacade(t)
	names := f.ToolNames()
	want := map[string]bool{"execute": true, "write-file": true, "read-file": true, "list-files": true}
	if len(names) != len(want) {
		t.Fatalf("got %d tool names, want %d", len(names), len(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected tool name %q", n)
		}
	}
}

func mcpCall(t *testing.T, f *Facade, method string, params map[string]any) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body=%s", err, rec.Body.String())
	}
	return resp
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	f := newTestFacade(t)

	mcpCall(t, f, "tools/call", map[string]any{
		"name":      "write-file",
		"arguments": map[string]any{"path": "greeting.txt", "content": "hello mcp"},
	})

	resp := mcpCall(t, f, "tools/call", map[string]any{
		"name":      "read-file",
		"arguments": map[string]any{"path": "greeting.txt"},
	})
	if resp["error"] != nil {
		t.Fatalf("unexpected JSON-RPC error: %v", resp["error"])
	}
	result, _ := resp["result"].(map[string]any)
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("read-file reported a tool error: %v", result)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("re-encode result: %v", err)
	}
	if !strings.Contains(string(encoded), "hello mcp") {
		t.Fatalf("read-file result does not carry the written content: %s", encoded)
	}
}

func TestParseOctalModeParsesStandardPermissionStrings(t *testing.T) {
	mode, err := parseOctalMode("644")
	if err != nil {
		t.Fatalf("parseOctalMode: %v", err)
	}
	if mode != 0o644 {
		t.Fatalf("got mode %o, want 644", mode)
	}
}

func TestToFloatCoercesIntAndFloat(t *testing.T) {
	if v, ok := toFloat(5); !ok || v != 5.0 {
		t.Fatalf("toFloat(int) = %v, %v", v, ok)
	}
	if v, ok := toFloat(2.5); !ok || v != 2.5 {
		t.Fatalf("toFloat(float64) = %v, %v", v, ok)
	}
	if _, ok := toFloat("nope"); ok {
		t.Fatalf("expected toFloat(string) to fail")
	}
}
