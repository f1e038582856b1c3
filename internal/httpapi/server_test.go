package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apify/actor-sandbox/internal/config"
	"github.com/apify/actor-sandbox/internal/lifecycle"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{LocalMode: true, SandboxRoot: t.TempDir()}
	ctrl := lifecycle.New(cfg, nil)
	ctrl.Start(context.Background())
	return New(cfg, ctrl, nil, nil, nil)
}

func TestHealthReturns200WhenReady(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestExecMissingCommandIs400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestExecShellCommandRoundTrips(t *testing.T) {
	s := newTestServer(t)
	body := `{"command":"echo hello"}`
	req := httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp execResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Stdout, "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", resp.Stdout)
	}
}

func TestFSRootWriteIsRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/fs/", strings.NewReader("data"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestFSWriteThenReadRoundTrips(t *testing.T) {
	s := newTestServer(t)

	putReq := httptest.NewRequest(http.MethodPut, "/fs/greeting.txt", strings.NewReader("hello sandbox"))
	putRec := httptest.NewRecorder()
	s.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT got status %d, want 200, body=%s", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/fs/greeting.txt", nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET got status %d, want 200", getRec.Code)
	}
	if getRec.Body.String() != "hello sandbox" {
		t.Fatalf("got body %q", getRec.Body.String())
	}
}

func TestFSDeleteNonEmptyDirWithoutRecursiveIs409(t *testing.T) {
	s := newTestServer(t)

	mkdirReq := httptest.NewRequest(http.MethodPost, "/fs/somedir?mkdir=1", nil)
	mkdirRec := httptest.NewRecorder()
	s.ServeHTTP(mkdirRec, mkdirReq)
	if mkdirRec.Code != http.StatusCreated {
		t.Fatalf("mkdir got status %d, want 201", mkdirRec.Code)
	}

	putReq := httptest.NewRequest(http.MethodPut, "/fs/somedir/file.txt", strings.NewReader("x"))
	putRec := httptest.NewRecorder()
	s.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("put got status %d, want 200", putRec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/fs/somedir", nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", delRec.Code)
	}
}

func TestLLMsTxtWithNoMCPStillServes200(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/llms.txt", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}
