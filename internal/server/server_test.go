package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/HendryAvila/specgate/internal/audit"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newConfig(t *testing.T, auditOn bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audit.Enabled = auditOn
	cfg.Audit.DataDir = t.TempDir()
	return cfg
}

// rpc sends one JSON-RPC request and returns the marshaled response.
func rpc(t *testing.T, srv *Server, method string, params any) string {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp := srv.MCP.HandleMessage(context.Background(), msg)
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func TestNew_RegistersSurface(t *testing.T) {
	cfg := newConfig(t, true)
	srv, cleanup, err := New(cfg, catalogtest.Load(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	if srv.Journal == nil {
		t.Fatal("journal should be open")
	}
	if _, err := os.Stat(filepath.Join(cfg.Audit.DataDir, audit.DBFile)); err != nil {
		t.Errorf("journal file missing: %v", err)
	}

	tools := rpc(t, srv, "tools/list", map[string]any{})
	for _, name := range []string{
		"spec_add_candidate", "spec_retry_unrecognized", "spec_resolve_conflict",
		"spec_reject_resolution", "spec_conflicts", "spec_blocking_reason",
		"spec_promote", "spec_auto_satisfy", "spec_valid_options",
		"spec_remove_node", "spec_state", "spec_catalogue_lookup", "spec_audit",
	} {
		if !strings.Contains(tools, `"`+name+`"`) {
			t.Errorf("tool %s not registered", name)
		}
	}

	prompts := rpc(t, srv, "prompts/list", map[string]any{})
	for _, name := range []string{"spec-negotiate", "spec-status"} {
		if !strings.Contains(prompts, name) {
			t.Errorf("prompt %s not registered", name)
		}
	}

	resources := rpc(t, srv, "resources/list", map[string]any{})
	for _, uri := range []string{"specgate://state", "specgate://conflicts"} {
		if !strings.Contains(resources, uri) {
			t.Errorf("resource %s not registered", uri)
		}
	}
}

func TestNew_WithoutAudit(t *testing.T) {
	srv, cleanup, err := New(newConfig(t, false), catalogtest.Load(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	if srv.Journal != nil {
		t.Error("journal should not open when disabled")
	}
	if strings.Contains(rpc(t, srv, "tools/list", map[string]any{}), "spec_audit") {
		t.Error("spec_audit should not be registered without the journal")
	}
}

func TestNew_AuditFailureIsNotFatal(t *testing.T) {
	cfg := newConfig(t, true)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Audit.DataDir = blocker

	srv, cleanup, err := New(cfg, catalogtest.Load(t), nil)
	if err != nil {
		t.Fatalf("New should survive an audit failure: %v", err)
	}
	defer cleanup()
	if srv.Journal != nil {
		t.Error("journal should be nil after a failed open")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := newConfig(t, false)
	cfg.CycleCap = 0
	if _, cleanup, err := New(cfg, catalogtest.Load(t), nil); err == nil {
		cleanup()
		t.Fatal("expected error for cycle_cap 0")
	}
}

func TestToolCallIsJournaled(t *testing.T) {
	srv, cleanup, err := New(newConfig(t, true), catalogtest.Load(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	out := rpc(t, srv, "tools/call", map[string]any{
		"name":      "spec_add_candidate",
		"arguments": map[string]any{"node_id": "P1"},
	})
	if !strings.Contains(out, "Candidate Added") {
		t.Fatalf("unexpected tool output: %s", out)
	}
	out = rpc(t, srv, "tools/call", map[string]any{
		"name":      "spec_promote",
		"arguments": map[string]any{},
	})
	if !strings.Contains(out, "P1") {
		t.Fatalf("unexpected promote output: %s", out)
	}

	rows, err := srv.Journal.Movements(10)
	if err != nil {
		t.Fatalf("Movements: %v", err)
	}
	if len(rows) != 1 || rows[0].Nodes[0] != "P1" {
		t.Errorf("journal movements = %+v", rows)
	}

	stats, err := srv.Journal.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Events == 0 {
		t.Error("expected journaled events")
	}
}

func TestHTTPHandler(t *testing.T) {
	srv, cleanup, err := New(newConfig(t, true), catalogtest.Load(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	h := srv.HTTPHandler()
	for _, path := range []string{"/healthz", "/v1/state", "/v1/movements", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	h.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"audit":true`) {
		t.Errorf("healthz should report the journal: %s", w.Body.String())
	}
}
