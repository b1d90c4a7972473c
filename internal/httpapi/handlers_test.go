package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/audit"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/metrics"
	"github.com/HendryAvila/specgate/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJournal struct {
	rows []audit.MovementRecord
	err  error
	got  int
}

func (f *fakeJournal) Movements(limit int) ([]audit.MovementRecord, error) {
	f.got = limit
	return f.rows, f.err
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.Build(catalogtest.Load(t), session.Options{})
	if err != nil {
		t.Fatalf("building session: %v", err)
	}
	return sess
}

func add(t *testing.T, sess *session.Session, ids ...catalogue.NodeID) {
	t.Helper()
	err := sess.Do(func(m *artifact.Manager) error {
		for _, id := range ids {
			if _, err := m.AddCandidate(artifact.CandidateRequest{NodeID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("adding %v: %v", ids, err)
	}
}

func get(t *testing.T, router *gin.Engine, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", path, err)
		}
	}
	return w
}

func TestHandleHealth(t *testing.T) {
	sess := newSession(t)
	router := NewRouter(NewHandlers(sess, WithVersion("1.2.3")))

	var resp HealthResponse
	w := get(t, router, "/healthz", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("unexpected health: %+v", resp)
	}
	if resp.State != artifact.StateProcessing {
		t.Errorf("state = %q", resp.State)
	}
	if resp.Nodes != sess.Catalogue().Len() {
		t.Errorf("nodes = %d, want %d", resp.Nodes, sess.Catalogue().Len())
	}
	if resp.AuditOpen {
		t.Error("audit should be reported closed without a journal")
	}
}

func TestHandleState(t *testing.T) {
	sess := newSession(t)
	add(t, sess, "P1")
	router := NewRouter(NewHandlers(sess))

	var snap artifact.Snapshot
	if w := get(t, router, "/v1/state", &snap); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(snap.Pending) != 1 || snap.Pending[0].NodeID != "P1" {
		t.Errorf("pending = %+v", snap.Pending)
	}
}

func TestHandleConflicts(t *testing.T) {
	sess := newSession(t)
	add(t, sess, "P10", "P11")
	router := NewRouter(NewHandlers(sess))

	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?status=active", 1},
		{"?status=escalated", 0},
		{"?status=resolved", 0},
		{"?status=all", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var resp ConflictsResponse
			w := get(t, router, "/v1/conflicts"+tt.query, &resp)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if len(resp.Conflicts) != tt.want {
				t.Errorf("got %d conflicts, want %d", len(resp.Conflicts), tt.want)
			}
		})
	}

	w := get(t, router, "/v1/conflicts?status=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad status, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_STATUS") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleBlocking(t *testing.T) {
	sess := newSession(t)
	router := NewRouter(NewHandlers(sess))

	var resp BlockingResponse
	get(t, router, "/v1/blocking", &resp)
	if resp.Blocked || resp.Reason != "" {
		t.Errorf("fresh engine should not be blocked: %+v", resp)
	}

	add(t, sess, "P10", "P11")
	resp = BlockingResponse{}
	get(t, router, "/v1/blocking", &resp)
	if !resp.Blocked || resp.State != artifact.StateBlocked {
		t.Errorf("expected blocked: %+v", resp)
	}
	if !strings.Contains(resp.Reason, "1 active conflict") {
		t.Errorf("reason = %q", resp.Reason)
	}
}

func TestHandleMovements_Session(t *testing.T) {
	sess := newSession(t)
	add(t, sess, "P1")
	err := sess.Do(func(m *artifact.Manager) error {
		_, err := m.PromoteNonConflicting()
		return err
	})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	router := NewRouter(NewHandlers(sess))

	var resp MovementsResponse
	if w := get(t, router, "/v1/movements", &resp); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Source != "session" {
		t.Errorf("source = %q", resp.Source)
	}
	if len(resp.Movements) != 1 || resp.Movements[0].Trigger != artifact.TriggerValidationPassed {
		t.Errorf("movements = %+v", resp.Movements)
	}
}

func TestHandleMovements_Journal(t *testing.T) {
	sess := newSession(t)
	journal := &fakeJournal{rows: []audit.MovementRecord{{ID: "m1", Trigger: artifact.TriggerUserAction}}}
	router := NewRouter(NewHandlers(sess, WithJournal(journal)))

	var resp MovementsResponse
	get(t, router, "/v1/movements?limit=7", &resp)
	if resp.Source != "audit" || len(resp.Movements) != 1 || resp.Movements[0].ID != "m1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if journal.got != 7 {
		t.Errorf("limit passed = %d, want 7", journal.got)
	}

	journal.err = errors.New("disk gone")
	w := get(t, router, "/v1/movements", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleMovements_BadLimit(t *testing.T) {
	router := NewRouter(NewHandlers(newSession(t)))
	for _, q := range []string{"abc", "0", "501"} {
		w := get(t, router, "/v1/movements?limit="+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	sess := newSession(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	defer m.Attach(sess)()
	add(t, sess, "P10", "P11")

	router := NewRouter(NewHandlers(sess, WithGatherer(reg)))
	w := get(t, router, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`specgate_conflicts_detected_total{kind="exclusion"} 1`,
		"specgate_active_conflicts 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
