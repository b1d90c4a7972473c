// Package httpapi serves a read-only HTTP view of the engine.
//
// Every endpoint goes through the session, so HTTP reads serialize with
// MCP tool calls. Nothing here mutates the engine.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/audit"
	"github.com/HendryAvila/specgate/internal/session"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// MovementReader is the part of the audit journal /v1/movements reads.
type MovementReader interface {
	Movements(limit int) ([]audit.MovementRecord, error)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string               `json:"status"`
	Version   string               `json:"version"`
	State     artifact.EngineState `json:"state"`
	Nodes     int                  `json:"catalogue_nodes"`
	AuditOpen bool                 `json:"audit"`
}

// ConflictsResponse is the body of GET /v1/conflicts.
type ConflictsResponse struct {
	Status    string              `json:"status"`
	Conflicts []artifact.Conflict `json:"conflicts"`
}

// BlockingResponse is the body of GET /v1/blocking.
type BlockingResponse struct {
	State   artifact.EngineState `json:"state"`
	Blocked bool                 `json:"blocked"`
	Reason  string               `json:"reason,omitempty"`
}

// MovementsResponse is the body of GET /v1/movements. Source is "audit"
// when the rows come from the journal and "session" otherwise.
type MovementsResponse struct {
	Source    string                 `json:"source"`
	Movements []audit.MovementRecord `json:"movements"`
}

// Handlers holds the endpoint dependencies.
type Handlers struct {
	sess     *session.Session
	journal  MovementReader
	gatherer prometheus.Gatherer
	version  string
}

// Option configures Handlers.
type Option func(*Handlers)

// WithJournal serves /v1/movements from the audit journal.
func WithJournal(j MovementReader) Option {
	return func(h *Handlers) { h.journal = j }
}

// WithGatherer serves /metrics from g instead of the default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handlers) { h.gatherer = g }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates Handlers over sess.
func NewHandlers(sess *session.Session, opts ...Option) *Handlers {
	h := &Handlers{sess: sess, gatherer: prometheus.DefaultGatherer, version: "dev"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	var state artifact.EngineState
	_ = h.sess.Do(func(m *artifact.Manager) error {
		state = m.EngineState()
		return nil
	})
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		State:     state,
		Nodes:     h.sess.Catalogue().Len(),
		AuditOpen: h.journal != nil,
	})
}

// HandleState handles GET /v1/state.
func (h *Handlers) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.sess.Snapshot())
}

// HandleConflicts handles GET /v1/conflicts?status=active|escalated|resolved|all.
func (h *Handlers) HandleConflicts(c *gin.Context) {
	status := c.DefaultQuery("status", "active")
	if !validStatus(status) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "status must be one of: active, escalated, resolved, all",
			Code:  "INVALID_STATUS",
		})
		return
	}

	out := []artifact.Conflict{}
	_ = h.sess.Do(func(m *artifact.Manager) error {
		if status == "active" || status == "all" {
			out = append(out, m.ActiveConflicts()...)
		}
		if status == "escalated" || status == "all" {
			out = append(out, m.EscalatedConflicts()...)
		}
		if status == "resolved" || status == "all" {
			out = append(out, m.ResolvedConflicts()...)
		}
		return nil
	})
	c.JSON(http.StatusOK, ConflictsResponse{Status: status, Conflicts: out})
}

func validStatus(s string) bool {
	switch s {
	case "active", "escalated", "resolved", "all":
		return true
	}
	return false
}

// HandleBlocking handles GET /v1/blocking.
func (h *Handlers) HandleBlocking(c *gin.Context) {
	var resp BlockingResponse
	_ = h.sess.Do(func(m *artifact.Manager) error {
		resp.State = m.EngineState()
		resp.Reason = m.BlockingReason()
		return nil
	})
	resp.Blocked = resp.State == artifact.StateBlocked
	c.JSON(http.StatusOK, resp)
}

// HandleMovements handles GET /v1/movements?limit=N, newest first.
func (h *Handlers) HandleMovements(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be an integer between 1 and " + strconv.Itoa(maxLimit),
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	if h.journal != nil {
		rows, err := h.journal.Movements(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: err.Error(),
				Code:  "AUDIT_ERROR",
			})
			return
		}
		c.JSON(http.StatusOK, MovementsResponse{Source: "audit", Movements: rows})
		return
	}

	snap := h.sess.Snapshot()
	rows := make([]audit.MovementRecord, 0, limit)
	for i := len(snap.Movements) - 1; i >= 0 && len(rows) < limit; i-- {
		rows = append(rows, audit.RecordFromMovement(snap.Movements[i]))
	}
	c.JSON(http.StatusOK, MovementsResponse{Source: "session", Movements: rows})
}

// MetricsHandler returns the Prometheus exposition handler.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}
