// Package server wires the engine, its subscribers and the MCP surface.
//
// This is the composition root: it builds the session over a loaded
// catalogue, attaches metrics and the audit journal, and registers the
// tools, prompts and resources. No engine logic lives here.
package server

import (
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HendryAvila/specgate/internal/audit"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/config"
	"github.com/HendryAvila/specgate/internal/httpapi"
	"github.com/HendryAvila/specgate/internal/logging"
	"github.com/HendryAvila/specgate/internal/metrics"
	"github.com/HendryAvila/specgate/internal/prompts"
	"github.com/HendryAvila/specgate/internal/resources"
	"github.com/HendryAvila/specgate/internal/session"
	"github.com/HendryAvila/specgate/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server bundles the MCP server with the pieces the HTTP API reads.
type Server struct {
	MCP      *server.MCPServer
	Session  *session.Session
	Registry *prometheus.Registry
	// Journal is nil when the audit journal is disabled or failed to open.
	Journal *audit.Store
}

// New builds a Server over cat using cfg; nil means config.Default. The
// returned cleanup closes the audit journal. It is always non-nil and safe
// to call even when the journal never opened.
func New(cfg *config.Config, cat *catalogue.Catalogue, log *slog.Logger) (*Server, func(), error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	sess, err := session.Build(cat, session.Options{
		CycleCap:     cfg.CycleCap,
		CascadeDepth: cfg.CascadeDepth,
		Logger:       log,
	})
	if err != nil {
		return nil, noop, err
	}

	reg := prometheus.NewRegistry()
	metrics.New(reg).Attach(sess)

	srv := &Server{Session: sess, Registry: reg}

	// The engine works without the journal. A failure to open it is
	// logged and spec_audit is left unregistered.
	cleanup := noop
	if cfg.Audit.Enabled {
		dir, err := cfg.DataDir()
		var store *audit.Store
		if err == nil {
			store, err = audit.New(audit.Config{DataDir: dir})
		}
		if err != nil {
			log.Warn("audit journal disabled", logging.Err(err))
		} else {
			srv.Journal = store
			sess.Subscribe(store.Subscriber(log))
			log.Info("audit journal open", "path", store.Path())
			cleanup = func() {
				if err := store.Close(); err != nil {
					log.Warn("audit journal close", logging.Err(err))
				}
			}
		}
	}

	s := server.NewMCPServer(
		"specgate",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, sess)
	if srv.Journal != nil {
		auditTool := tools.NewAuditTool(srv.Journal)
		s.AddTool(auditTool.Definition(), auditTool.Handle)
	}

	negotiate := prompts.NewNegotiatePrompt(sess)
	s.AddPrompt(negotiate.Definition(), negotiate.Handle)
	status := prompts.NewStatusPrompt()
	s.AddPrompt(status.Definition(), status.Handle)

	res := resources.NewHandler(sess)
	s.AddResource(res.StateResource(), res.HandleState)
	s.AddResource(res.ConflictsResource(), res.HandleConflicts)

	srv.MCP = s
	return srv, cleanup, nil
}

// HTTPHandler returns the read-only inspection API over the same session.
func (s *Server) HTTPHandler() http.Handler {
	opts := []httpapi.Option{
		httpapi.WithGatherer(s.Registry),
		httpapi.WithVersion(Version),
	}
	if s.Journal != nil {
		opts = append(opts, httpapi.WithJournal(s.Journal))
	}
	return httpapi.NewRouter(httpapi.NewHandlers(s.Session, opts...))
}

func noop() {}

func registerTools(s *server.MCPServer, sess *session.Session) {
	addCandidate := tools.NewAddCandidateTool(sess)
	s.AddTool(addCandidate.Definition(), addCandidate.Handle)

	retry := tools.NewRetryUnrecognizedTool(sess)
	s.AddTool(retry.Definition(), retry.Handle)

	resolve := tools.NewResolveConflictTool(sess)
	s.AddTool(resolve.Definition(), resolve.Handle)

	reject := tools.NewRejectResolutionTool(sess)
	s.AddTool(reject.Definition(), reject.Handle)

	conflicts := tools.NewConflictsTool(sess)
	s.AddTool(conflicts.Definition(), conflicts.Handle)

	blocking := tools.NewBlockingReasonTool(sess)
	s.AddTool(blocking.Definition(), blocking.Handle)

	promote := tools.NewPromoteTool(sess)
	s.AddTool(promote.Definition(), promote.Handle)

	autoSatisfy := tools.NewAutoSatisfyTool(sess)
	s.AddTool(autoSatisfy.Definition(), autoSatisfy.Handle)

	validOptions := tools.NewValidOptionsTool(sess)
	s.AddTool(validOptions.Definition(), validOptions.Handle)

	remove := tools.NewRemoveNodeTool(sess)
	s.AddTool(remove.Definition(), remove.Handle)

	state := tools.NewStateTool(sess)
	s.AddTool(state.Definition(), state.Handle)

	lookup := tools.NewCatalogueLookupTool(sess.Catalogue())
	s.AddTool(lookup.Definition(), lookup.Handle)
}

func serverInstructions() string {
	return `You have access to specgate, a specification selection engine.

A specification is built from catalogue nodes. Each node fills one field,
may exclude other nodes, and may require nodes from named categories.

## WORKFLOW

1. Map each user request to a catalogue node (spec_catalogue_lookup,
   spec_valid_options) and add it with spec_add_candidate. Unknown IDs are
   parked as unrecognized; map them later with spec_retry_unrecognized.
2. Every add runs conflict detection. While any conflict is active the
   engine is BLOCKED and nothing is promoted.
3. For each active conflict, present its options to the user (the
   spec-negotiate prompt renders the question), then call
   spec_resolve_conflict with the chosen option. If the user rejects every
   option, call spec_reject_resolution. After the cycle cap the conflict is
   escalated and deferred; it can still be settled later with
   spec_resolve_conflict.
4. Use spec_auto_satisfy to fill a node's dependency categories with
   default choices.
5. When nothing is blocked, call spec_promote to move conflict-free
   pending nodes with satisfied dependencies into the validated set.

## RULES

- Never add a node the user did not ask for unless it comes from
  spec_auto_satisfy, and say so when it does.
- Changing the value of a validated node is settled by latest-wins and
  never blocks.
- spec_blocking_reason explains why the engine is blocked.
- spec_state shows the full working state; spec_audit shows the
  persistent journal when it is enabled.`
}
