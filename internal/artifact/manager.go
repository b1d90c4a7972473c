package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/deps"
	"github.com/HendryAvila/specgate/internal/detector"
	"github.com/HendryAvila/specgate/internal/specerr"
)

const (
	// DefaultCycleCap is the number of failed resolution attempts after
	// which a conflict is escalated.
	DefaultCycleCap = 3
	// DefaultMaxValueLength bounds a candidate value, in runes.
	DefaultMaxValueLength = 512
)

// Manager is the sole owner of the working state.
type Manager struct {
	cat      *catalogue.Catalogue
	detector *detector.Detector
	resolver *deps.Resolver
	log      *slog.Logger

	cycleCap    int
	maxValueLen int

	st    *store
	bus   bus
	hooks managerHooks
}

// managerHooks allows tests to inject faults into the resolution protocol.
type managerHooks struct {
	// afterRemoval runs between removing the losing nodes and verifying
	// the result.
	afterRemoval func(st *store, losers []catalogue.NodeID)
	// detected rewrites the detector's findings before registration.
	detected func(found []detector.Conflict) []detector.Conflict
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCycleCap sets the escalation threshold. Values below 1 are ignored.
func WithCycleCap(n int) Option {
	return func(m *Manager) {
		if n >= 1 {
			m.cycleCap = n
		}
	}
}

// WithMaxValueLength sets the longest accepted candidate value. Values
// below 1 are ignored.
func WithMaxValueLength(n int) Option {
	return func(m *Manager) {
		if n >= 1 {
			m.maxValueLen = n
		}
	}
}

// New creates a Manager over a loaded catalogue and its collaborators.
func New(cat *catalogue.Catalogue, det *detector.Detector, res *deps.Resolver, opts ...Option) (*Manager, error) {
	const op = "artifact.new"
	if cat == nil || !cat.Loaded() {
		return nil, specerr.NotLoaded(op)
	}
	if det == nil || res == nil {
		return nil, specerr.Invalid(op, "", errors.New("detector and resolver are required"))
	}
	m := &Manager{
		cat:         cat,
		detector:    det,
		resolver:    res,
		log:         slog.New(slog.DiscardHandler),
		cycleCap:    DefaultCycleCap,
		maxValueLen: DefaultMaxValueLength,
		st:          newStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Catalogue returns the catalogue the manager was built over.
func (m *Manager) Catalogue() *catalogue.Catalogue {
	return m.cat
}

// CycleCap returns the escalation threshold.
func (m *Manager) CycleCap() int {
	return m.cycleCap
}

// Subscribe registers fn for the given event types, or for every event
// when none are given. The returned func unsubscribes.
func (m *Manager) Subscribe(fn Subscriber, types ...EventType) func() {
	return m.bus.subscribe(fn, types...)
}

// --- Transactions ---

// txn collects the events of one mutating call.
type txn struct {
	op     string
	now    time.Time
	events []Event
}

func (tx *txn) emit(e Event) {
	e.At = tx.now
	tx.events = append(tx.events, e)
}

// atomically runs fn against the live store. If fn fails the store is
// replaced by the copy taken beforehand and fn's events are dropped.
func (m *Manager) atomically(op string, fn func(tx *txn) error) error {
	before := m.st.snapshot()
	tx := &txn{op: op, now: timeNow().UTC()}
	if err := fn(tx); err != nil {
		m.st = before
		return err
	}
	m.bus.publish(tx.events)
	return nil
}

func (m *Manager) setState(tx *txn, to EngineState) {
	from := m.st.state
	if from == to {
		return
	}
	m.st.state = to
	m.log.Debug("engine state changed", "from", from, "to", to)
	tx.emit(Event{Type: EventStateChanged, From: from, To: to})
}

// settle blocks while conflicts are active and walks blocked → clearing →
// processing once the last one closes.
func (m *Manager) settle(tx *txn) {
	if len(m.st.active) > 0 {
		m.setState(tx, StateBlocked)
		return
	}
	if m.st.state == StateBlocked {
		m.setState(tx, StateClearing)
	}
	m.setState(tx, StateProcessing)
}

func (m *Manager) move(tx *txn, from, to Partition, ids []catalogue.NodeID, trigger Trigger, conflictID string) Movement {
	mv := Movement{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Nodes:      slices.Clone(ids),
		Trigger:    trigger,
		ConflictID: conflictID,
		At:         tx.now,
	}
	m.st.movements = append(m.st.movements, mv)
	cp := mv.clone()
	tx.emit(Event{Type: EventNodesMoved, Movement: &cp})
	return mv
}

// --- Queries ---

// EngineState returns the current engine state.
func (m *Manager) EngineState() EngineState {
	return m.st.state
}

// Selection returns validated ∪ pending.
func (m *Manager) Selection() catalogue.Selection {
	return m.st.selection()
}

// ActiveConflicts returns the active conflicts in registration order.
func (m *Manager) ActiveConflicts() []Conflict {
	return cloneConflicts(m.st.active)
}

// ResolvedConflicts returns the resolved log, oldest first.
func (m *Manager) ResolvedConflicts() []Conflict {
	return cloneConflicts(m.st.resolved)
}

// EscalatedConflicts returns the escalated log, oldest first.
func (m *Manager) EscalatedConflicts() []Conflict {
	return cloneConflicts(m.st.escalated)
}

// Conflict finds a conflict by ID in any log.
func (m *Manager) Conflict(id string) (Conflict, error) {
	for _, log := range [][]Conflict{m.st.active, m.st.escalated, m.st.resolved} {
		for _, c := range log {
			if c.ID == id {
				return c.clone(), nil
			}
		}
	}
	return Conflict{}, specerr.NotFound("artifact.conflict", id)
}

// Movements returns the movement log, oldest first.
func (m *Manager) Movements() []Movement {
	return cloneMovements(m.st.movements)
}

// State returns a deep copy of the whole working state.
func (m *Manager) State() Snapshot {
	unrec := make([]UnrecognizedEntry, 0, len(m.st.unrecognized))
	for _, key := range sortedKeys(m.st.unrecognized) {
		unrec = append(unrec, m.st.unrecognized[key])
	}
	return Snapshot{
		State:        m.st.state,
		Validated:    sortedEntries(m.st.validated),
		Pending:      sortedEntries(m.st.pending),
		Unrecognized: unrec,
		Active:       cloneConflicts(m.st.active),
		Resolved:     cloneConflicts(m.st.resolved),
		Escalated:    cloneConflicts(m.st.escalated),
		Movements:    cloneMovements(m.st.movements),
	}
}

// BlockingReason explains why the engine is blocked, or returns "" when it
// is not.
func (m *Manager) BlockingReason() string {
	if m.st.state != StateBlocked || len(m.st.active) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "blocked by %d active conflict(s):", len(m.st.active))
	for _, c := range m.st.active {
		fmt.Fprintf(&b, "\n- [%s] %s (conflict %s, attempt %d of %d)", c.Kind, c.Description, c.ID, c.Cycles, m.cycleCap)
	}
	return b.String()
}

// DebugDump renders the state as plain text for diagnostics.
func (m *Manager) DebugDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", m.st.state)

	writeEntries := func(title string, entries []Entry) {
		fmt.Fprintf(&b, "%s (%d):\n", title, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&b, "  %s [%s] = %q", e.NodeID, e.Field, e.Value)
			if e.SubstitutionNote != "" {
				fmt.Fprintf(&b, " (%s)", e.SubstitutionNote)
			}
			b.WriteByte('\n')
		}
	}
	writeEntries("validated", sortedEntries(m.st.validated))
	writeEntries("pending", sortedEntries(m.st.pending))

	fmt.Fprintf(&b, "unrecognized (%d):\n", len(m.st.unrecognized))
	for _, key := range sortedKeys(m.st.unrecognized) {
		u := m.st.unrecognized[key]
		fmt.Fprintf(&b, "  %q = %q\n", u.Candidate, u.Value)
	}

	writeConflicts := func(title string, conflicts []Conflict) {
		fmt.Fprintf(&b, "%s conflicts (%d):\n", title, len(conflicts))
		for _, c := range conflicts {
			fmt.Fprintf(&b, "  %s %s %s cycles=%d", c.ID, c.Kind, c.PairKey, c.Cycles)
			if c.Outcome != "" {
				fmt.Fprintf(&b, " outcome=%s", c.Outcome)
			}
			if c.ChosenOption != "" {
				fmt.Fprintf(&b, " option=%s", c.ChosenOption)
			}
			b.WriteByte('\n')
		}
	}
	writeConflicts("active", m.st.active)
	writeConflicts("escalated", m.st.escalated)
	writeConflicts("resolved", m.st.resolved)

	fmt.Fprintf(&b, "movements (%d):\n", len(m.st.movements))
	for _, mv := range m.st.movements {
		fmt.Fprintf(&b, "  %s %s -> %s %v (%s)\n", mv.At.Format(time.RFC3339), mv.From, mv.To, mv.Nodes, mv.Trigger)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
