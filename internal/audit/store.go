// Package audit keeps an append-only SQLite journal of engine events.
//
// Every committed artifact event is written to the events table. Node
// movements and conflict lifecycles are also projected into their own
// tables so they can be listed without replaying the journal.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/logging"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DBFile is the journal file name inside the data directory.
const DBFile = "audit.db"

const defaultLimit = 50

// --- Types ---

// MovementRecord is a stored node movement.
type MovementRecord struct {
	ID         string             `json:"id"`
	From       artifact.Partition `json:"from"`
	To         artifact.Partition `json:"to"`
	Nodes      []catalogue.NodeID `json:"nodes"`
	Trigger    artifact.Trigger   `json:"trigger"`
	ConflictID string             `json:"conflict_id,omitempty"`
	At         string             `json:"at"`
}

// ConflictRecord is the latest stored state of one conflict.
type ConflictRecord struct {
	ID           string                  `json:"id"`
	Kind         string                  `json:"kind"`
	Status       artifact.ConflictStatus `json:"status"`
	Candidate    catalogue.NodeID        `json:"candidate"`
	Opposing     []catalogue.NodeID      `json:"opposing"`
	PairKey      string                  `json:"pair_key"`
	Description  string                  `json:"description"`
	Cycles       int                     `json:"cycles"`
	Outcome      string                  `json:"outcome,omitempty"`
	ChosenOption string                  `json:"chosen_option,omitempty"`
	CreatedAt    string                  `json:"created_at"`
	UpdatedAt    string                  `json:"updated_at"`
	ClosedAt     *string                 `json:"closed_at,omitempty"`
}

// Stats counts journal rows.
type Stats struct {
	Events    int `json:"events"`
	Movements int `json:"movements"`
	Conflicts int `json:"conflicts"`
}

// --- Config ---

// Config holds journal configuration.
type Config struct {
	DataDir string
}

// DefaultConfig keeps the journal in ~/.specgate.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".specgate")}
}

// --- Store ---

// Store is the SQLite-backed journal.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// storeHooks lets tests fail individual database calls.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	return db.Query(query, args...)
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates the data directory, opens the journal in WAL mode and runs
// migrations.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the journal file path.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.DataDir, DBFile)
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			type     TEXT NOT NULL,
			node     TEXT,
			payload  TEXT NOT NULL,
			at       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS movements (
			id             TEXT PRIMARY KEY,
			from_partition TEXT NOT NULL,
			to_partition   TEXT NOT NULL,
			nodes          TEXT NOT NULL,
			move_trigger   TEXT NOT NULL,
			conflict_id    TEXT,
			at             TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conflicts (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			status        TEXT NOT NULL,
			candidate     TEXT NOT NULL,
			opposing      TEXT NOT NULL,
			pair_key      TEXT NOT NULL,
			description   TEXT NOT NULL,
			cycles        INTEGER NOT NULL DEFAULT 0,
			outcome       TEXT,
			chosen_option TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			closed_at     TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_movements_at ON movements(at);
		CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts(status, updated_at);
	`
	_, err := s.execHook(s.db, schema)
	return err
}

// --- Writes ---

// Record journals one event in a single transaction.
func (s *Store) Record(e artifact.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.execHook(tx,
		`INSERT INTO events (type, node, payload, at) VALUES (?, ?, ?, ?)`,
		string(e.Type), nullableString(string(e.Node)), string(payload), formatTime(e.At),
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	if e.Movement != nil {
		if err := s.putMovement(tx, e.Movement); err != nil {
			return err
		}
	}
	if e.Conflict != nil {
		if err := s.putConflict(tx, e.Conflict); err != nil {
			return err
		}
	}

	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	return nil
}

func (s *Store) putMovement(db execer, m *artifact.Movement) error {
	nodes, err := encodeIDs(m.Nodes)
	if err != nil {
		return err
	}
	_, err = s.execHook(db,
		`INSERT OR IGNORE INTO movements (id, from_partition, to_partition, nodes, move_trigger, conflict_id, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.From), string(m.To), nodes, string(m.Trigger), nullableString(m.ConflictID), formatTime(m.At),
	)
	if err != nil {
		return fmt.Errorf("audit: insert movement: %w", err)
	}
	return nil
}

// putConflict upserts the conflict's latest state. created_at never
// changes after the first write.
func (s *Store) putConflict(db execer, c *artifact.Conflict) error {
	opposing, err := encodeIDs(c.Opposing)
	if err != nil {
		return err
	}
	var closedAt any
	if c.ClosedAt != nil {
		closedAt = formatTime(*c.ClosedAt)
	}
	_, err = s.execHook(db,
		`INSERT INTO conflicts (id, kind, status, candidate, opposing, pair_key, description, cycles,
		                        outcome, chosen_option, created_at, updated_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status        = excluded.status,
			cycles        = excluded.cycles,
			outcome       = excluded.outcome,
			chosen_option = excluded.chosen_option,
			updated_at    = excluded.updated_at,
			closed_at     = excluded.closed_at`,
		c.ID, string(c.Kind), string(c.Status), string(c.Candidate), opposing, c.PairKey, c.Description, c.Cycles,
		nullableString(c.Outcome), nullableString(c.ChosenOption), formatTime(c.CreatedAt), formatTime(c.UpdatedAt), closedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: upsert conflict: %w", err)
	}
	return nil
}

// Subscriber returns an artifact.Subscriber that journals every event.
// Write failures are logged; they never fail the engine operation.
func (s *Store) Subscriber(log *slog.Logger) artifact.Subscriber {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(e artifact.Event) {
		if err := s.Record(e); err != nil {
			log.Warn("audit write failed", "event", string(e.Type), logging.Err(err))
		}
	}
}

// --- Reads ---

// Movements returns the most recent movements, newest first.
func (s *Store) Movements(limit int) ([]MovementRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.queryItHook(s.db,
		`SELECT id, from_partition, to_partition, nodes, move_trigger, ifnull(conflict_id, ''), at
		 FROM movements ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MovementRecord
	for rows.Next() {
		var (
			m     MovementRecord
			nodes string
		)
		if err := rows.Scan(&m.ID, &m.From, &m.To, &nodes, &m.Trigger, &m.ConflictID, &m.At); err != nil {
			return nil, err
		}
		if m.Nodes, err = decodeIDs(nodes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Conflicts returns conflicts by most recent update, optionally filtered
// by status.
func (s *Store) Conflicts(status artifact.ConflictStatus, limit int) ([]ConflictRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	query := `SELECT id, kind, status, candidate, opposing, pair_key, description, cycles,
	                 ifnull(outcome, ''), ifnull(chosen_option, ''), created_at, updated_at, closed_at
	          FROM conflicts`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConflictRecord
	for rows.Next() {
		var (
			c        ConflictRecord
			opposing string
			closedAt sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Kind, &c.Status, &c.Candidate, &opposing, &c.PairKey, &c.Description,
			&c.Cycles, &c.Outcome, &c.ChosenOption, &c.CreatedAt, &c.UpdatedAt, &closedAt); err != nil {
			return nil, err
		}
		if c.Opposing, err = decodeIDs(opposing); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			c.ClosedAt = &closedAt.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats counts rows in each table.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"events", &st.Events},
		{"movements", &st.Movements},
		{"conflicts", &st.Conflicts},
	} {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("audit: count %s: %w", q.table, err)
		}
	}
	return st, nil
}

// --- Helpers ---

// RecordFromMovement converts an in-memory movement to its stored form.
func RecordFromMovement(m artifact.Movement) MovementRecord {
	return MovementRecord{
		ID:         m.ID,
		From:       m.From,
		To:         m.To,
		Nodes:      slices.Clone(m.Nodes),
		Trigger:    m.Trigger,
		ConflictID: m.ConflictID,
		At:         formatTime(m.At),
	}
}

// timeLayout is fixed width so stored timestamps sort correctly as text.
// time.RFC3339Nano trims trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func encodeIDs(ids []catalogue.NodeID) (string, error) {
	if ids == nil {
		ids = []catalogue.NodeID{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("audit: encode node ids: %w", err)
	}
	return string(b), nil
}

func decodeIDs(s string) ([]catalogue.NodeID, error) {
	var ids []catalogue.NodeID
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("audit: decode node ids: %w", err)
	}
	return ids, nil
}
