// Package artifact owns the mutable working state of a specification
// session: the validated, pending and unrecognized partitions, the active,
// resolved and escalated conflict logs, and the movement log.
//
// A Manager is single-writer. It does no locking of its own; callers that
// share one across goroutines must serialize access (see package session).
// Every mutating method is all-or-nothing: on error the state is exactly
// what it was before the call, and no events are published.
package artifact

import (
	"fmt"
	"slices"
	"time"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/detector"
)

// --- Partition enum ---

// Partition names where a tracked node lives.
type Partition string

const (
	PartitionValidated    Partition = "validated"
	PartitionPending      Partition = "pending"
	PartitionUnrecognized Partition = "unrecognized"
	// PartitionRemoved is the destination of a movement that drops nodes.
	PartitionRemoved Partition = "removed"
)

// --- Engine state enum ---

// EngineState is the coarse state of the whole manager.
type EngineState string

const (
	StateProcessing EngineState = "processing"
	StateBlocked    EngineState = "blocked"
	StateClearing   EngineState = "clearing"
)

// --- Movement trigger enum ---

// Trigger is the reason recorded on a movement.
type Trigger string

const (
	TriggerValidationPassed Trigger = "validation_passed"
	TriggerConflictResolved Trigger = "conflict_resolved"
	TriggerUserAction       Trigger = "user_action"
	TriggerLatestWins       Trigger = "latest_wins"
)

// validTriggers is the set of allowed movement triggers.
var validTriggers = map[Trigger]bool{
	TriggerValidationPassed: true,
	TriggerConflictResolved: true,
	TriggerUserAction:       true,
	TriggerLatestWins:       true,
}

// ValidateTrigger returns an error if the trigger is not recognized.
func ValidateTrigger(t Trigger) error {
	if !validTriggers[t] {
		return fmt.Errorf("invalid trigger %q: must be one of: validation_passed, conflict_resolved, user_action, latest_wins", t)
	}
	return nil
}

// --- Conflict status enum ---

// ConflictStatus is the lifecycle state of a conflict record.
// active → {resolved | escalated}; escalated → resolved by manual action.
type ConflictStatus string

const (
	StatusActive    ConflictStatus = "active"
	StatusResolved  ConflictStatus = "resolved"
	StatusEscalated ConflictStatus = "escalated"
)

// Resolution outcomes recorded on closed conflicts.
const (
	OutcomeChosen         = "chosen"
	OutcomeManual         = "manual"
	OutcomeSuperseded     = "superseded"
	OutcomeAutoLatestWins = "auto_latest_wins"
	OutcomeEscalated      = "escalated"
)

// --- Resolution option variant ---

// OptionKind is the closed set of resolution option shapes.
type OptionKind string

const (
	// OptionKeepCandidate keeps the node that raised the conflict and drops
	// the option's Drop set.
	OptionKeepCandidate OptionKind = "keep_candidate"
	// OptionKeepExisting keeps the already selected nodes and drops the
	// candidate.
	OptionKeepExisting OptionKind = "keep_existing"
	// OptionAcceptValue takes the newer value of a node tracked twice.
	OptionAcceptValue OptionKind = "accept_value"
	// OptionRevertValue keeps the older value of a node tracked twice.
	OptionRevertValue OptionKind = "revert_value"
)

// ResolutionOption is one way to settle a conflict.
type ResolutionOption struct {
	ID    string             `json:"id"`
	Kind  OptionKind         `json:"kind"`
	Label string             `json:"label"`
	Keep  []catalogue.NodeID `json:"keep"`
	Drop  []catalogue.NodeID `json:"drop"`
}

func (o ResolutionOption) clone() ResolutionOption {
	o.Keep = slices.Clone(o.Keep)
	o.Drop = slices.Clone(o.Drop)
	return o
}

// Entry is a tracked node with the value the caller supplied for it.
type Entry struct {
	NodeID           catalogue.NodeID `json:"node_id"`
	Field            string           `json:"field"`
	Value            string           `json:"value"`
	OriginalRequest  string           `json:"original_request,omitempty"`
	SubstitutionNote string           `json:"substitution_note,omitempty"`
	AddedAt          time.Time        `json:"added_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// UnrecognizedEntry is a candidate that did not resolve to any node.
type UnrecognizedEntry struct {
	Candidate       string    `json:"candidate"`
	Value           string    `json:"value,omitempty"`
	OriginalRequest string    `json:"original_request,omitempty"`
	Note            string    `json:"note,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Conflict is a registered conflict record.
type Conflict struct {
	ID     string         `json:"id"`
	Status ConflictStatus `json:"status"`
	detector.Conflict
	Options      []ResolutionOption `json:"options"`
	Cycles       int                `json:"cycles"`
	Outcome      string             `json:"outcome,omitempty"`
	ChosenOption string             `json:"chosen_option,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
}

// Option returns the option with the given ID.
func (c Conflict) Option(id string) (ResolutionOption, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ResolutionOption{}, false
}

// Names reports whether id is one of the conflict's contested nodes.
func (c Conflict) Names(id catalogue.NodeID) bool {
	return slices.Contains(c.Contested(), id)
}

func (c Conflict) clone() Conflict {
	c.Conflict = c.Conflict.Clone()
	opts := make([]ResolutionOption, len(c.Options))
	for i, o := range c.Options {
		opts[i] = o.clone()
	}
	c.Options = opts
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

// Movement is an append-only record of nodes moved between partitions.
type Movement struct {
	ID         string             `json:"id"`
	From       Partition          `json:"from"`
	To         Partition          `json:"to"`
	Nodes      []catalogue.NodeID `json:"nodes"`
	Trigger    Trigger            `json:"trigger"`
	ConflictID string             `json:"conflict_id,omitempty"`
	At         time.Time          `json:"at"`
}

func (m Movement) clone() Movement {
	m.Nodes = slices.Clone(m.Nodes)
	return m
}

// CandidateRequest is the input to AddCandidate.
type CandidateRequest struct {
	NodeID catalogue.NodeID
	// Value is the caller's value for the node's field. Empty means the
	// node's default, then its name.
	Value            string
	OriginalRequest  string
	SubstitutionNote string
}

// AddResult is returned by AddCandidate and RetryUnrecognized.
type AddResult struct {
	Entry Entry `json:"entry"`
	// Unchanged is set when the node was already validated with the same
	// value; nothing was mutated.
	Unchanged bool      `json:"unchanged,omitempty"`
	Detection Detection `json:"detection"`
}

// Detection is the outcome of one conflict detection pass.
type Detection struct {
	// New lists conflicts registered by this pass.
	New []Conflict `json:"new,omitempty"`
	// AutoResolved lists cross-artifact conflicts settled by latest-wins.
	AutoResolved []Conflict `json:"auto_resolved,omitempty"`
	// Superseded lists active conflicts closed because a contested node is
	// no longer tracked.
	Superseded []Conflict `json:"superseded,omitempty"`
	// Active is every active conflict after the pass.
	Active []Conflict `json:"active"`
}

// Resolution is returned by ResolveConflict and ResolveEscalated.
type Resolution struct {
	Conflict   Conflict           `json:"conflict"`
	Removed    []catalogue.NodeID `json:"removed"`
	Kept       []catalogue.NodeID `json:"kept"`
	Superseded []Conflict         `json:"superseded,omitempty"`
	State      EngineState        `json:"state"`
}

// CycleResult is returned by IncrementCycle.
type CycleResult struct {
	Conflict  Conflict    `json:"conflict"`
	Escalated bool        `json:"escalated"`
	State     EngineState `json:"state"`
}

// Hold-back reasons reported by PromoteNonConflicting.
const (
	HoldActiveConflict    = "active_conflict"
	HoldEscalatedConflict = "escalated_conflict"
	HoldUnmetDependency   = "unmet_dependency"
)

// HeldBack is a pending node that promotion left in place.
type HeldBack struct {
	Node       catalogue.NodeID `json:"node"`
	Reason     string           `json:"reason"`
	ConflictID string           `json:"conflict_id,omitempty"`
	Missing    []string         `json:"missing,omitempty"`
}

// Promotion is returned by PromoteNonConflicting.
type Promotion struct {
	Promoted []catalogue.NodeID `json:"promoted"`
	HeldBack []HeldBack         `json:"held_back,omitempty"`
	Movement *Movement          `json:"movement,omitempty"`
}

// Snapshot is a deep, read-only copy of the manager state.
type Snapshot struct {
	State        EngineState         `json:"state"`
	Validated    []Entry             `json:"validated"`
	Pending      []Entry             `json:"pending"`
	Unrecognized []UnrecognizedEntry `json:"unrecognized"`
	Active       []Conflict          `json:"active_conflicts"`
	Resolved     []Conflict          `json:"resolved_conflicts"`
	Escalated    []Conflict          `json:"escalated_conflicts"`
	Movements    []Movement          `json:"movements"`
}
