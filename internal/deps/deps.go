// Package deps checks and fulfils dependency requirements.
//
// A requirement is a list of categories. A category is satisfied when at
// least one of its candidates is selected; the requirement is satisfied
// when every category is. AutoSatisfy fills missing categories greedily,
// trying candidates in declared order, so catalogue order is priority.
package deps

import (
	"errors"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// ConflictChecker reports whether adding a node to a selection would raise
// a conflict. *detector.Detector implements it.
type ConflictChecker interface {
	WouldConflict(candidate catalogue.NodeID, selection catalogue.Selection) (bool, error)
}

var errNoChecker = errors.New("resolver has no conflict checker")

// Resolver evaluates requirements against selections. It never mutates
// the selections it is given.
type Resolver struct {
	cat     *catalogue.Catalogue
	checker ConflictChecker
}

// New creates a Resolver.
func New(cat *catalogue.Catalogue, checker ConflictChecker) *Resolver {
	return &Resolver{cat: cat, checker: checker}
}

// Satisfaction is the result of CheckSatisfied.
type Satisfaction struct {
	Node      catalogue.NodeID `json:"node"`
	Satisfied bool             `json:"satisfied"`
	// Missing holds the unmet categories verbatim, in category order.
	Missing []catalogue.Category `json:"missing,omitempty"`
}

// MissingNames returns the names of the unmet categories.
func (s Satisfaction) MissingNames() []string {
	names := make([]string, len(s.Missing))
	for i, c := range s.Missing {
		names[i] = c.Name
	}
	return names
}

// CheckSatisfied reports which of id's requirement categories have no
// candidate in selection.
func (r *Resolver) CheckSatisfied(id catalogue.NodeID, selection catalogue.Selection) (Satisfaction, error) {
	req, err := r.cat.DependenciesOf(id)
	if err != nil {
		return Satisfaction{}, err
	}
	result := Satisfaction{Node: id}
	for _, category := range req {
		if !categoryMet(category, selection) {
			result.Missing = append(result.Missing, category)
		}
	}
	result.Satisfied = len(result.Missing) == 0
	return result, nil
}

// Addition is one node chosen by AutoSatisfy.
type Addition struct {
	Category string           `json:"category"`
	Node     catalogue.NodeID `json:"node"`
}

// Fulfillment is the result of AutoSatisfy.
type Fulfillment struct {
	Node catalogue.NodeID `json:"node"`
	// Selection is the input selection plus every added node.
	Selection catalogue.Selection `json:"-"`
	Added     []Addition          `json:"added,omitempty"`
	// Unresolved holds the categories with no conflict-free candidate.
	// An unsatisfiable dependency is an expected outcome, not an error.
	Unresolved []catalogue.Category `json:"unresolved,omitempty"`
}

// AddedIDs returns the added node IDs in the order they were chosen.
func (f Fulfillment) AddedIDs() []catalogue.NodeID {
	ids := make([]catalogue.NodeID, len(f.Added))
	for i, a := range f.Added {
		ids[i] = a.Node
	}
	return ids
}

// AutoSatisfy picks, for every missing category, the first candidate that
// can join the growing selection without a conflict. Candidates chosen for
// earlier categories count towards later ones.
func (r *Resolver) AutoSatisfy(id catalogue.NodeID, selection catalogue.Selection) (Fulfillment, error) {
	const op = "deps.auto_satisfy"
	if r.checker == nil {
		return Fulfillment{}, specerr.Internal(op, string(id), errNoChecker)
	}
	status, err := r.CheckSatisfied(id, selection)
	if err != nil {
		return Fulfillment{}, err
	}

	result := Fulfillment{Node: id, Selection: selection.Clone()}
	for _, category := range status.Missing {
		if categoryMet(category, result.Selection) {
			continue
		}
		chosen, ok, err := r.firstClean(category, result.Selection)
		if err != nil {
			return Fulfillment{}, err
		}
		if !ok {
			result.Unresolved = append(result.Unresolved, category)
			continue
		}
		result.Selection.Add(chosen)
		result.Added = append(result.Added, Addition{Category: category.Name, Node: chosen})
	}
	return result, nil
}

func (r *Resolver) firstClean(category catalogue.Category, selection catalogue.Selection) (catalogue.NodeID, bool, error) {
	for _, candidate := range category.Candidates {
		conflict, err := r.checker.WouldConflict(candidate, selection)
		if err != nil {
			return "", false, err
		}
		if !conflict {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func categoryMet(category catalogue.Category, selection catalogue.Selection) bool {
	for _, id := range category.Candidates {
		if selection.Has(id) {
			return true
		}
	}
	return false
}
