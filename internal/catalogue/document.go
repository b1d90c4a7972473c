package catalogue

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Document is the load format: nodes keyed by ID, exclusion edges keyed by
// ID, and field → ordered node ID mappings. Requirements are embedded per
// node as category → ordered candidate IDs.
type Document struct {
	Nodes      map[string]NodeSpec      `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Exclusions map[string]ExclusionSpec `json:"exclusions,omitempty" yaml:"exclusions,omitempty" validate:"dive"`
	Fields     map[string][]string      `json:"fields,omitempty" yaml:"fields,omitempty" validate:"dive,keys,required,endkeys,min=1,dive,required"`
}

// NodeSpec describes one node in a Document. Field may be omitted when the
// node appears in the document's field mappings. Name defaults to the ID.
type NodeSpec struct {
	Field    string              `json:"field,omitempty" yaml:"field,omitempty"`
	Name     string              `json:"name,omitempty" yaml:"name,omitempty"`
	Default  string              `json:"default,omitempty" yaml:"default,omitempty"`
	Requires map[string][]string `json:"requires,omitempty" yaml:"requires,omitempty" validate:"dive,keys,required,endkeys,min=1,dive,required"`
}

// ExclusionSpec describes one exclusion edge in a Document.
type ExclusionSpec struct {
	Nodes  []string `json:"nodes" yaml:"nodes" validate:"min=2,dive,required"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty"`
	Reason string   `json:"reason" yaml:"reason" validate:"required"`
	Prompt string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// documentValidate is shared; validator.Validate caches struct metadata.
var documentValidate = validator.New()

// Validate checks struct-level constraints and the cross-references between
// nodes, edges, fields and requirements. Dependency cycles are rejected so
// that cascade evaluation always terminates on loaded data.
func (d *Document) Validate() error {
	if d == nil {
		return errors.New("document is nil")
	}
	if err := documentValidate.Struct(d); err != nil {
		return fmt.Errorf("document schema: %w", err)
	}

	var errs []error
	for _, id := range sortedKeys(d.Nodes) {
		spec := d.Nodes[id]
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("node with empty ID"))
		}
		for _, cat := range sortedKeys(spec.Requires) {
			for _, cand := range spec.Requires[cat] {
				if cand == id {
					errs = append(errs, fmt.Errorf("node %q requires itself in category %q", id, cat))
					continue
				}
				if _, ok := d.Nodes[cand]; !ok {
					errs = append(errs, fmt.Errorf("node %q category %q references unknown node %q", id, cat, cand))
				}
			}
		}
	}

	for _, edgeID := range sortedKeys(d.Exclusions) {
		edge := d.Exclusions[edgeID]
		distinct := map[string]bool{}
		for _, n := range edge.Nodes {
			if _, ok := d.Nodes[n]; !ok {
				errs = append(errs, fmt.Errorf("exclusion %q references unknown node %q", edgeID, n))
			}
			distinct[n] = true
		}
		if len(distinct) < 2 {
			errs = append(errs, fmt.Errorf("exclusion %q must name at least two distinct nodes", edgeID))
		}
	}

	if _, err := d.fieldIndex(); err != nil {
		errs = append(errs, err)
	}

	if err := d.checkAcyclic(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// fieldIndex resolves every node to exactly one field. Explicit field
// mappings come first in declared order; nodes that only name their field
// in their own spec are appended in ID order.
func (d *Document) fieldIndex() (map[string][]NodeID, error) {
	var errs []error
	owner := map[string]string{}
	index := map[string][]NodeID{}

	for _, field := range sortedKeys(d.Fields) {
		for _, n := range d.Fields[field] {
			spec, ok := d.Nodes[n]
			if !ok {
				errs = append(errs, fmt.Errorf("field %q references unknown node %q", field, n))
				continue
			}
			if prev, dup := owner[n]; dup {
				if prev == field {
					errs = append(errs, fmt.Errorf("field %q lists node %q twice", field, n))
				} else {
					errs = append(errs, fmt.Errorf("node %q is mapped to both %q and %q", n, prev, field))
				}
				continue
			}
			if spec.Field != "" && spec.Field != field {
				errs = append(errs, fmt.Errorf("node %q declares field %q but is mapped to %q", n, spec.Field, field))
				continue
			}
			owner[n] = field
			index[field] = append(index[field], NodeID(n))
		}
	}

	for _, id := range sortedKeys(d.Nodes) {
		if _, ok := owner[id]; ok {
			continue
		}
		spec := d.Nodes[id]
		if spec.Field == "" {
			errs = append(errs, fmt.Errorf("node %q has no field", id))
			continue
		}
		owner[id] = spec.Field
		index[spec.Field] = append(index[spec.Field], NodeID(id))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return index, nil
}

// checkAcyclic walks the requirement graph (node → every candidate of every
// category) and reports the first cycle found.
func (d *Document) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(d.Nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		path = append(path, id)
		spec := d.Nodes[id]
		for _, cat := range sortedKeys(spec.Requires) {
			for _, cand := range spec.Requires[cat] {
				if _, ok := d.Nodes[cand]; !ok || cand == id {
					continue // reported elsewhere
				}
				switch color[cand] {
				case grey:
					start := indexOf(path, cand)
					cycle := append(append([]string{}, path[start:]...), cand)
					return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
				case white:
					if err := visit(cand); err != nil {
						return err
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range sortedKeys(d.Nodes) {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
