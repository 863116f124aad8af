// Package flow loads and validates declarative flow graphs and exposes them
// read-only by identifier. Definitions are immutable after load and safely
// shared across all sessions.
package flow

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Registry holds validated flow definitions. Read-only at runtime.
type Registry struct {
	flows map[string]*domain.FlowDefinition
}

// New builds a registry from in-memory definitions, validating each one.
func New(defs ...*domain.FlowDefinition) (*Registry, error) {
	r := &Registry{flows: make(map[string]*domain.FlowDefinition, len(defs))}
	for _, def := range defs {
		if err := Validate(def); err != nil {
			return nil, err
		}
		if _, dup := r.flows[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate flow id %q", domain.ErrMalformedFlow, def.ID)
		}
		r.flows[def.ID] = def
	}
	return r, nil
}

// NewFromFS loads every YAML flow definition found in fsys.
func NewFromFS(fsys fs.FS) (*Registry, error) {
	defs, err := loadDir(fsys)
	if err != nil {
		return nil, err
	}
	return New(defs...)
}

// Get returns the flow definition for id.
func (r *Registry) Get(id string) (*domain.FlowDefinition, error) {
	def, ok := r.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFlow, id)
	}
	return def, nil
}

// IDs returns the registered flow identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks the integrity constraints of one flow definition: a present
// start node, and every fixed target, classified route target and fallback
// resolving to an existing node. Terminal targets are markers, not nodes, so
// they are exempt.
func Validate(def *domain.FlowDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("%w: flow without an id", domain.ErrMalformedFlow)
	}
	if def.Start == "" {
		return fmt.Errorf("%w: flow %q has no start node", domain.ErrMalformedFlow, def.ID)
	}
	if _, ok := def.Nodes[def.Start]; !ok {
		return fmt.Errorf("%w: flow %q start node %q does not exist", domain.ErrMalformedFlow, def.ID, def.Start)
	}

	for id, node := range def.Nodes {
		spec := node.Transition
		switch spec.Kind {
		case domain.TransitionFixed:
			if _, ok := def.Nodes[spec.Target]; !ok {
				return fmt.Errorf("%w: flow %q node %q targets unknown node %q",
					domain.ErrMalformedFlow, def.ID, id, spec.Target)
			}
		case domain.TransitionClassified:
			if len(spec.Routes) == 0 {
				return fmt.Errorf("%w: flow %q node %q has an empty classified map",
					domain.ErrMalformedFlow, def.ID, id)
			}
			for _, route := range spec.Routes {
				if _, ok := def.Nodes[route.To]; !ok {
					return fmt.Errorf("%w: flow %q node %q route %q targets unknown node %q",
						domain.ErrMalformedFlow, def.ID, id, route.Match, route.To)
				}
			}
		case domain.TransitionTerminal:
			if spec.FlowType != domain.FlowFormSubmission && spec.FlowType != domain.FlowEligibility {
				return fmt.Errorf("%w: flow %q node %q has unknown flow type %q",
					domain.ErrMalformedFlow, def.ID, id, spec.FlowType)
			}
		default:
			return fmt.Errorf("%w: flow %q node %q has unknown transition kind %q",
				domain.ErrMalformedFlow, def.ID, id, spec.Kind)
		}
	}
	return nil
}
