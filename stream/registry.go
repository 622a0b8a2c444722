package stream

import (
	"context"

	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/model"
)

// Cascader deletes every dependent of a parent and reports how many were deleted and
// how many failed. *engine.Dependents satisfies it.
type Cascader interface {
	CascadeDelete(ctx context.Context, parent model.OID) (deleted, failed int, err error)
}

// Relationship links a parent entity type to one dependent type.
type Relationship struct {
	ParentType string
	ChildType  string

	// Target deletes the children of a deleted parent.
	Target Cascader
}

// Registry maps parent entity types to the dependents deleted with them. A dependent type
// has a single parent, so it is registered at most once.
type Registry struct {
	order   []string
	byChild map[string]Relationship
}

func NewRegistry() *Registry {
	return &Registry{byChild: make(map[string]Relationship)}
}

// Register adds rel. A later registration of the same child type replaces the earlier
// one and keeps its position.
func (r *Registry) Register(rel Relationship) {
	if _, ok := r.byChild[rel.ChildType]; !ok {
		r.order = append(r.order, rel.ChildType)
	}
	r.byChild[rel.ChildType] = rel
}

// RegisterDependents registers the relationship served by a dependent engine.
func RegisterDependents[M model.Dependent](r *Registry, d *engine.Dependents[M]) {
	r.Register(Relationship{
		ParentType: d.ParentType(),
		ChildType:  d.EntityType(),
		Target:     d,
	})
}

// ChildrenOf lists the relationships of parentType in registration order.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	var out []Relationship
	for _, child := range r.order {
		if rel := r.byChild[child]; rel.ParentType == parentType {
			out = append(out, rel)
		}
	}
	return out
}

// AllRelationships lists every relationship in registration order.
func (r *Registry) AllRelationships() []Relationship {
	out := make([]Relationship, 0, len(r.order))
	for _, child := range r.order {
		out = append(out, r.byChild[child])
	}
	return out
}

func (r *Registry) HasChildren(parentType string) bool {
	for _, rel := range r.byChild {
		if rel.ParentType == parentType {
			return true
		}
	}
	return false
}
