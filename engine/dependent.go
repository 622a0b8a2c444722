package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Dependents adds parent-scoped operations to the engines of a dependent entity type.
type Dependents[M model.Dependent] struct {
	crud   *CRUD[M]
	finder *Finder[M]
}

// NewDependents returns the dependent object operations over crud and finder.
func NewDependents[M model.Dependent](crud *CRUD[M], finder *Finder[M]) *Dependents[M] {
	return &Dependents[M]{crud: crud, finder: finder}
}

// ParentType returns the entity type of the parent.
func (d *Dependents[M]) ParentType() string { return d.crud.schema.ParentType }

// EntityType returns the entity type of the children.
func (d *Dependents[M]) EntityType() string { return d.crud.schema.Type }

// Create stores a new child of parent. The parent reference is written into the entity
// by a single-use hook, so it is set even if the object's own field is not mapped.
func (d *Dependents[M]) Create(ctx context.Context, parent model.OID, obj M) (result.Result[M], error) {
	start := time.Now()
	if parent.IsZero() {
		err := fmt.Errorf("%w: create %s", ErrMissingParent, d.crud.schema.Type)
		return d.crud.done(ctx, result.Create, start, nil, err)
	}
	prev := obj.GetParentOID()
	obj.SetParentOID(parent)
	res, err := d.crud.create(ctx, obj, parentHook[M](parent))
	if !succeeded(res, err) {
		obj.SetParentOID(prev)
	}
	return d.crud.done(ctx, result.Create, start, res, err)
}

// ChangeParent moves the child oid under newParent. It is an optimistic update of the
// currently stored object.
func (d *Dependents[M]) ChangeParent(ctx context.Context, oid model.OID, newParent model.OID) (result.Result[M], error) {
	start := time.Now()
	res, err := d.changeParent(ctx, oid, newParent)
	return d.crud.done(ctx, result.Update, start, res, err)
}

func (d *Dependents[M]) changeParent(ctx context.Context, oid model.OID, newParent model.OID) (result.Result[M], error) {
	if newParent.IsZero() {
		return nil, fmt.Errorf("%w: move %s %s", ErrMissingParent, d.crud.schema.Type, oid)
	}
	key, err := d.crud.keys.DeriveKey(oid)
	if err != nil {
		return d.crud.badKey(result.Update, oid, err), nil
	}
	rows, err := d.crud.store.FindByKey(ctx, d.crud.schema.Type, key)
	if err != nil {
		return nil, fmt.Errorf("move %s %s: %w", d.crud.schema.Type, key, err)
	}
	if res := d.crud.checkRows(result.Update, key, rows); res != nil {
		return res, nil
	}
	obj, err := d.crud.toModel(rows[0])
	if err != nil {
		return nil, err
	}
	obj.SetParentOID(newParent)
	return d.crud.update(ctx, obj, parentHook[M](newParent))
}

// FindChildsOf returns the children of parent.
func (d *Dependents[M]) FindChildsOf(ctx context.Context, parent model.OID) (result.Result[[]M], error) {
	return d.finder.Find(ctx, store.QueryByParent, store.Params{store.ParamParent: parent})
}

// CountChildsOf returns the number of children of parent.
func (d *Dependents[M]) CountChildsOf(ctx context.Context, parent model.OID) (result.Result[int64], error) {
	return d.finder.Count(ctx, store.QueryByParent, store.Params{store.ParamParent: parent})
}

// DeleteChildsOf removes every child of parent. Children that could not be removed are
// reported in the failed subset of a partial result. A parent without children yields
// an empty OK result.
func (d *Dependents[M]) DeleteChildsOf(ctx context.Context, parent model.OID) (result.Multiple[M], error) {
	start := time.Now()
	res, err := d.deleteChilds(ctx, parent)
	finish(ctx, d.crud.logger, d.crud.config.Observer, d.crud.schema.Type, result.Delete, start, result.Result[[]M](res), err)
	return res, err
}

func (d *Dependents[M]) deleteChilds(ctx context.Context, parent model.OID) (result.Multiple[M], error) {
	if parent.IsZero() {
		return nil, fmt.Errorf("%w: delete children of %s", ErrMissingParent, d.crud.schema.ParentType)
	}
	rows, err := d.finder.rows(ctx, store.QueryByParent, store.Params{store.ParamParent: parent})
	if err != nil {
		return nil, err
	}
	subs := make([]result.Result[M], 0, len(rows))
	for _, e := range rows {
		res, err := d.crud.deleteKey(ctx, e.Key, nil)
		if err != nil {
			return nil, err
		}
		subs = append(subs, res)
	}
	return result.ForEntities[M](d.crud.schema.Type).Deleted().Collect(subs...), nil
}

// CascadeDelete removes the children of a deleted parent and reports how many were
// removed and how many could not be.
func (d *Dependents[M]) CascadeDelete(ctx context.Context, parent model.OID) (deleted, failed int, err error) {
	res, err := d.DeleteChildsOf(ctx, parent)
	if err != nil {
		return 0, 0, err
	}
	return len(res.SucceededSubset()), len(res.FailedSubset()), nil
}

func parentHook[M model.Dependent](parent model.OID) Hook[M] {
	return HookFuncs[M]{
		Before: func(_ context.Context, _ result.PerformedOperation, _ M, draft *store.Entity) error {
			draft.ParentOID = parent.String()
			return nil
		},
	}
}
