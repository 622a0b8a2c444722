package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Versions adds version-aware operations to the engines of a versioned entity type.
type Versions[M model.Versionable] struct {
	crud   *CRUD[M]
	finder *Finder[M]
	keys   VersionedKeys
}

// NewVersions returns the version operations over crud and finder. Both must serve the
// same versioned entity type.
func NewVersions[M model.Versionable](crud *CRUD[M], finder *Finder[M]) (*Versions[M], error) {
	if !crud.schema.Versioned {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, crud.schema.Type)
	}
	if finder.schema.Type != crud.schema.Type {
		return nil, fmt.Errorf("persist: finder serves %s, not %s", finder.schema.Type, crud.schema.Type)
	}
	return &Versions[M]{crud: crud, finder: finder}, nil
}

// LoadVersion loads one version.
func (v *Versions[M]) LoadVersion(ctx context.Context, id model.VersionedOID) (result.Result[M], error) {
	start := time.Now()
	key, err := v.keys.DeriveVersionKey(id)
	if err != nil {
		return v.crud.done(ctx, result.Load, start, v.crud.badKey(result.Load, id.OID, err), nil)
	}
	res, err := v.crud.loadKey(ctx, key)
	return v.crud.done(ctx, result.Load, start, res, err)
}

// LoadActiveVersionAt loads the version whose validity contains at. Work versions are
// never active.
func (v *Versions[M]) LoadActiveVersionAt(ctx context.Context, oid model.OID, at time.Time) (result.Result[M], error) {
	start := time.Now()
	res, err := v.loadMatching(ctx, oid, func(obj M) bool {
		return !obj.IsWorkVersion() && obj.GetValidity().Contains(at)
	}, "at", at.Format(time.RFC3339))
	return v.crud.done(ctx, result.Load, start, res, err)
}

// LoadWorkVersion loads the work version of oid.
func (v *Versions[M]) LoadWorkVersion(ctx context.Context, oid model.OID) (result.Result[M], error) {
	start := time.Now()
	res, err := v.loadMatching(ctx, oid, func(obj M) bool {
		return obj.IsWorkVersion()
	}, "work", true)
	return v.crud.done(ctx, result.Load, start, res, err)
}

// ListVersions returns every stored version of oid.
func (v *Versions[M]) ListVersions(ctx context.Context, oid model.OID) (result.Result[[]M], error) {
	return v.finder.Find(ctx, store.QueryByOID, store.Params{store.ParamOID: oid})
}

// DeleteVersion removes one version.
func (v *Versions[M]) DeleteVersion(ctx context.Context, id model.VersionedOID) (result.Result[M], error) {
	start := time.Now()
	key, err := v.keys.DeriveVersionKey(id)
	if err != nil {
		return v.crud.done(ctx, result.Delete, start, v.crud.badKey(result.Delete, id.OID, err), nil)
	}
	res, err := v.crud.deleteKey(ctx, key, nil)
	return v.crud.done(ctx, result.Delete, start, res, err)
}

// DeleteAllVersions removes every version of oid. Versions that could not be removed are
// reported in the failed subset of a partial result.
func (v *Versions[M]) DeleteAllVersions(ctx context.Context, oid model.OID) (result.Multiple[M], error) {
	start := time.Now()
	res, err := v.deleteAll(ctx, oid)
	finish(ctx, v.crud.logger, v.crud.config.Observer, v.crud.schema.Type, result.Delete, start, result.Result[[]M](res), err)
	return res, err
}

func (v *Versions[M]) deleteAll(ctx context.Context, oid model.OID) (result.Multiple[M], error) {
	if oid.IsZero() {
		return result.ForEntities[M](v.crud.schema.Type).NotDeleted().
			BecauseClientBadRequest("cannot derive key: %v", ErrNoOID).
			About(oid).
			Build(), nil
	}
	rows, err := v.finder.rows(ctx, store.QueryByOID, store.Params{store.ParamOID: oid})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return result.ForEntities[M](v.crud.schema.Type).NotDeleted().
			BecauseClientRequestedEntityWasNOTFound().
			About(oid).
			Build(), nil
	}
	subs := make([]result.Result[M], 0, len(rows))
	for _, e := range rows {
		res, err := v.crud.deleteKey(ctx, e.Key, nil)
		if err != nil {
			return nil, err
		}
		subs = append(subs, res)
	}
	return result.ForEntities[M](v.crud.schema.Type).Deleted().Collect(subs...), nil
}

// loadMatching loads the single version of oid accepted by match.
func (v *Versions[M]) loadMatching(ctx context.Context, oid model.OID, match func(M) bool, detail string, value any) (result.Result[M], error) {
	single := result.ForEntity[M](v.crud.schema.Type)
	if oid.IsZero() {
		return v.crud.badKey(result.Load, oid, ErrNoOID), nil
	}
	versions, err := v.finder.query(ctx, store.QueryByOID, store.Params{store.ParamOID: oid})
	if err != nil {
		return nil, err
	}

	var found []M
	for _, obj := range versions {
		if match(obj) {
			found = append(found, obj)
		}
	}
	switch len(found) {
	case 0:
		return single.NotLoaded().BecauseClientRequestedEntityWasNOTFound().About(oid).And(detail, value).Build(), nil
	case 1:
		return single.Loaded().Entity(found[0]), nil
	}
	return single.NotLoaded().
		BecauseServerError(fmt.Errorf("%d versions match", len(found))).
		About(oid).
		And(detail, value).
		Build(), nil
}
