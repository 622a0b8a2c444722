package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jacentio/persist/marshal"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Definition describes how one entity type is persisted.
type Definition[M model.Object] struct {
	Schema store.Schema

	// NewObject allocates an empty model object. Optional when M is a pointer type.
	NewObject func() M

	// Marshaller encodes the entity descriptor. Default: marshal.JSON.
	Marshaller marshal.Marshaller

	// Keys derives storage keys. Default: PlainKeys, or VersionedKeys for versioned schemas.
	Keys KeyStrategy

	// Transform maps objects to entities and back. Default: DescriptorTransform.
	Transform Transform[M]

	// Hooks run around every write, in order.
	Hooks []Hook[M]

	// ImmutableFields returns the names of fields that differ between the stored and the
	// incoming object but must not change on update.
	ImmutableFields func(stored, incoming M) []string

	// Complete fills derived entity fields after the transform, before hooks run.
	Complete func(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error
}

func (d Definition[M]) keys() KeyStrategy {
	if d.Keys != nil {
		return d.Keys
	}
	return keysFor(d.Schema)
}

func (d Definition[M]) transform() Transform[M] {
	if d.Transform != nil {
		return d.Transform
	}
	return NewDescriptorTransform(d.Schema, d.keys(), d.Marshaller, d.NewObject)
}

// CRUD persists model objects of one entity type. Business outcomes are reported as
// results; the returned error is non-nil only for faults (violated preconditions,
// transform or hook failures, unclassified store errors).
type CRUD[M model.Object] struct {
	store     store.EntityStore
	schema    store.Schema
	keys      KeyStrategy
	transform Transform[M]
	hooks     hookChain[M]
	immutable func(stored, incoming M) []string
	complete  func(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error
	config    Config
	logger    *slog.Logger
}

// New creates a CRUD engine for the entity type of def.
func New[M model.Object](st store.EntityStore, def Definition[M], cfg Config) *CRUD[M] {
	cfg.validate()
	return &CRUD[M]{
		store:     st,
		schema:    def.Schema,
		keys:      def.keys(),
		transform: def.transform(),
		hooks:     append(hookChain[M](nil), def.Hooks...),
		immutable: def.ImmutableFields,
		complete:  def.Complete,
		config:    cfg,
		logger:    cfg.Logger.With("entityType", def.Schema.Type),
	}
}

// EntityType returns the entity type name.
func (c *CRUD[M]) EntityType() string { return c.schema.Type }

// Schema returns the storage schema.
func (c *CRUD[M]) Schema() store.Schema { return c.schema }

// Load loads the object with the given OID.
func (c *CRUD[M]) Load(ctx context.Context, oid model.OID) (result.Result[M], error) {
	start := time.Now()
	key, err := c.keys.DeriveKey(oid)
	if err != nil {
		return c.done(ctx, result.Load, start, c.badKey(result.Load, oid, err), nil)
	}
	res, err := c.loadKey(ctx, key)
	return c.done(ctx, result.Load, start, res, err)
}

// Exists reports whether an object with the given OID is stored.
func (c *CRUD[M]) Exists(ctx context.Context, oid model.OID) (bool, error) {
	key, err := c.keys.DeriveKey(oid)
	if err != nil {
		return false, err
	}
	rows, err := c.store.FindByKey(ctx, c.schema.Type, key)
	if err != nil {
		return false, fmt.Errorf("exists %s %s: %w", c.schema.Type, key, err)
	}
	return len(rows) > 0, nil
}

// Create stores a new object. The object must not carry an entity version; an OID is
// assigned if it has none. The assigned OID, version OID and tracking info stay on obj only
// when the result is OK; on any other outcome obj is left as it was passed.
func (c *CRUD[M]) Create(ctx context.Context, obj M) (result.Result[M], error) {
	start := time.Now()
	res, err := c.create(ctx, obj, nil)
	return c.done(ctx, result.Create, start, res, err)
}

// Update stores a modified object. The object must carry the entity version it was
// loaded with. Like Create, it only leaves new tracking info on obj when the result is OK.
func (c *CRUD[M]) Update(ctx context.Context, obj M) (result.Result[M], error) {
	start := time.Now()
	res, err := c.update(ctx, obj, nil)
	return c.done(ctx, result.Update, start, res, err)
}

// Delete removes the object with the given OID. The OK result carries the object as it
// was before removal.
func (c *CRUD[M]) Delete(ctx context.Context, oid model.OID) (result.Result[M], error) {
	start := time.Now()
	key, err := c.keys.DeriveKey(oid)
	if err != nil {
		return c.done(ctx, result.Delete, start, c.badKey(result.Delete, oid, err), nil)
	}
	res, err := c.deleteKey(ctx, key, nil)
	return c.done(ctx, result.Delete, start, res, err)
}

func (c *CRUD[M]) loadKey(ctx context.Context, key store.PK) (result.Result[M], error) {
	rows, err := c.store.FindByKey(ctx, c.schema.Type, key)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", c.schema.Type, key, err)
	}
	if res := c.checkRows(result.Load, key, rows); res != nil {
		return res, nil
	}
	obj, err := c.toModel(rows[0])
	if err != nil {
		return nil, err
	}
	return result.ForEntity[M](c.schema.Type).Loaded().Entity(obj), nil
}

func (c *CRUD[M]) create(ctx context.Context, obj M, extra Hook[M]) (res result.Result[M], err error) {
	restore := preserve(obj)
	defer func() {
		if !succeeded(res, err) {
			restore()
		}
	}()

	if v := obj.GetEntityVersion(); v != 0 {
		return nil, fmt.Errorf("%w: create %s %s with entity version %d", ErrPrecondition, c.schema.Type, obj.GetOID(), v)
	}
	if obj.GetOID().IsZero() {
		obj.SetOID(c.config.NewOID())
	}
	if vo, ok := any(obj).(model.Versionable); ok && c.schema.Versioned && vo.GetVersion().IsZero() {
		vo.SetVersion(c.config.NewVersion())
	}

	key, err := c.keys.DeriveObjectKey(obj)
	if err != nil {
		return c.badKey(result.Create, obj.GetOID(), err), nil
	}
	if res := c.validate(result.Create, key, obj); res != nil {
		return res, nil
	}

	rows, err := c.store.FindByKey(ctx, c.schema.Type, key)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", c.schema.Type, key, err)
	}
	if len(rows) > 0 {
		return aboutKey(result.ForEntity[M](c.schema.Type).NotCreated().BecauseClientRequestedEntityAlreadyExists(), key).Build(), nil
	}

	now := c.config.Clock()
	actor := model.ActorFrom(ctx)
	obj.SetTrackingInfo(model.TrackingInfo{CreatedBy: actor, CreatedAt: now, UpdatedBy: actor, UpdatedAt: now})

	return c.write(ctx, result.Created, key, obj, extra)
}

func (c *CRUD[M]) update(ctx context.Context, obj M, extra Hook[M]) (res result.Result[M], err error) {
	restore := preserve(obj)
	defer func() {
		if !succeeded(res, err) {
			restore()
		}
	}()

	if obj.GetEntityVersion() == 0 {
		return nil, fmt.Errorf("%w: update %s %s without entity version", ErrPrecondition, c.schema.Type, obj.GetOID())
	}

	key, err := c.keys.DeriveObjectKey(obj)
	if err != nil {
		return c.badKey(result.Update, obj.GetOID(), err), nil
	}
	if res := c.validate(result.Update, key, obj); res != nil {
		return res, nil
	}

	rows, err := c.store.FindByKey(ctx, c.schema.Type, key)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", c.schema.Type, key, err)
	}
	if res := c.checkRows(result.Update, key, rows); res != nil {
		return res, nil
	}
	stored, err := c.toModel(rows[0])
	if err != nil {
		return nil, err
	}
	if c.immutable != nil {
		if changed := c.immutable(stored, obj); len(changed) > 0 {
			return aboutKey(result.ForEntity[M](c.schema.Type).NotUpdated().
				BecauseClientBadRequest("immutable properties changed"), key).
				And("properties", strings.Join(changed, ",")).
				Build(), nil
		}
	}

	prev := stored.GetTrackingInfo()
	obj.SetTrackingInfo(model.TrackingInfo{
		CreatedBy: prev.CreatedBy,
		CreatedAt: prev.CreatedAt,
		UpdatedBy: model.ActorFrom(ctx),
		UpdatedAt: c.config.Clock(),
	})

	return c.write(ctx, result.Updated, key, obj, extra)
}

func (c *CRUD[M]) write(ctx context.Context, op result.PerformedOperation, key store.PK, obj M, extra Hook[M]) (result.Result[M], error) {
	draft, err := c.transform.ToEntity(obj, op)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", op, c.schema.Type, key, err)
	}
	if draft == nil {
		return nil, fmt.Errorf("%s %s %s: %w", op, c.schema.Type, key, ErrNilTransform)
	}
	if c.complete != nil {
		if err := c.complete(ctx, op, obj, draft); err != nil {
			return nil, fmt.Errorf("%s %s %s: complete: %w", op, c.schema.Type, key, err)
		}
	}

	hooks := c.chain(extra)
	if err := hooks.before(ctx, op, obj, draft); err != nil {
		return nil, err
	}

	persisted, err := c.store.Write(ctx, draft)
	if err != nil {
		return c.writeFailure(op.Requested(), key, err)
	}

	out, err := c.toModel(persisted)
	if err != nil {
		return nil, err
	}
	if err := hooks.after(ctx, op, persisted, out); err != nil {
		return nil, err
	}
	return result.ForEntity[M](c.schema.Type).Executed(op.Requested(), op).Entity(out), nil
}

func (c *CRUD[M]) deleteKey(ctx context.Context, key store.PK, extra Hook[M]) (result.Result[M], error) {
	rows, err := c.store.FindByKey(ctx, c.schema.Type, key)
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", c.schema.Type, key, err)
	}
	if res := c.checkRows(result.Delete, key, rows); res != nil {
		return res, nil
	}

	current, err := c.store.Refresh(ctx, rows[0])
	if errors.Is(err, store.ErrNotFound) {
		return aboutKey(result.ForEntity[M](c.schema.Type).NotDeleted().BecauseClientRequestedEntityWasNOTFound(), key).Build(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: refresh: %w", c.schema.Type, key, err)
	}
	snapshot, err := c.toModel(current)
	if err != nil {
		return nil, err
	}

	hooks := c.chain(extra)
	if err := hooks.before(ctx, result.Deleted, snapshot, current); err != nil {
		return nil, err
	}
	if err := c.store.Remove(ctx, current); err != nil {
		return c.writeFailure(result.Delete, key, err)
	}
	if err := hooks.after(ctx, result.Deleted, current, snapshot); err != nil {
		return nil, err
	}
	return result.ForEntity[M](c.schema.Type).Deleted().Entity(snapshot), nil
}

// checkRows returns an Error result unless rows holds exactly one entity.
func (c *CRUD[M]) checkRows(op result.RequestedOperation, key store.PK, rows []*store.Entity) result.Result[M] {
	switch len(rows) {
	case 0:
		return aboutKey(result.ForEntity[M](c.schema.Type).Not(op).BecauseClientRequestedEntityWasNOTFound(), key).Build()
	case 1:
		return nil
	}
	return aboutKey(result.ForEntity[M](c.schema.Type).Not(op).
		BecauseServerError(fmt.Errorf("%d rows stored under one key", len(rows))), key).
		And("rows", len(rows)).
		Build()
}

func (c *CRUD[M]) validate(op result.RequestedOperation, key store.PK, obj M) result.Result[M] {
	v, ok := any(obj).(model.Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return aboutKey(result.ForEntity[M](c.schema.Type).Not(op).
			BecauseClientSentEntityValidationErrors("%s", err.Error()), key).
			Build()
	}
	return nil
}

func (c *CRUD[M]) writeFailure(op result.RequestedOperation, key store.PK, err error) (result.Result[M], error) {
	wf := ClassifyWriteFailure(err)
	if !wf.Known {
		return nil, fmt.Errorf("%s %s %s: %w", strings.ToLower(op.String()), c.schema.Type, key, err)
	}
	c.logger.Warn("store rejected write", "op", op.String(), "key", key.String(), "errorType", wf.ErrorType.String(), "error", err)
	return aboutKey(result.ForEntity[M](c.schema.Type).Not(op).BecauseOf(wf.ErrorType, wf.Cause), key).Build(), nil
}

func (c *CRUD[M]) badKey(op result.RequestedOperation, oid model.OID, err error) result.Result[M] {
	return result.ForEntity[M](c.schema.Type).Not(op).
		BecauseClientBadRequest("cannot derive key: %v", err).
		About(oid).
		Build()
}

func (c *CRUD[M]) toModel(e *store.Entity) (M, error) {
	obj, err := c.transform.ToModelObject(e)
	if err != nil {
		return obj, fmt.Errorf("transform %s %s: %w", c.schema.Type, e.Key, err)
	}
	if isNil(obj) {
		return obj, fmt.Errorf("transform %s %s: %w", c.schema.Type, e.Key, ErrNilTransform)
	}
	return obj, nil
}

// done logs and observes a finished operation.
func (c *CRUD[M]) done(ctx context.Context, op result.RequestedOperation, start time.Time, res result.Result[M], err error) (result.Result[M], error) {
	finish(ctx, c.logger, c.config.Observer, c.schema.Type, op, start, res, err)
	return res, err
}

func finish[T any](ctx context.Context, logger *slog.Logger, obs Observer, entityType string, op result.RequestedOperation, start time.Time, res result.Result[T], err error) {
	elapsed := time.Since(start)
	outcome := outcomeOf(res, err)
	obs.Observe(entityType, op, outcome, elapsed)

	switch {
	case err != nil:
		logger.ErrorContext(ctx, "operation failed", "op", op.String(), "error", err, "elapsed", elapsed)
	case res.HasFailed():
		logger.DebugContext(ctx, "operation rejected", "op", op.String(), "outcome", outcome.Label(), "errorType", outcome.ErrorType.String())
	default:
		logger.DebugContext(ctx, "operation done", "op", op.String(), "outcome", outcome.Label(), "elapsed", elapsed)
	}
}

// aboutKey attaches the identity of key to a failure.
func aboutKey[R any](s result.AboutStep[R], key store.PK) result.BuildStep[R] {
	if key.Version != "" {
		return s.AboutVersion(model.OID(key.OID), model.VersionOID(key.Version))
	}
	return s.About(model.OID(key.OID))
}

// preserve records the fields create and update assign on the caller's object and returns
// a func that puts them back.
func preserve[M model.Object](obj M) func() {
	oid, tracking := obj.GetOID(), obj.GetTrackingInfo()
	vo, versioned := any(obj).(model.Versionable)
	var version model.VersionOID
	if versioned {
		version = vo.GetVersion()
	}
	return func() {
		obj.SetOID(oid)
		obj.SetTrackingInfo(tracking)
		if versioned {
			vo.SetVersion(version)
		}
	}
}

func succeeded[T any](res result.Result[T], err error) bool {
	return err == nil && res != nil && res.HasSucceeded()
}
