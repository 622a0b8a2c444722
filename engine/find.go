package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Finder runs named queries for one entity type.
type Finder[M model.Object] struct {
	store     store.EntityStore
	schema    store.Schema
	transform Transform[M]
	config    Config
	logger    *slog.Logger
}

// NewFinder creates a Finder for the entity type of def.
func NewFinder[M model.Object](st store.EntityStore, def Definition[M], cfg Config) *Finder[M] {
	cfg.validate()
	return &Finder[M]{
		store:     st,
		schema:    def.Schema,
		transform: def.transform(),
		config:    cfg,
		logger:    cfg.Logger.With("entityType", def.Schema.Type),
	}
}

// EntityType returns the entity type name.
func (f *Finder[M]) EntityType() string { return f.schema.Type }

// Find runs a named query and returns the matching objects. Unknown queries and missing
// parameters are reported as BAD_REQUEST_DATA.
func (f *Finder[M]) Find(ctx context.Context, query string, params store.Params) (result.Result[[]M], error) {
	start := time.Now()
	res, err := f.find(ctx, query, params)
	finish(ctx, f.logger, f.config.Observer, f.schema.Type, result.Find, start, res, err)
	return res, err
}

// FindAll returns every object of the entity type.
func (f *Finder[M]) FindAll(ctx context.Context) (result.Result[[]M], error) {
	return f.Find(ctx, store.QueryAll, nil)
}

// FindOIDs runs a named query and returns the distinct OIDs of the matching rows, in
// query order.
func (f *Finder[M]) FindOIDs(ctx context.Context, query string, params store.Params) (result.Result[[]model.OID], error) {
	start := time.Now()
	res, err := f.findOIDs(ctx, query, params)
	finish(ctx, f.logger, f.config.Observer, f.schema.Type, result.Find, start, res, err)
	return res, err
}

// Count runs a named query and returns the number of matching rows.
func (f *Finder[M]) Count(ctx context.Context, query string, params store.Params) (result.Result[int64], error) {
	start := time.Now()
	res, err := f.count(ctx, query, params)
	finish(ctx, f.logger, f.config.Observer, f.schema.Type, result.Find, start, res, err)
	return res, err
}

// CountAll returns the number of rows of the entity type.
func (f *Finder[M]) CountAll(ctx context.Context) (result.Result[int64], error) {
	return f.Count(ctx, store.QueryAll, nil)
}

// FindSummaries runs a named query and maps every matching object to a summary.
func FindSummaries[M model.Object, S any](ctx context.Context, f *Finder[M], query string, params store.Params, summarize func(M) S) (result.Result[[]S], error) {
	start := time.Now()
	res, err := findSummaries(ctx, f, query, params, summarize)
	finish(ctx, f.logger, f.config.Observer, f.schema.Type, result.Find, start, res, err)
	return res, err
}

func findSummaries[M model.Object, S any](ctx context.Context, f *Finder[M], query string, params store.Params, summarize func(M) S) (result.Result[[]S], error) {
	objs, err := f.query(ctx, query, params)
	if rejected(err) {
		return queryRejected(result.ForSummaries[S](f.schema.Type).Failed(), query, err), nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]S, 0, len(objs))
	for _, obj := range objs {
		out = append(out, summarize(obj))
	}
	return result.ForSummaries[S](f.schema.Type).Found().Summaries(out), nil
}

func (f *Finder[M]) find(ctx context.Context, query string, params store.Params) (result.Result[[]M], error) {
	objs, err := f.query(ctx, query, params)
	if rejected(err) {
		return queryRejected(result.ForFind[M](f.schema.Type).Failed(), query, err), nil
	}
	if err != nil {
		return nil, err
	}
	return result.ForFind[M](f.schema.Type).Found().Entities(objs), nil
}

func (f *Finder[M]) findOIDs(ctx context.Context, query string, params store.Params) (result.Result[[]model.OID], error) {
	rows, err := f.rows(ctx, query, params)
	if rejected(err) {
		return queryRejected(result.ForOIDs(f.schema.Type).Failed(), query, err), nil
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	oids := make([]model.OID, 0, len(rows))
	for _, e := range rows {
		if seen[e.Key.OID] {
			continue
		}
		seen[e.Key.OID] = true
		oids = append(oids, model.OID(e.Key.OID))
	}
	return result.ForOIDs(f.schema.Type).Found().OIDs(oids), nil
}

func (f *Finder[M]) count(ctx context.Context, query string, params store.Params) (result.Result[int64], error) {
	rows, err := f.rows(ctx, query, params)
	if rejected(err) {
		return queryRejected(result.ForCount(f.schema.Type).NotCounted(), query, err), nil
	}
	if err != nil {
		return nil, err
	}
	return result.ForCount(f.schema.Type).Counted(int64(len(rows))), nil
}

// query runs a named query and transforms the rows.
func (f *Finder[M]) query(ctx context.Context, query string, params store.Params) ([]M, error) {
	rows, err := f.rows(ctx, query, params)
	if err != nil {
		return nil, err
	}
	objs := make([]M, 0, len(rows))
	for _, e := range rows {
		obj, err := f.transform.ToModelObject(e)
		if err != nil {
			return nil, fmt.Errorf("transform %s %s: %w", f.schema.Type, e.Key, err)
		}
		if isNil(obj) {
			return nil, fmt.Errorf("transform %s %s: %w", f.schema.Type, e.Key, ErrNilTransform)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func (f *Finder[M]) rows(ctx context.Context, query string, params store.Params) ([]*store.Entity, error) {
	rows, err := f.store.RunNamedQuery(ctx, f.schema.Type, query, params)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", f.schema.Type, query, err)
	}
	return rows, nil
}

// rejected reports whether the store refused to run a query at all.
func rejected(err error) bool {
	return errors.Is(err, store.ErrUnknownQuery) || errors.Is(err, store.ErrMissingParameter)
}

func queryRejected[R any](s result.CauseStep[R], query string, err error) R {
	return s.BecauseClientBadRequest("%v", err).AboutKey("query", query).Build()
}
