package engine

import (
	"context"
	"fmt"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Hook is invoked around every storage write. BeforeWrite may change the entity draft
// before it reaches the store. A returned error aborts the operation as a fault.
type Hook[M model.Object] interface {
	BeforeWrite(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error
	AfterWrite(ctx context.Context, op result.PerformedOperation, persisted *store.Entity, obj M) error
}

// HookFuncs adapts a pair of functions to Hook. Nil functions are skipped.
type HookFuncs[M model.Object] struct {
	Before func(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error
	After  func(ctx context.Context, op result.PerformedOperation, persisted *store.Entity, obj M) error
}

func (h HookFuncs[M]) BeforeWrite(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error {
	if h.Before == nil {
		return nil
	}
	return h.Before(ctx, op, obj, draft)
}

func (h HookFuncs[M]) AfterWrite(ctx context.Context, op result.PerformedOperation, persisted *store.Entity, obj M) error {
	if h.After == nil {
		return nil
	}
	return h.After(ctx, op, persisted, obj)
}

// ColumnHook returns a hook that sets a computed column from the object before each write.
func ColumnHook[M model.Object](column string, compute func(obj M) string) Hook[M] {
	return HookFuncs[M]{
		Before: func(_ context.Context, _ result.PerformedOperation, obj M, draft *store.Entity) error {
			draft.SetColumn(column, compute(obj))
			return nil
		},
	}
}

// hookChain runs the engine's hooks followed by an optional single-use hook.
type hookChain[M model.Object] []Hook[M]

func (c *CRUD[M]) chain(extra Hook[M]) hookChain[M] {
	if extra == nil {
		return c.hooks
	}
	chain := make(hookChain[M], 0, len(c.hooks)+1)
	chain = append(chain, c.hooks...)
	return append(chain, extra)
}

func (hc hookChain[M]) before(ctx context.Context, op result.PerformedOperation, obj M, draft *store.Entity) error {
	for i, h := range hc {
		if err := h.BeforeWrite(ctx, op, obj, draft); err != nil {
			return fmt.Errorf("%w: before %s (hook %d): %w", ErrHook, op, i, err)
		}
	}
	return nil
}

func (hc hookChain[M]) after(ctx context.Context, op result.PerformedOperation, persisted *store.Entity, obj M) error {
	for i, h := range hc {
		if err := h.AfterWrite(ctx, op, persisted, obj); err != nil {
			return fmt.Errorf("%w: after %s (hook %d): %w", ErrHook, op, i, err)
		}
	}
	return nil
}
