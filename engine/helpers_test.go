package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
	"github.com/jacentio/persist/store/memstore"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type person struct {
	model.Base
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *person) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type order struct {
	model.Base
	Customer string `json:"customer"`
}

type line struct {
	model.DependentBase
	Product string `json:"product"`
}

type doc struct {
	model.VersionableBase
	Title string `json:"title"`
}

func newDoc(oid, version string, from, until *time.Time, work bool) *doc {
	d := &doc{Title: oid + "@" + version}
	d.OID = model.OID(oid)
	d.Version = model.VersionOID(version)
	d.Validity = model.Validity{From: from, Until: until}
	d.Work = work
	return d
}

func at(month time.Month) *time.Time {
	t := time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

// observation is one call to an Observer.
type observation struct {
	entityType string
	op         result.RequestedOperation
	outcome    engine.Outcome
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) Observe(entityType string, op result.RequestedOperation, outcome engine.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{entityType: entityType, op: op, outcome: outcome})
}

func (o *recordingObserver) last() observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[len(o.seen)-1]
}

// faultyStore delegates to a memstore unless an override is set.
type faultyStore struct {
	*memstore.Store
	findByKey func(ctx context.Context, entityType string, key store.PK) ([]*store.Entity, error)
	write     func(ctx context.Context, e *store.Entity) (*store.Entity, error)
	remove    func(ctx context.Context, e *store.Entity) error
}

func (s *faultyStore) FindByKey(ctx context.Context, entityType string, key store.PK) ([]*store.Entity, error) {
	if s.findByKey != nil {
		return s.findByKey(ctx, entityType, key)
	}
	return s.Store.FindByKey(ctx, entityType, key)
}

func (s *faultyStore) Write(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	if s.write != nil {
		return s.write(ctx, e)
	}
	return s.Store.Write(ctx, e)
}

func (s *faultyStore) Remove(ctx context.Context, e *store.Entity) error {
	if s.remove != nil {
		return s.remove(ctx, e)
	}
	return s.Store.Remove(ctx, e)
}

func testConfig(obs engine.Observer) engine.Config {
	oids := 0
	return engine.Config{
		Clock: func() time.Time { return fixedNow },
		NewOID: func() model.OID {
			oids++
			return model.OID(fmt.Sprintf("oid-%d", oids))
		},
		Observer: obs,
	}
}

func newMem() *memstore.Store {
	s := memstore.New(memstore.Config{})
	s.Register(
		store.NewSchema("person"),
		store.NewSchema("order"),
		store.NewDependentSchema("line", "order"),
		store.NewVersionedSchema("doc"),
	)
	return s
}

func personEngine(t *testing.T, st store.EntityStore, hooks ...engine.Hook[*person]) *engine.CRUD[*person] {
	t.Helper()
	return engine.New(st, engine.Definition[*person]{
		Schema: store.NewSchema("person"),
		Hooks:  hooks,
	}, testConfig(nil))
}

func createPerson(t *testing.T, crud *engine.CRUD[*person], name string) *person {
	t.Helper()
	res, err := crud.Create(context.Background(), &person{Name: name, Email: name + "@example.com"})
	require.NoError(t, err)
	require.True(t, res.HasSucceeded(), "create %s: %v", name, result.ErrorOf(res))
	return res.MustGet()
}

func errorType[T any](t *testing.T, res result.Result[T]) result.ErrorType {
	t.Helper()
	f, ok := res.AsError()
	require.True(t, ok, "expected an error result, got %v", res)
	return f.ErrorType()
}
