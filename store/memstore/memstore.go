// Package memstore is an in-memory store.EntityStore. It enforces the same primary key,
// optimistic locking and parent constraints as the SQL and DynamoDB adapters, which makes
// it suitable for tests and for single-process tools.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/jacentio/persist/store"
)

// Config holds configuration for the in-memory store.
type Config struct {
	// Logger receives debug logs. Default: slog.Default().
	Logger *slog.Logger

	// EnforceParents rejects dependent entities whose parent is not stored. Default: true.
	EnforceParents *bool
}

func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.EnforceParents == nil {
		enforce := true
		c.EnforceParents = &enforce
	}
}

type table struct {
	schema  store.Schema
	rows    map[store.PK]*store.Entity
	queries map[string]*exprvm.Program
}

// Store is a mutex-guarded map of tables, one per entity type.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	config Config
}

// New creates an empty store.
func New(config Config) *Store {
	config.validate()
	return &Store{
		tables: make(map[string]*table),
		config: config,
	}
}

// Register declares the schema of an entity type. Entity types that are written without
// being registered get a plain schema.
func (s *Store) Register(schemas ...store.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, schema := range schemas {
		s.table(schema.Type).schema = schema
	}
}

// RegisterQuery compiles a named query for an entity type. The expression must evaluate
// to a bool; see queryEnv for the variables it can use.
func (s *Store) RegisterQuery(entityType, name, expression string) error {
	switch name {
	case store.QueryAll, store.QueryByOID, store.QueryByParent:
		return fmt.Errorf("memstore: %s is a built-in query", name)
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("memstore: compile query %s.%s: %w", entityType, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(entityType).queries[name] = program
	return nil
}

// table returns the table of an entity type, creating it. Callers hold the write lock.
func (s *Store) table(entityType string) *table {
	t, ok := s.tables[entityType]
	if !ok {
		t = &table{
			schema:  store.NewSchema(entityType),
			rows:    make(map[store.PK]*store.Entity),
			queries: make(map[string]*exprvm.Program),
		}
		s.tables[entityType] = t
	}
	return t
}

// FindByKey implements store.EntityStore.
func (s *Store) FindByKey(_ context.Context, entityType string, key store.PK) ([]*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entityType]
	if !ok {
		return nil, nil
	}
	e, ok := t.rows[key]
	if !ok {
		return nil, nil
	}
	return []*store.Entity{e.Clone()}, nil
}

// Write implements store.EntityStore.
func (s *Store) Write(_ context.Context, e *store.Entity) (*store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(e.Type)

	stored, exists := t.rows[e.Key]
	if e.Version == 0 {
		if exists {
			return nil, &store.ConstraintViolation{
				Kind:       store.Unique,
				Constraint: e.Type + "_pkey",
				Identity:   true,
				Err:        fmt.Errorf("duplicate key %s", e.Key),
			}
		}
	} else {
		if !exists {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
		}
		if stored.Version != e.Version {
			return nil, fmt.Errorf("%w: %s %s at version %d, expected %d", store.ErrVersionMismatch, e.Type, e.Key, stored.Version, e.Version)
		}
	}
	if err := s.checkParent(t.schema, e); err != nil {
		return nil, err
	}

	persisted := e.Clone()
	persisted.Version = e.Version + 1
	t.rows[e.Key] = persisted
	s.config.Logger.Debug("memstore: wrote entity", "entityType", e.Type, "key", e.Key.String(), "version", persisted.Version)
	return persisted.Clone(), nil
}

func (s *Store) checkParent(schema store.Schema, e *store.Entity) error {
	if schema.ParentType == "" || !*s.config.EnforceParents {
		return nil
	}
	if e.ParentOID == "" {
		return &store.ConstraintViolation{Kind: store.NotNull, Column: "parent_oid", Err: fmt.Errorf("%s %s has no parent", e.Type, e.Key)}
	}
	parents, ok := s.tables[schema.ParentType]
	if ok {
		for key := range parents.rows {
			if key.OID == e.ParentOID {
				return nil
			}
		}
	}
	return &store.ConstraintViolation{
		Kind:       store.ForeignKey,
		Constraint: e.Type + "_parent_fkey",
		Column:     "parent_oid",
		Parent:     true,
		Err:        fmt.Errorf("%s %s not found", schema.ParentType, e.ParentOID),
	}
}

// Remove implements store.EntityStore.
func (s *Store) Remove(_ context.Context, e *store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[e.Type]
	if !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	stored, ok := t.rows[e.Key]
	if !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	if stored.Version != e.Version {
		return fmt.Errorf("%w: %s %s at version %d, expected %d", store.ErrVersionMismatch, e.Type, e.Key, stored.Version, e.Version)
	}
	delete(t.rows, e.Key)
	s.config.Logger.Debug("memstore: removed entity", "entityType", e.Type, "key", e.Key.String())
	return nil
}

// Refresh implements store.EntityStore.
func (s *Store) Refresh(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	rows, _ := s.FindByKey(ctx, e.Type, e.Key)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	return rows[0], nil
}

// RunNamedQuery implements store.EntityStore. Rows are returned ordered by key.
func (s *Store) RunNamedQuery(_ context.Context, entityType, name string, params store.Params) ([]*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match func(*store.Entity) (bool, error)
	switch name {
	case store.QueryAll:
		match = func(*store.Entity) (bool, error) { return true, nil }
	case store.QueryByOID:
		oid, err := params.String(store.ParamOID)
		if err != nil {
			return nil, err
		}
		match = func(e *store.Entity) (bool, error) { return e.Key.OID == oid, nil }
	case store.QueryByParent:
		parent, err := params.String(store.ParamParent)
		if err != nil {
			return nil, err
		}
		match = func(e *store.Entity) (bool, error) { return e.ParentOID == parent, nil }
	default:
		t, ok := s.tables[entityType]
		if !ok || t.queries[name] == nil {
			return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownQuery, entityType, name)
		}
		program := t.queries[name]
		match = func(e *store.Entity) (bool, error) {
			out, err := exprlang.Run(program, queryEnv(e, params))
			if err != nil {
				return false, fmt.Errorf("memstore: query %s.%s: %w", entityType, name, err)
			}
			ok, _ := out.(bool)
			return ok, nil
		}
	}

	t, ok := s.tables[entityType]
	if !ok {
		return []*store.Entity{}, nil
	}
	out := make([]*store.Entity, 0, len(t.rows))
	for _, e := range t.rows {
		ok, err := match(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *store.Entity) int {
		return cmp.Or(cmp.Compare(a.Key.OID, b.Key.OID), cmp.Compare(a.Key.Version, b.Key.Version))
	})
	return out, nil
}

// Len returns the number of rows stored for an entity type.
func (s *Store) Len(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[entityType]; ok {
		return len(t.rows)
	}
	return 0
}
