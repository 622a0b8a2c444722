// Package sqlstore is a store.EntityStore on database/sql. It supports SQLite through
// modernc.org/sqlite and PostgreSQL through lib/pq, one table per entity type.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jacentio/persist/store"
)

// Config holds configuration for the SQL store.
type Config struct {
	// Dialect selects SQL flavour and driver. Default: SQLite.
	Dialect Dialect

	// DSN is the data source name passed to sql.Open.
	DSN string

	// TablePrefix is prepended to entity type names to form table names.
	TablePrefix string

	// MaxOpenConns limits the connection pool. Zero keeps the driver default.
	MaxOpenConns int

	// Logger receives debug logs. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) validate() {
	if c.Dialect == "" {
		c.Dialect = SQLite
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type table struct {
	name    string
	schema  store.Schema
	parent  string
	queries map[string]namedQuery
}

func (t *table) pkeyName() string       { return t.name + "_pkey" }
func (t *table) parentFkeyName() string { return t.name + "_parent_fkey" }

type namedQuery struct {
	where  string
	params []string
}

// Store persists entities in SQL tables.
type Store struct {
	db      *sql.DB
	dialect Dialect
	config  Config

	mu     sync.RWMutex
	tables map[string]*table
}

// Open opens the database described by config and verifies the connection.
func Open(ctx context.Context, config Config) (*Store, error) {
	config.validate()
	db, err := sql.Open(config.Dialect.Driver(), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	return New(db, config), nil
}

// New wraps an open database.
func New(db *sql.DB, config Config) *Store {
	config.validate()
	return &Store{
		db:      db,
		dialect: config.Dialect,
		config:  config,
		tables:  make(map[string]*table),
	}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Register declares entity types and creates their tables if they don't exist. Parent
// entity types must be registered before (or together with, earlier in the list) their
// dependents to get a foreign key.
func (s *Store) Register(ctx context.Context, schemas ...store.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, schema := range schemas {
		t, err := s.newTable(schema, s.tables)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, s.createTable(t)); err != nil {
			return fmt.Errorf("sqlstore: create table %s: %w", t.name, err)
		}
		for _, stmt := range s.createIndexes(t) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlstore: create index on %s: %w", t.name, err)
			}
		}
		s.tables[schema.Type] = t
		s.config.Logger.Debug("sqlstore: registered entity type", "entityType", schema.Type, "table", t.name)
	}
	return nil
}

// DDL returns the statements Register would run for schemas, without running them.
func (s *Store) DDL(schemas ...store.Schema) ([]string, error) {
	s.mu.RLock()
	known := maps.Clone(s.tables)
	s.mu.RUnlock()

	var stmts []string
	for _, schema := range schemas {
		t, err := s.newTable(schema, known)
		if err != nil {
			return nil, err
		}
		known[schema.Type] = t
		stmts = append(stmts, s.createTable(t))
		stmts = append(stmts, s.createIndexes(t)...)
	}
	return stmts, nil
}

// newTable resolves the table of schema. The parent foreign key is only declared when
// the parent is already known and not versioned.
func (s *Store) newTable(schema store.Schema, known map[string]*table) (*table, error) {
	if !identifier.MatchString(schema.Type) {
		return nil, fmt.Errorf("sqlstore: invalid entity type %q", schema.Type)
	}
	t := &table{
		name:    s.config.TablePrefix + schema.Type,
		schema:  schema,
		queries: make(map[string]namedQuery),
	}
	if parent, ok := known[schema.ParentType]; ok && !parent.schema.Versioned {
		t.parent = parent.name
	}
	return t, nil
}

// RegisterQuery adds a named query. where is an SQL condition using ? placeholders that
// are bound, in order, to the named parameters.
func (s *Store) RegisterQuery(entityType, name, where string, params ...string) error {
	switch name {
	case store.QueryAll, store.QueryByOID, store.QueryByParent:
		return fmt.Errorf("sqlstore: %s is a built-in query", name)
	}
	if n := strings.Count(where, "?"); n != len(params) {
		return fmt.Errorf("sqlstore: query %s.%s has %d placeholders but %d parameters", entityType, name, n, len(params))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[entityType]
	if !ok {
		return fmt.Errorf("sqlstore: entity type %s not registered", entityType)
	}
	t.queries[name] = namedQuery{where: where, params: params}
	return nil
}

func (s *Store) table(entityType string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entityType]
	if !ok {
		return nil, fmt.Errorf("sqlstore: entity type %s not registered", entityType)
	}
	return t, nil
}

// FindByKey implements store.EntityStore.
func (s *Store) FindByKey(ctx context.Context, entityType string, key store.PK) ([]*store.Entity, error) {
	t, err := s.table(entityType)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, t, `oid = ? AND version_oid = ?`, key.OID, key.Version)
}

// Write implements store.EntityStore.
func (s *Store) Write(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	t, err := s.table(e.Type)
	if err != nil {
		return nil, err
	}
	row, err := encode(e)
	if err != nil {
		return nil, err
	}

	persisted := e.Clone()
	persisted.Version = e.Version + 1
	row[colEntityVersion] = persisted.Version

	if e.Version == 0 {
		cols := make([]string, 0, len(columns))
		args := make([]any, 0, len(columns))
		for _, c := range columns {
			cols = append(cols, c)
			args = append(args, row[c])
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			s.dialect.Quote(t.name), strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(stmt), args...); err != nil {
			return nil, s.translate(t, err)
		}
		s.config.Logger.Debug("sqlstore: inserted entity", "entityType", e.Type, "key", e.Key.String())
		return persisted, nil
	}

	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+3)
	for _, c := range columns {
		if c == colOID || c == colVersionOID {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, row[c])
	}
	args = append(args, e.Key.OID, e.Key.Version, e.Version)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE oid = ? AND version_oid = ? AND entity_version = ?",
		s.dialect.Quote(t.name), strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(stmt), args...)
	if err != nil {
		return nil, s.translate(t, err)
	}
	if err := s.checkAffected(ctx, t, e, res); err != nil {
		return nil, err
	}
	s.config.Logger.Debug("sqlstore: updated entity", "entityType", e.Type, "key", e.Key.String(), "version", persisted.Version)
	return persisted, nil
}

// Remove implements store.EntityStore.
func (s *Store) Remove(ctx context.Context, e *store.Entity) error {
	t, err := s.table(e.Type)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE oid = ? AND version_oid = ? AND entity_version = ?", s.dialect.Quote(t.name))
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(stmt), e.Key.OID, e.Key.Version, e.Version)
	if err != nil {
		return s.translate(t, err)
	}
	return s.checkAffected(ctx, t, e, res)
}

// checkAffected tells a vanished row from a concurrent modification when a conditional
// statement touched no rows.
func (s *Store) checkAffected(ctx context.Context, t *table, e *store.Entity, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	rows, err := s.query(ctx, t, `oid = ? AND version_oid = ?`, e.Key.OID, e.Key.Version)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	return fmt.Errorf("%w: %s %s at version %d, expected %d", store.ErrVersionMismatch, e.Type, e.Key, rows[0].Version, e.Version)
}

// Refresh implements store.EntityStore.
func (s *Store) Refresh(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	rows, err := s.FindByKey(ctx, e.Type, e.Key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	return rows[0], nil
}

// RunNamedQuery implements store.EntityStore.
func (s *Store) RunNamedQuery(ctx context.Context, entityType, name string, params store.Params) ([]*store.Entity, error) {
	t, err := s.table(entityType)
	if err != nil {
		return nil, err
	}
	switch name {
	case store.QueryAll:
		return s.query(ctx, t, "")
	case store.QueryByOID:
		oid, err := params.String(store.ParamOID)
		if err != nil {
			return nil, err
		}
		return s.query(ctx, t, `oid = ?`, oid)
	case store.QueryByParent:
		parent, err := params.String(store.ParamParent)
		if err != nil {
			return nil, err
		}
		return s.query(ctx, t, `parent_oid = ?`, parent)
	}

	s.mu.RLock()
	q, ok := t.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownQuery, entityType, name)
	}
	args := make([]any, 0, len(q.params))
	for _, p := range q.params {
		v, ok := params[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingParameter, p)
		}
		args = append(args, v)
	}
	return s.query(ctx, t, q.where, args...)
}

func (s *Store) query(ctx context.Context, t *table, where string, args ...any) ([]*store.Entity, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), s.dialect.Quote(t.name))
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " ORDER BY oid, version_oid"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []*store.Entity{}
	for rows.Next() {
		e, err := decode(t.schema.Type, rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan %s: %w", t.name, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", t.name, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// encodeColumns marshals computed columns, or returns nil for none.
func encodeColumns(cols map[string]string) (any, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode columns: %w", err)
	}
	return string(data), nil
}

func decodeColumns(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var cols map[string]string
	if err := json.Unmarshal([]byte(raw.String), &cols); err != nil {
		return nil, fmt.Errorf("sqlstore: decode columns: %w", err)
	}
	return cols, nil
}
