package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/persist/store"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "persist.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	s, err := Open(context.Background(), Config{Dialect: SQLite, DSN: dsn, MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Register(context.Background(),
		store.NewSchema("person"),
		store.NewDependentSchema("line", "person"),
		store.NewVersionedSchema("doc"),
	))
	return s
}

func personEntity(oid string) *store.Entity {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &store.Entity{
		Type:       "person",
		Key:        store.PK{OID: oid},
		Descriptor: []byte(`{"name":"` + oid + `"}`),
		Tracking:   &store.Tracking{CreatedBy: "alice", CreatedAt: now, UpdatedBy: "alice", UpdatedAt: now},
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	e := personEntity("p1")
	e.SetColumn("email", "p1@example.com")
	inserted, err := s.Write(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted.Version)

	rows, err := s.FindByKey(ctx, "person", store.PK{OID: "p1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, inserted.Key, got.Key)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, e.Descriptor, got.Descriptor)
	assert.Equal(t, e.Tracking, got.Tracking)
	assert.Equal(t, map[string]string{"email": "p1@example.com"}, got.Columns)
	assert.Empty(t, got.ParentOID)
}

func TestSQLiteUpdateAndOptimisticLocking(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	v1, err := s.Write(ctx, personEntity("p1"))
	require.NoError(t, err)

	v1.Descriptor = []byte(`{"name":"changed"}`)
	v2, err := s.Write(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.Version)

	_, err = s.Write(ctx, v1)
	assert.ErrorIs(t, err, store.ErrVersionMismatch)
	assert.ErrorIs(t, s.Remove(ctx, v1), store.ErrVersionMismatch)

	ghost := personEntity("ghost")
	ghost.Version = 1
	_, err = s.Write(ctx, ghost)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	_, err := s.Write(ctx, personEntity("p1"))
	require.NoError(t, err)

	_, err = s.Write(ctx, personEntity("p1"))
	cv, ok := store.AsConstraintViolation(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, store.Unique, cv.Kind)
	assert.True(t, cv.Identity)
}

func TestSQLiteParentConstraints(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	line := &store.Entity{Type: "line", Key: store.PK{OID: "l1"}, Descriptor: []byte(`{}`)}
	_, err := s.Write(ctx, line)
	cv, ok := store.AsConstraintViolation(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, store.NotNull, cv.Kind)
	assert.Equal(t, "parent_oid", cv.Column)

	line.ParentOID = "p404"
	_, err = s.Write(ctx, line)
	cv, ok = store.AsConstraintViolation(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, store.ForeignKey, cv.Kind)
	assert.True(t, cv.Parent)

	_, err = s.Write(ctx, personEntity("p1"))
	require.NoError(t, err)
	line.ParentOID = "p1"
	_, err = s.Write(ctx, line)
	require.NoError(t, err)

	children, err := s.RunNamedQuery(ctx, "line", store.QueryByParent, store.Params{store.ParamParent: "p1"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "p1", children[0].ParentOID)
}

func TestSQLiteRemoveAndRefresh(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	e, err := s.Write(ctx, personEntity("p1"))
	require.NoError(t, err)

	fresh, err := s.Refresh(ctx, e)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, fresh))

	_, err = s.Refresh(ctx, e)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, fresh), store.ErrNotFound)
}

func TestSQLiteVersions(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, v := range []string{"v2", "v1"} {
		_, err := s.Write(ctx, &store.Entity{
			Type:       "doc",
			Key:        store.PK{OID: "d1", Version: v},
			Descriptor: []byte(`{}`),
			ValidFrom:  &from,
			ValidUntil: &until,
			Work:       v == "v2",
		})
		require.NoError(t, err)
	}

	versions, err := s.RunNamedQuery(ctx, "doc", store.QueryByOID, store.Params{store.ParamOID: "d1"})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].Key.Version)
	assert.False(t, versions[0].Work)
	assert.True(t, versions[1].Work)
	require.NotNil(t, versions[0].ValidFrom)
	assert.True(t, from.Equal(*versions[0].ValidFrom))
	assert.True(t, until.Equal(*versions[0].ValidUntil))

	one, err := s.FindByKey(ctx, "doc", store.PK{OID: "d1", Version: "v2"})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSQLiteNamedQueries(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	for _, oid := range []string{"a", "b", "c"} {
		_, err := s.Write(ctx, personEntity(oid))
		require.NoError(t, err)
	}
	require.NoError(t, s.RegisterQuery("person", "after", "oid > ?", "oid"))

	rows, err := s.RunNamedQuery(ctx, "person", "after", store.Params{"oid": "a"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Key.OID)

	all, err := s.RunNamedQuery(ctx, "person", store.QueryAll, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.RunNamedQuery(ctx, "person", "after", nil)
	assert.ErrorIs(t, err, store.ErrMissingParameter)
	_, err = s.RunNamedQuery(ctx, "person", "nope", nil)
	assert.ErrorIs(t, err, store.ErrUnknownQuery)

	assert.Error(t, s.RegisterQuery("person", "bad", "oid > ?"))
	assert.Error(t, s.RegisterQuery("person", store.QueryAll, "1 = 1"))
	assert.Error(t, s.RegisterQuery("ghost", "q", "1 = 1"))
}

func TestUnregisteredEntityType(t *testing.T) {
	s := openSQLite(t)
	_, err := s.FindByKey(context.Background(), "ghost", store.PK{OID: "x"})
	assert.Error(t, err)
	assert.Error(t, s.Register(context.Background(), store.NewSchema("bad-name")))
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Postgres.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite3": SQLite, "SQLite": SQLite, "postgresql": Postgres, "pq": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestClassifyPostgres(t *testing.T) {
	tbl := &table{name: "line", parent: "person"}
	tests := []struct {
		name     string
		err      *pq.Error
		kind     store.ConstraintKind
		identity bool
		parent   bool
	}{
		{"primary key", &pq.Error{Code: "23505", Constraint: "line_pkey"}, store.Unique, true, false},
		{"other unique", &pq.Error{Code: "23505", Constraint: "line_email_key"}, store.Unique, false, false},
		{"not null", &pq.Error{Code: "23502", Column: "parent_oid"}, store.NotNull, false, false},
		{"parent", &pq.Error{Code: "23503", Constraint: "line_parent_fkey"}, store.ForeignKey, false, true},
		{"other foreign key", &pq.Error{Code: "23503", Constraint: "line_owner_fkey"}, store.ForeignKey, false, false},
		{"check", &pq.Error{Code: "23514"}, store.Check, false, false},
		{"integrity", &pq.Error{Code: "23000"}, store.Integrity, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := classifyPostgres(tbl, tt.err)
			require.NotNil(t, cv)
			assert.Equal(t, tt.kind, cv.Kind)
			assert.Equal(t, tt.identity, cv.Identity)
			assert.Equal(t, tt.parent, cv.Parent)
			assert.True(t, errors.Is(cv, tt.err))
		})
	}
	assert.Nil(t, classifyPostgres(tbl, &pq.Error{Code: "08006"}))
	assert.Nil(t, classifyPostgres(tbl, errors.New("plain")))
}

func TestFailedColumn(t *testing.T) {
	assert.Equal(t, "parent_oid", failedColumn("NOT NULL constraint failed: line.parent_oid"))
	assert.Equal(t, "parent_oid", failedColumn("constraint failed: NOT NULL constraint failed: line.parent_oid (1299)"))
	assert.Equal(t, "oid", failedColumn("UNIQUE constraint failed: person.oid, person.version_oid"))
	assert.Equal(t, "", failedColumn("disk I/O error"))
}

func TestCreateTableDDL(t *testing.T) {
	s := New(nil, Config{Dialect: Postgres, TablePrefix: "app_"})
	ddl := s.createTable(&table{name: "app_line", schema: store.NewDependentSchema("line", "order"), parent: "app_order"})
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "app_line"`)
	assert.Contains(t, ddl, "descriptor BYTEA NOT NULL")
	assert.Contains(t, ddl, "parent_oid TEXT NOT NULL")
	assert.Contains(t, ddl, `CONSTRAINT "app_line_pkey" PRIMARY KEY (oid)`)
	assert.Contains(t, ddl, `REFERENCES "app_order" (oid) ON DELETE CASCADE`)

	versioned := s.createTable(&table{name: "app_doc", schema: store.NewVersionedSchema("doc")})
	assert.Contains(t, versioned, "PRIMARY KEY (oid, version_oid)")
	assert.NotContains(t, versioned, "FOREIGN KEY")
}

func TestDDLDoesNotRegister(t *testing.T) {
	s := New(nil, Config{Dialect: SQLite, TablePrefix: "app_"})
	stmts, err := s.DDL(store.NewSchema("order"), store.NewDependentSchema("line", "order"))
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "app_order"`)

	var line string
	for _, stmt := range stmts {
		if strings.Contains(stmt, `CREATE TABLE IF NOT EXISTS "app_line"`) {
			line = stmt
		}
	}
	assert.Contains(t, line, `REFERENCES "app_order" (oid)`)

	_, err = s.table("order")
	assert.Error(t, err)

	_, err = s.DDL(store.NewSchema("bad-name"))
	assert.Error(t, err)
}
