package sqlstore

import (
	"errors"
	"strings"

	"github.com/omeid/pgerror"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jacentio/persist/store"
)

// translate maps a driver error raised by a write on table t into a
// *store.ConstraintViolation when it is one. Other errors are returned unchanged.
func (s *Store) translate(t *table, err error) error {
	if err == nil {
		return nil
	}
	var cv *store.ConstraintViolation
	switch s.dialect {
	case Postgres:
		cv = classifyPostgres(t, err)
	default:
		cv = classifySQLite(t, err)
	}
	if cv == nil {
		return err
	}
	return cv
}

func classifyPostgres(t *table, err error) *store.ConstraintViolation {
	if e := pgerror.UniqueViolation(err); e != nil {
		return &store.ConstraintViolation{Kind: store.Unique, Constraint: e.Constraint, Column: e.Column, Identity: e.Constraint == t.pkeyName(), Err: err}
	}
	if e := pgerror.NotNullViolation(err); e != nil {
		return &store.ConstraintViolation{Kind: store.NotNull, Constraint: e.Constraint, Column: e.Column, Err: err}
	}
	if e := pgerror.ForeignKeyViolation(err); e != nil {
		return &store.ConstraintViolation{Kind: store.ForeignKey, Constraint: e.Constraint, Column: e.Column, Parent: e.Constraint == t.parentFkeyName(), Err: err}
	}
	if e := pgerror.CheckViolation(err); e != nil {
		return &store.ConstraintViolation{Kind: store.Check, Constraint: e.Constraint, Column: e.Column, Err: err}
	}
	if e := pgerror.IntegrityConstraintViolation(err); e != nil {
		return &store.ConstraintViolation{Kind: store.Integrity, Constraint: e.Constraint, Err: err}
	}
	return nil
}

func classifySQLite(t *table, err error) *store.ConstraintViolation {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil
	}
	column := failedColumn(se.Error())
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &store.ConstraintViolation{Kind: store.Unique, Constraint: t.pkeyName(), Column: column, Identity: true, Err: err}
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return &store.ConstraintViolation{Kind: store.Unique, Column: column, Err: err}
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return &store.ConstraintViolation{Kind: store.NotNull, Column: column, Err: err}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		// The parent reference is the only foreign key of an entity table.
		return &store.ConstraintViolation{Kind: store.ForeignKey, Constraint: t.parentFkeyName(), Column: "parent_oid", Parent: t.parent != "", Err: err}
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return &store.ConstraintViolation{Kind: store.Check, Err: err}
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return &store.ConstraintViolation{Kind: store.Integrity, Err: err}
	}
	return nil
}

// failedColumn extracts the column from messages like
// "NOT NULL constraint failed: person.parent_oid (1299)".
func failedColumn(msg string) string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	first, _, _ := strings.Cut(msg[i+len(marker):], ",")
	first, _, _ = strings.Cut(first, " ")
	if _, col, ok := strings.Cut(first, "."); ok {
		return col
	}
	return first
}
