package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jacentio/persist/store"
)

const (
	colOID           = "oid"
	colVersionOID    = "version_oid"
	colEntityVersion = "entity_version"
	colParentOID     = "parent_oid"
	colDescriptor    = "descriptor"
	colCreatedBy     = "created_by"
	colCreatedAt     = "created_at"
	colUpdatedBy     = "updated_by"
	colUpdatedAt     = "updated_at"
	colValidFrom     = "valid_from"
	colValidUntil    = "valid_until"
	colWork          = "work"
	colColumns       = "columns"
)

// columns is the column order of every entity table.
var columns = []string{
	colOID, colVersionOID, colEntityVersion, colParentOID, colDescriptor,
	colCreatedBy, colCreatedAt, colUpdatedBy, colUpdatedAt,
	colValidFrom, colValidUntil, colWork, colColumns,
}

// createTable returns the DDL of an entity table.
func (s *Store) createTable(t *table) string {
	parentNull := ""
	if t.schema.ParentType != "" {
		parentNull = " NOT NULL"
	}
	pk := colOID
	if t.schema.Versioned {
		pk = colOID + ", " + colVersionOID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.dialect.Quote(t.name))
	fmt.Fprintf(&b, "  oid TEXT NOT NULL,\n")
	fmt.Fprintf(&b, "  version_oid TEXT NOT NULL DEFAULT '',\n")
	fmt.Fprintf(&b, "  entity_version %s NOT NULL,\n", s.dialect.intType())
	fmt.Fprintf(&b, "  parent_oid TEXT%s,\n", parentNull)
	fmt.Fprintf(&b, "  descriptor %s NOT NULL,\n", s.dialect.blobType())
	fmt.Fprintf(&b, "  created_by TEXT,\n  created_at TEXT,\n  updated_by TEXT,\n  updated_at TEXT,\n")
	fmt.Fprintf(&b, "  valid_from TEXT,\n  valid_until TEXT,\n")
	fmt.Fprintf(&b, "  work INTEGER NOT NULL DEFAULT 0,\n")
	fmt.Fprintf(&b, "  columns TEXT,\n")
	fmt.Fprintf(&b, "  CONSTRAINT %s PRIMARY KEY (%s)", s.dialect.Quote(t.pkeyName()), pk)
	if t.parent != "" {
		fmt.Fprintf(&b, ",\n  CONSTRAINT %s FOREIGN KEY (parent_oid) REFERENCES %s (oid) ON DELETE CASCADE",
			s.dialect.Quote(t.parentFkeyName()), s.dialect.Quote(t.parent))
	}
	b.WriteString("\n)")
	return b.String()
}

func (s *Store) createIndexes(t *table) []string {
	if t.schema.ParentType == "" {
		return nil
	}
	return []string{fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (parent_oid)",
		s.dialect.Quote(t.name+"_parent_idx"), s.dialect.Quote(t.name))}
}

// encode maps an entity to column values.
func encode(e *store.Entity) (map[string]any, error) {
	cols, err := encodeColumns(e.Columns)
	if err != nil {
		return nil, err
	}
	descriptor := e.Descriptor
	if descriptor == nil {
		descriptor = []byte{}
	}
	row := map[string]any{
		colOID:           e.Key.OID,
		colVersionOID:    e.Key.Version,
		colEntityVersion: e.Version,
		colParentOID:     nullString(e.ParentOID),
		colDescriptor:    descriptor,
		colValidFrom:     nullTime(e.ValidFrom),
		colValidUntil:    nullTime(e.ValidUntil),
		colWork:          boolInt(e.Work),
		colColumns:       cols,
	}
	if e.Tracking != nil {
		row[colCreatedBy] = e.Tracking.CreatedBy
		row[colCreatedAt] = formatTime(e.Tracking.CreatedAt)
		row[colUpdatedBy] = e.Tracking.UpdatedBy
		row[colUpdatedAt] = formatTime(e.Tracking.UpdatedAt)
	}
	return row, nil
}

// decode scans one row in columns order.
func decode(entityType string, rows *sql.Rows) (*store.Entity, error) {
	e := &store.Entity{Type: entityType}
	var parent, createdBy, createdAt, updatedBy, updatedAt, validFrom, validUntil, cols sql.NullString
	var work int64
	err := rows.Scan(
		&e.Key.OID, &e.Key.Version, &e.Version, &parent, &e.Descriptor,
		&createdBy, &createdAt, &updatedBy, &updatedAt,
		&validFrom, &validUntil, &work, &cols,
	)
	if err != nil {
		return nil, err
	}
	e.ParentOID = parent.String
	e.Work = work != 0
	if e.ValidFrom, err = parseNullTime(validFrom); err != nil {
		return nil, err
	}
	if e.ValidUntil, err = parseNullTime(validUntil); err != nil {
		return nil, err
	}
	if createdAt.Valid || updatedAt.Valid {
		tr := &store.Tracking{CreatedBy: createdBy.String, UpdatedBy: updatedBy.String}
		if tr.CreatedAt, err = parseTime(createdAt.String); err != nil {
			return nil, err
		}
		if tr.UpdatedAt, err = parseTime(updatedAt.String); err != nil {
			return nil, err
		}
		e.Tracking = tr
	}
	if e.Columns, err = decodeColumns(cols); err != nil {
		return nil, err
	}
	return e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
