package store

import (
	"context"
	"fmt"
)

// Named queries every EntityStore serves.
const (
	// QueryAll returns every row of the entity type.
	QueryAll = "all"

	// QueryByOID returns every version row of a version-independent OID (param "oid").
	QueryByOID = "byOID"

	// QueryByParent returns the children of a parent (param "parent").
	QueryByParent = "byParent"
)

// Query parameter names used by the built-in queries.
const (
	ParamOID    = "oid"
	ParamParent = "parent"
)

// Params are the parameters of a named query.
type Params map[string]any

// String returns the parameter as a string, or an ErrMissingParameter error.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprint(v), nil
}

// EntityStore is the storage collaborator of the persistence engine. Implementations
// enforce uniqueness of the primary key and optimistic locking on the version; they
// translate driver failures into ErrNotFound, ErrVersionMismatch or *ConstraintViolation.
// Any other error is treated as a fatal I/O failure.
type EntityStore interface {
	// FindByKey returns the rows stored under exactly key. An absent entity yields no rows.
	FindByKey(ctx context.Context, entityType string, key PK) ([]*Entity, error)

	// Write inserts e when e.Version is 0, otherwise updates the row whose version equals
	// e.Version. It returns the persisted entity carrying the new version.
	Write(ctx context.Context, e *Entity) (*Entity, error)

	// Remove deletes the row of e, provided its version still equals e.Version.
	Remove(ctx context.Context, e *Entity) error

	// Refresh re-reads e from the store. It returns ErrNotFound if the row is gone.
	Refresh(ctx context.Context, e *Entity) (*Entity, error)

	// RunNamedQuery runs a named query for an entity type.
	RunNamedQuery(ctx context.Context, entityType, name string, params Params) ([]*Entity, error)
}
