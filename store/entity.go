package store

import (
	"maps"
	"time"
)

// PK is the primary key of a stored entity. Version is empty for entity types that are not
// versioned. PK values are comparable.
type PK struct {
	OID     string
	Version string
}

// IsZero reports whether the key has no OID.
func (k PK) IsZero() bool { return k.OID == "" }

func (k PK) String() string {
	if k.Version == "" {
		return k.OID
	}
	return k.OID + "@" + k.Version
}

// Tracking mirrors the model's tracking info on the storage side.
type Tracking struct {
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Entity is the storage-side representation of a model object.
type Entity struct {
	// Type is the entity type name. Adapters map it to a table.
	Type string

	// Key is the primary key.
	Key PK

	// Version is the optimistic lock version. It is 0 for an entity that was never written;
	// on write it is the version the stored row is expected to have.
	Version int64

	// ParentOID references the parent of a dependent entity (empty for root entities).
	ParentOID string

	// Descriptor is the marshalled model object.
	Descriptor []byte

	// Tracking is set when the schema supports CapTracking.
	Tracking *Tracking

	// ValidFrom and ValidUntil bound the active window of a version (CapValidity).
	ValidFrom  *time.Time
	ValidUntil *time.Time

	// Work marks the mutable work version of a versioned entity (CapValidity).
	Work bool

	// Columns holds additional computed columns, typically set by write hooks.
	Columns map[string]string
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Descriptor = append([]byte(nil), e.Descriptor...)
	c.Columns = maps.Clone(e.Columns)
	if e.Tracking != nil {
		t := *e.Tracking
		c.Tracking = &t
	}
	if e.ValidFrom != nil {
		t := *e.ValidFrom
		c.ValidFrom = &t
	}
	if e.ValidUntil != nil {
		t := *e.ValidUntil
		c.ValidUntil = &t
	}
	return &c
}

// SetColumn sets a computed column, allocating the map on first use.
func (e *Entity) SetColumn(name, value string) {
	if e.Columns == nil {
		e.Columns = make(map[string]string)
	}
	e.Columns[name] = value
}

// Capability is an optional storage-side feature of an entity type.
type Capability string

const (
	// CapVersion mirrors the model's entity version.
	CapVersion Capability = "version"

	// CapTracking mirrors the model's tracking info.
	CapTracking Capability = "tracking"

	// CapParent stores a parent reference.
	CapParent Capability = "parent"

	// CapValidity stores the validity window and work flag of versions.
	CapValidity Capability = "validity"
)

// Capabilities is a set of capabilities.
type Capabilities map[Capability]bool

// Supports reports whether c is in the set.
func (cs Capabilities) Supports(c Capability) bool { return cs[c] }

// Schema describes how an entity type is stored.
type Schema struct {
	// Type is the entity type name.
	Type string

	// ParentType is the entity type of the parent, for dependent entity types.
	ParentType string

	// Versioned entity types keep several versions per OID; their keys carry the version.
	Versioned bool

	Capabilities Capabilities
}

// NewSchema returns the schema of a plain entity type supporting version and tracking.
func NewSchema(entityType string) Schema {
	return Schema{
		Type:         entityType,
		Capabilities: Capabilities{CapVersion: true, CapTracking: true},
	}
}

// NewDependentSchema returns the schema of an entity type scoped under parentType.
func NewDependentSchema(entityType, parentType string) Schema {
	s := NewSchema(entityType)
	s.ParentType = parentType
	s.Capabilities[CapParent] = true
	return s
}

// NewVersionedSchema returns the schema of a versioned entity type.
func NewVersionedSchema(entityType string) Schema {
	s := NewSchema(entityType)
	s.Versioned = true
	s.Capabilities[CapValidity] = true
	return s
}

// Supports reports whether the schema declares c.
func (s Schema) Supports(c Capability) bool { return s.Capabilities.Supports(c) }
