// Package model defines the identifiers and contracts shared by every persisted model object.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// OID identifies a model object. It is empty until the object is created.
type OID string

// NewOID returns a time-ordered (UUIDv7) identifier.
func NewOID() OID {
	return OID(newUUID())
}

// IsZero reports whether the identifier is unset.
func (o OID) IsZero() bool { return o == "" }

func (o OID) String() string { return string(o) }

// VersionOID identifies one stored version of a versionable object.
type VersionOID string

// NewVersionOID returns a time-ordered (UUIDv7) version identifier.
func NewVersionOID() VersionOID {
	return VersionOID(newUUID())
}

// IsZero reports whether the version identifier is unset.
func (v VersionOID) IsZero() bool { return v == "" }

func (v VersionOID) String() string { return string(v) }

// VersionedOID pairs the version-independent identifier of an object with one of its versions.
type VersionedOID struct {
	OID     OID
	Version VersionOID
}

// IsZero reports whether either component is unset.
func (v VersionedOID) IsZero() bool { return v.OID.IsZero() || v.Version.IsZero() }

func (v VersionedOID) String() string {
	return fmt.Sprintf("%s@%s", v.OID, v.Version)
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
