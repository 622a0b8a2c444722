package engine

import (
	"errors"
	"fmt"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/store"
)

var (
	// ErrNoOID is returned when a key is derived without an OID.
	ErrNoOID = errors.New("persist: no OID")

	// ErrNoVersion is returned when a versioned key is derived without a version.
	ErrNoVersion = errors.New("persist: no version")
)

// KeyStrategy derives storage keys from identifiers.
type KeyStrategy interface {
	DeriveKey(oid model.OID) (store.PK, error)
	DeriveObjectKey(obj model.Object) (store.PK, error)
}

// PlainKeys derives keys from the OID alone.
type PlainKeys struct{}

func (PlainKeys) DeriveKey(oid model.OID) (store.PK, error) {
	if oid.IsZero() {
		return store.PK{}, ErrNoOID
	}
	return store.PK{OID: oid.String()}, nil
}

func (k PlainKeys) DeriveObjectKey(obj model.Object) (store.PK, error) {
	return k.DeriveKey(obj.GetOID())
}

// VersionedKeys derives keys from the OID and the version of versionable objects.
type VersionedKeys struct{}

// DeriveKey always fails: a version-independent OID does not identify a single row.
func (VersionedKeys) DeriveKey(oid model.OID) (store.PK, error) {
	if oid.IsZero() {
		return store.PK{}, ErrNoOID
	}
	return store.PK{}, fmt.Errorf("%w for %s", ErrNoVersion, oid)
}

func (VersionedKeys) DeriveVersionKey(v model.VersionedOID) (store.PK, error) {
	if v.OID.IsZero() {
		return store.PK{}, ErrNoOID
	}
	if v.Version.IsZero() {
		return store.PK{}, fmt.Errorf("%w for %s", ErrNoVersion, v.OID)
	}
	return store.PK{OID: v.OID.String(), Version: v.Version.String()}, nil
}

func (k VersionedKeys) DeriveObjectKey(obj model.Object) (store.PK, error) {
	vo, ok := obj.(model.Versionable)
	if !ok {
		return store.PK{}, fmt.Errorf("%w: %T is not versionable", ErrNoVersion, obj)
	}
	return k.DeriveVersionKey(model.VersionedOID{OID: vo.GetOID(), Version: vo.GetVersion()})
}

// keysFor returns the default strategy of a schema.
func keysFor(schema store.Schema) KeyStrategy {
	if schema.Versioned {
		return VersionedKeys{}
	}
	return PlainKeys{}
}
