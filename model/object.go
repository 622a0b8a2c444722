package model

import "time"

// Object is the contract every persisted model object fulfils.
// Embed Base to get a ready implementation.
type Object interface {
	GetOID() OID
	SetOID(OID)

	// GetEntityVersion returns the optimistic-locking counter. It is 0 before the first persist.
	GetEntityVersion() int64
	SetEntityVersion(int64)

	GetTrackingInfo() TrackingInfo
	SetTrackingInfo(TrackingInfo)
}

// Versionable objects keep several stored versions under one version-independent OID.
// At most one version is the mutable work version; the others are active during their validity.
type Versionable interface {
	Object
	GetVersion() VersionOID
	SetVersion(VersionOID)
	GetValidity() Validity
	IsWorkVersion() bool
}

// Dependent objects are scoped under a parent object.
type Dependent interface {
	Object
	GetParentOID() OID
	SetParentOID(OID)
}

// Validator is implemented by objects that can check their own business rules before a write.
type Validator interface {
	Validate() error
}

// TrackingInfo records who created and last changed an object, and when.
type TrackingInfo struct {
	CreatedBy string    `json:"createdBy,omitempty" xml:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty" xml:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty" xml:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" xml:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// IsZero reports whether no tracking data has been recorded.
func (t TrackingInfo) IsZero() bool {
	return t.CreatedBy == "" && t.UpdatedBy == "" && t.CreatedAt.IsZero() && t.UpdatedAt.IsZero()
}

// Validity is the half-open window [From, Until) during which a version is active.
// A nil bound is open.
type Validity struct {
	From  *time.Time `json:"from,omitempty" xml:"from,omitempty" yaml:"from,omitempty"`
	Until *time.Time `json:"until,omitempty" xml:"until,omitempty" yaml:"until,omitempty"`
}

// Contains reports whether t falls inside the window.
func (v Validity) Contains(t time.Time) bool {
	if v.From != nil && t.Before(*v.From) {
		return false
	}
	if v.Until != nil && !t.Before(*v.Until) {
		return false
	}
	return true
}

// Base implements Object.
type Base struct {
	OID           OID          `json:"oid,omitempty" xml:"oid,attr,omitempty" yaml:"oid,omitempty"`
	EntityVersion int64        `json:"entityVersion" xml:"entityVersion,attr" yaml:"entityVersion"`
	Tracking      TrackingInfo `json:"tracking,omitempty" xml:"tracking" yaml:"tracking,omitempty"`
}

func (b *Base) GetOID() OID                     { return b.OID }
func (b *Base) SetOID(oid OID)                  { b.OID = oid }
func (b *Base) GetEntityVersion() int64         { return b.EntityVersion }
func (b *Base) SetEntityVersion(v int64)        { b.EntityVersion = v }
func (b *Base) GetTrackingInfo() TrackingInfo   { return b.Tracking }
func (b *Base) SetTrackingInfo(ti TrackingInfo) { b.Tracking = ti }

// VersionableBase implements Versionable.
type VersionableBase struct {
	Base
	Version  VersionOID `json:"version,omitempty" xml:"version,attr,omitempty" yaml:"version,omitempty"`
	Validity Validity   `json:"validity" xml:"validity" yaml:"validity"`
	Work     bool       `json:"work,omitempty" xml:"work,attr,omitempty" yaml:"work,omitempty"`
}

func (b *VersionableBase) GetVersion() VersionOID  { return b.Version }
func (b *VersionableBase) SetVersion(v VersionOID) { b.Version = v }
func (b *VersionableBase) GetValidity() Validity   { return b.Validity }
func (b *VersionableBase) IsWorkVersion() bool     { return b.Work }

// VersionedOID returns the full identifier of this version.
func (b *VersionableBase) VersionedOID() VersionedOID {
	return VersionedOID{OID: b.OID, Version: b.Version}
}

// DependentBase implements Dependent.
type DependentBase struct {
	Base
	ParentOID OID `json:"parentOid,omitempty" xml:"parentOid,attr,omitempty" yaml:"parentOid,omitempty"`
}

func (b *DependentBase) GetParentOID() OID       { return b.ParentOID }
func (b *DependentBase) SetParentOID(parent OID) { b.ParentOID = parent }
