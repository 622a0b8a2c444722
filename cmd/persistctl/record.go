package main

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Record is a model object of any entity type. Its descriptor is kept as opaque JSON, so
// persistctl can read and write entities of applications it knows nothing about.
type Record struct {
	model.DependentBase
	Version  model.VersionOID `json:"version,omitempty"`
	Validity model.Validity   `json:"validity"`
	Work     bool             `json:"work,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
}

func (r *Record) GetVersion() model.VersionOID  { return r.Version }
func (r *Record) SetVersion(v model.VersionOID) { r.Version = v }
func (r *Record) GetValidity() model.Validity   { return r.Validity }
func (r *Record) IsWorkVersion() bool           { return r.Work }

var (
	_ model.Versionable = (*Record)(nil)
	_ model.Dependent   = (*Record)(nil)
)

// rawDescriptor stores Record.Data as the descriptor, byte for byte.
type rawDescriptor struct{}

func (rawDescriptor) Marshal(v any) ([]byte, error) {
	r, ok := v.(*Record)
	if !ok {
		return nil, fmt.Errorf("persistctl: cannot marshal %T", v)
	}
	if len(r.Data) == 0 {
		return []byte("{}"), nil
	}
	return bytes.Clone(r.Data), nil
}

func (rawDescriptor) Unmarshal(data []byte, v any) error {
	r, ok := v.(*Record)
	if !ok {
		return fmt.Errorf("persistctl: cannot unmarshal into %T", v)
	}
	if !json.Valid(data) {
		return fmt.Errorf("persistctl: descriptor is not JSON")
	}
	r.Data = bytes.Clone(data)
	return nil
}

func (rawDescriptor) Format() string { return "json" }

// recordTransform restores the validity window, which lives in the entity rather than in
// the opaque descriptor.
type recordTransform struct {
	*engine.DescriptorTransform[*Record]
}

func newRecordTransform(schema store.Schema) recordTransform {
	return recordTransform{engine.NewDescriptorTransform[*Record](schema, nil, rawDescriptor{}, nil)}
}

func (t recordTransform) ToModelObject(e *store.Entity) (*Record, error) {
	r, err := t.DescriptorTransform.ToModelObject(e)
	if err != nil {
		return nil, err
	}
	r.Validity = model.Validity{From: e.ValidFrom, Until: e.ValidUntil}
	r.Work = e.Work
	return r, nil
}

func (t recordTransform) ToEntity(r *Record, op result.PerformedOperation) (*store.Entity, error) {
	return t.DescriptorTransform.ToEntity(r, op)
}
