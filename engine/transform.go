package engine

import (
	"fmt"
	"reflect"

	"github.com/jacentio/persist/marshal"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Transform maps between model objects and storage entities.
type Transform[M model.Object] interface {
	ToModelObject(e *store.Entity) (M, error)
	ToEntity(obj M, op result.PerformedOperation) (*store.Entity, error)
}

// DescriptorTransform stores the marshalled object in the entity descriptor and mirrors
// identity, version, tracking and parent into the entity according to the schema.
type DescriptorTransform[M model.Object] struct {
	schema     store.Schema
	keys       KeyStrategy
	marshaller marshal.Marshaller
	newObject  func() M
}

// NewDescriptorTransform creates the default transform. A nil newObject allocates the
// element type of M, which must then be a pointer type.
func NewDescriptorTransform[M model.Object](schema store.Schema, keys KeyStrategy, m marshal.Marshaller, newObject func() M) *DescriptorTransform[M] {
	if keys == nil {
		keys = keysFor(schema)
	}
	if m == nil {
		m = marshal.JSON{}
	}
	if newObject == nil {
		newObject = allocator[M]()
	}
	return &DescriptorTransform[M]{schema: schema, keys: keys, marshaller: m, newObject: newObject}
}

func (t *DescriptorTransform[M]) ToEntity(obj M, _ result.PerformedOperation) (*store.Entity, error) {
	key, err := t.keys.DeriveObjectKey(obj)
	if err != nil {
		return nil, err
	}
	data, err := t.marshaller.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal %s %s: %w", t.schema.Type, key, err)
	}

	e := &store.Entity{
		Type:       t.schema.Type,
		Key:        key,
		Version:    obj.GetEntityVersion(),
		Descriptor: data,
	}
	if t.schema.Supports(store.CapTracking) {
		ti := obj.GetTrackingInfo()
		e.Tracking = &store.Tracking{
			CreatedBy: ti.CreatedBy,
			CreatedAt: ti.CreatedAt,
			UpdatedBy: ti.UpdatedBy,
			UpdatedAt: ti.UpdatedAt,
		}
	}
	if dep, ok := any(obj).(model.Dependent); ok && t.schema.Supports(store.CapParent) {
		e.ParentOID = dep.GetParentOID().String()
	}
	if vo, ok := any(obj).(model.Versionable); ok && t.schema.Supports(store.CapValidity) {
		validity := vo.GetValidity()
		e.ValidFrom = validity.From
		e.ValidUntil = validity.Until
		e.Work = vo.IsWorkVersion()
	}
	return e, nil
}

func (t *DescriptorTransform[M]) ToModelObject(e *store.Entity) (M, error) {
	obj := t.newObject()
	if err := t.marshaller.Unmarshal(e.Descriptor, obj); err != nil {
		var zero M
		return zero, fmt.Errorf("unmarshal %s %s: %w", e.Type, e.Key, err)
	}

	obj.SetOID(model.OID(e.Key.OID))
	if vo, ok := any(obj).(model.Versionable); ok && e.Key.Version != "" {
		vo.SetVersion(model.VersionOID(e.Key.Version))
	}
	if t.schema.Supports(store.CapVersion) {
		obj.SetEntityVersion(e.Version)
	}
	if t.schema.Supports(store.CapTracking) && e.Tracking != nil {
		obj.SetTrackingInfo(model.TrackingInfo{
			CreatedBy: e.Tracking.CreatedBy,
			CreatedAt: e.Tracking.CreatedAt,
			UpdatedBy: e.Tracking.UpdatedBy,
			UpdatedAt: e.Tracking.UpdatedAt,
		})
	}
	if dep, ok := any(obj).(model.Dependent); ok && t.schema.Supports(store.CapParent) {
		dep.SetParentOID(model.OID(e.ParentOID))
	}
	return obj, nil
}

// allocator returns a constructor for the element type of the pointer type M.
func allocator[M model.Object]() func() M {
	typ := reflect.TypeFor[M]()
	if typ.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("persist: %s is not a pointer type; set Definition.NewObject", typ))
	}
	elem := typ.Elem()
	return func() M {
		return reflect.New(elem).Interface().(M)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}
