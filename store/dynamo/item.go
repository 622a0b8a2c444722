package dynamo

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/persist/store"
)

// Attribute names of entity items and relationship records.
const (
	attrOID           = "oid"
	attrVID           = "vid"
	attrEntityVersion = "entity_version"
	attrParentOID     = "parent_oid"
	attrTTL           = "ttl"

	attrPK        = "pk"
	attrChildRef  = "child_ref"
	attrParentRef = "parent_ref"
	attrChildType = "child_type"
	attrChildOID  = "child_oid"
	attrChildVID  = "child_vid"
)

// NoVersion is the sort key of entities that are not versioned. DynamoDB rejects empty
// key attributes.
const NoVersion = "_"

// optionalAttrs are removed on update when the entity no longer carries them.
var optionalAttrs = []string{
	attrParentOID, "created_by", "created_at", "updated_by", "updated_at",
	"valid_from", "valid_until", "work", "columns",
}

// item is the DynamoDB shape of a store.Entity.
type item struct {
	OID           string            `dynamodbav:"oid"`
	VID           string            `dynamodbav:"vid"`
	EntityType    string            `dynamodbav:"entity_type"`
	EntityVersion int64             `dynamodbav:"entity_version"`
	ParentOID     string            `dynamodbav:"parent_oid,omitempty"`
	Descriptor    []byte            `dynamodbav:"descriptor"`
	CreatedBy     string            `dynamodbav:"created_by,omitempty"`
	CreatedAt     string            `dynamodbav:"created_at,omitempty"`
	UpdatedBy     string            `dynamodbav:"updated_by,omitempty"`
	UpdatedAt     string            `dynamodbav:"updated_at,omitempty"`
	ValidFrom     string            `dynamodbav:"valid_from,omitempty"`
	ValidUntil    string            `dynamodbav:"valid_until,omitempty"`
	Work          bool              `dynamodbav:"work,omitempty"`
	Columns       map[string]string `dynamodbav:"columns,omitempty"`
	TTL           int64             `dynamodbav:"ttl,omitempty"`
}

func vid(key store.PK) string {
	if key.Version == "" {
		return NoVersion
	}
	return key.Version
}

// keyOf returns the DynamoDB key of an entity.
func keyOf(key store.PK) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrOID: stringValue(key.OID),
		attrVID: stringValue(vid(key)),
	}
}

// marshalEntity converts e to a DynamoDB item.
func marshalEntity(e *store.Entity) (map[string]types.AttributeValue, error) {
	it := item{
		OID:           e.Key.OID,
		VID:           vid(e.Key),
		EntityType:    e.Type,
		EntityVersion: e.Version,
		ParentOID:     e.ParentOID,
		Descriptor:    e.Descriptor,
		ValidFrom:     formatTime(e.ValidFrom),
		ValidUntil:    formatTime(e.ValidUntil),
		Work:          e.Work,
		Columns:       e.Columns,
	}
	if e.Tracking != nil {
		it.CreatedBy = e.Tracking.CreatedBy
		it.CreatedAt = formatTime(&e.Tracking.CreatedAt)
		it.UpdatedBy = e.Tracking.UpdatedBy
		it.UpdatedAt = formatTime(&e.Tracking.UpdatedAt)
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("dynamo: marshal %s %s: %w", e.Type, e.Key, err)
	}
	return av, nil
}

// unmarshalEntity converts a DynamoDB item back to an entity.
func unmarshalEntity(raw map[string]types.AttributeValue) (*store.Entity, error) {
	var it item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal item: %w", err)
	}
	e := &store.Entity{
		Type:       it.EntityType,
		Key:        store.PK{OID: it.OID},
		Version:    it.EntityVersion,
		ParentOID:  it.ParentOID,
		Descriptor: it.Descriptor,
		Work:       it.Work,
		Columns:    it.Columns,
	}
	if it.VID != NoVersion {
		e.Key.Version = it.VID
	}
	var err error
	if e.ValidFrom, err = parseTime(it.ValidFrom); err != nil {
		return nil, err
	}
	if e.ValidUntil, err = parseTime(it.ValidUntil); err != nil {
		return nil, err
	}
	if it.CreatedAt != "" || it.UpdatedAt != "" {
		tr := &store.Tracking{CreatedBy: it.CreatedBy, UpdatedBy: it.UpdatedBy}
		if created, err := parseTime(it.CreatedAt); err != nil {
			return nil, err
		} else if created != nil {
			tr.CreatedAt = *created
		}
		if updated, err := parseTime(it.UpdatedAt); err != nil {
			return nil, err
		} else if updated != nil {
			tr.UpdatedAt = *updated
		}
		e.Tracking = tr
	}
	return e, nil
}

// childRef is a decoded relationship record.
type childRef struct {
	Ref       string
	ParentOID string
	ChildType string
	Key       store.PK
}

func unmarshalChildRef(raw map[string]types.AttributeValue) childRef {
	ref := childRef{}
	if v, ok := raw[attrChildRef].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := raw[attrParentOID].(*types.AttributeValueMemberS); ok {
		ref.ParentOID = v.Value
	}
	if v, ok := raw[attrChildType].(*types.AttributeValueMemberS); ok {
		ref.ChildType = v.Value
	}
	if v, ok := raw[attrChildOID].(*types.AttributeValueMemberS); ok {
		ref.Key.OID = v.Value
	}
	if v, ok := raw[attrChildVID].(*types.AttributeValueMemberS); ok && v.Value != NoVersion {
		ref.Key.Version = v.Value
	}
	return ref
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("dynamo: parse time %q: %w", s, err)
	}
	return &t, nil
}
