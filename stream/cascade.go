// Package stream provides DynamoDB Streams handlers for cascade operations.
//
// The dynamo store soft-deletes an item by setting its TTL. The Handler reacts to the
// resulting MODIFY record and deletes the dependents of the item through the engines
// registered for its entity type. Those deletes are soft deletes too, so the cascade
// continues level by level through the stream.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/store"
	"github.com/jacentio/persist/store/dynamo"
)

// Handler runs cascade deletes from the stream of the dynamo entity tables.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHandler returns a Handler for the relationships in registry. A nil registry cascades
// nothing.
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// HandleCascadeDelete is the Lambda entry point. It stops at the first failing record so
// that the batch is retried.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("stream: cascade failed", "eventID", record.EventID, "error", err)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	expiry, ok := softDeleted(record)
	if !ok {
		return nil
	}

	entityType := getStringAttr(record.Change.NewImage, "entity_type")
	rels := h.registry.ChildrenOf(entityType)
	if len(rels) == 0 {
		return nil
	}
	key := KeyFromStream(record.Change.Keys)
	if key.IsZero() {
		key = KeyFromStream(record.Change.NewImage)
	}
	parent := model.OID(key.OID)
	log := h.logger.With("entityType", entityType, "oid", parent)
	log.Info("stream: cascading delete", "expiresAt", expiry)

	var deleted, failed int
	for _, rel := range rels {
		d, f, err := rel.Target.CascadeDelete(ctx, parent)
		if err != nil {
			return fmt.Errorf("cascade %s %s to %s: %w", entityType, parent, rel.ChildType, err)
		}
		if f > 0 {
			log.Warn("stream: dependents left behind", "childType", rel.ChildType, "failed", f)
		}
		deleted += d
		failed += f
	}

	log.Info("stream: cascade done", "deleted", deleted, "failed", failed)
	return nil
}

// softDeleted reports whether record is the MODIFY that first set the TTL of an item, and
// returns that TTL.
func softDeleted(record events.DynamoDBEventRecord) (int64, bool) {
	if record.EventName != string(events.DynamoDBOperationTypeModify) {
		return 0, false
	}
	before := getNumberAttr(record.Change.OldImage, "ttl")
	after := getNumberAttr(record.Change.NewImage, "ttl")
	return after, before == 0 && after != 0
}

// KeyFromStream converts the key attributes of a stream record of an entity table into
// a store.PK.
func KeyFromStream(keys map[string]events.DynamoDBAttributeValue) store.PK {
	pk := store.PK{OID: getStringAttr(keys, "oid")}
	if v := getStringAttr(keys, "vid"); v != dynamo.NoVersion {
		pk.Version = v
	}
	return pk
}

func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeNumber {
		return 0
	}
	n, err := strconv.ParseInt(v.Number(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
