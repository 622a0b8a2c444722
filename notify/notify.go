// Package notify publishes a change event over NATS after every successful write of an
// engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
	"github.com/jacentio/persist/store"
)

// Event is the payload of a change notification.
type Event struct {
	EntityType    string    `json:"entityType"`
	Operation     string    `json:"operation"`
	OID           string    `json:"oid"`
	Version       string    `json:"version,omitempty"`
	EntityVersion int64     `json:"entityVersion"`
	ParentOID     string    `json:"parentOid,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	At            time.Time `json:"at"`
}

// MsgPublisher sends a message. *nats.Conn satisfies it.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Config holds configuration for a Publisher.
type Config struct {
	// Subject is the subject prefix. Events go to <Subject>.<entityType>.<operation>.
	// Default: "persist"
	Subject string

	// Logger receives debug logs. Default: slog.Default().
	Logger *slog.Logger

	// Now stamps events. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Subject: "persist"}
}

func (c *Config) validate() {
	c.Subject = strings.Trim(c.Subject, ".")
	if c.Subject == "" {
		c.Subject = "persist"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// msgIDSpace namespaces the deterministic message ids.
var msgIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jacentio/persist/notify"))

// Publisher is an engine hook that publishes an Event after each write. A failed publish
// fails the operation.
type Publisher[M model.Object] struct {
	conn   MsgPublisher
	config Config
}

var _ engine.Hook[model.Object] = (*Publisher[model.Object])(nil)

// NewPublisher creates a Publisher sending on conn.
func NewPublisher[M model.Object](conn MsgPublisher, config Config) *Publisher[M] {
	config.validate()
	return &Publisher[M]{conn: conn, config: config}
}

// BeforeWrite implements engine.Hook.
func (p *Publisher[M]) BeforeWrite(context.Context, result.PerformedOperation, M, *store.Entity) error {
	return nil
}

// AfterWrite implements engine.Hook.
func (p *Publisher[M]) AfterWrite(ctx context.Context, op result.PerformedOperation, persisted *store.Entity, _ M) error {
	ev := Event{
		EntityType:    persisted.Type,
		Operation:     strings.ToLower(op.String()),
		OID:           persisted.Key.OID,
		Version:       persisted.Key.Version,
		EntityVersion: persisted.Version,
		ParentOID:     persisted.ParentOID,
		Actor:         model.ActorFrom(ctx),
		At:            p.config.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(ev.EntityType, ev.Operation))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, MessageID(ev))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("notify: publish %s: %w", msg.Subject, err)
	}
	p.config.Logger.Debug("published change event", "subject", msg.Subject, "oid", ev.OID, "entityVersion", ev.EntityVersion)
	return nil
}

// Subject returns the subject events of entityType and operation are published to.
func (p *Publisher[M]) Subject(entityType, operation string) string {
	return p.config.Subject + "." + entityType + "." + operation
}

// MessageID derives the deduplication id of an event. Retried publishes of the same
// change share an id.
func MessageID(ev Event) string {
	name := fmt.Sprintf("%s/%s@%s/%d/%s", ev.EntityType, ev.OID, ev.Version, ev.EntityVersion, ev.Operation)
	return uuid.NewSHA1(msgIDSpace, []byte(name)).String()
}
