package engine

import (
	"log/slog"
	"time"

	"github.com/jacentio/persist/model"
)

// Config holds the ambient settings of an engine.
type Config struct {
	// Logger receives operation logs. Default: slog.Default().
	Logger *slog.Logger

	// Clock stamps tracking info. Default: time.Now in UTC.
	Clock func() time.Time

	// NewOID assigns identifiers on create. Default: model.NewOID.
	NewOID func() model.OID

	// NewVersion assigns version identifiers to new versions. Default: model.NewVersionOID.
	NewVersion func() model.VersionOID

	// Observer is told about every finished operation. Default: none.
	Observer Observer
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	c := Config{}
	c.validate()
	return c
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.NewOID == nil {
		c.NewOID = model.NewOID
	}
	if c.NewVersion == nil {
		c.NewVersion = model.NewVersionOID
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
}
