package dynamo

import (
	"log/slog"
	"time"

	"github.com/jacentio/persist/internal/shard"
)

// Config holds configuration for the Store.
type Config struct {
	// TablePrefix is prepended to entity type names to form table names.
	TablePrefix string

	// RelationshipTable is the name of the parent/child relationship index.
	// Default: "persist_relationships"
	RelationshipTable string

	// NumShards is the number of shards per parent in the relationship index.
	// Higher values increase write throughput of children under one parent but
	// require more parallel queries to list them.
	// Default: 1 (no sharding, single query)
	// Max: 256
	//
	// Per-shard limits:
	//   - Writes: 1,000/sec
	//   - Reads: 3,000/sec
	NumShards int

	// Logger receives debug and warning logs. Default: slog.Default().
	Logger *slog.Logger

	// Now is the clock used for soft-delete TTLs. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: "persist_relationships",
		NumShards:         1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = "persist_relationships"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.MaxShards {
		c.NumShards = shard.MaxShards
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
