// Package config loads the configuration of the persist tools from a YAML file, PERSIST_*
// environment variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jacentio/persist/store"
)

// Backends accepted in store.backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
)

// Cache kinds accepted in cache.kind.
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"
)

// Config is the complete tool configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Notify NotifyConfig `mapstructure:"notify"`
	Log    LogConfig    `mapstructure:"log"`
}

// StoreConfig selects and configures the EntityStore.
type StoreConfig struct {
	Backend     string       `mapstructure:"backend"`
	DSN         string       `mapstructure:"dsn"`
	TablePrefix string       `mapstructure:"table_prefix"`
	NumShards   int          `mapstructure:"num_shards"`
	Types       []TypeConfig `mapstructure:"types"`
}

// TypeConfig declares an entity type.
type TypeConfig struct {
	Name      string `mapstructure:"name"`
	Parent    string `mapstructure:"parent"`
	Versioned bool   `mapstructure:"versioned"`
}

// CacheConfig configures the read-through cache.
type CacheConfig struct {
	Kind      string        `mapstructure:"kind"`
	Size      int           `mapstructure:"size"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
	// Tombstone is how long a written key refuses cache fills.
	Tombstone time.Duration `mapstructure:"tombstone"`
}

// NotifyConfig configures change notifications. An empty URL disables them.
type NotifyConfig struct {
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"backend":      "store.backend",
	"dsn":          "store.dsn",
	"table-prefix": "store.table_prefix",
	"num-shards":   "store.num_shards",
	"cache":        "cache.kind",
	"nats-url":     "notify.nats_url",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.num_shards", 1)
	v.SetDefault("cache.kind", CacheNone)
	v.SetDefault("cache.size", 10_000)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.tombstone", 2*time.Second)
	v.SetDefault("notify.subject", "persist")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. An empty path searches persist.yaml in the working
// directory and in ~/.persist; a missing file is not an error. Flags that are set
// override the file and the environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PERSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("persist")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.persist")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendDynamo:
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for backend %s", c.Store.Backend)
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}

	switch c.Cache.Kind {
	case "", CacheNone, CacheLRU:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("config: cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}

	seen := make(map[string]bool, len(c.Store.Types))
	for _, t := range c.Store.Types {
		if t.Name == "" {
			return errors.New("config: store.types entry without name")
		}
		if seen[t.Name] {
			return fmt.Errorf("config: entity type %s declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	for _, t := range c.Store.Types {
		if t.Parent != "" && !seen[t.Parent] {
			return fmt.Errorf("config: entity type %s has undeclared parent %s", t.Name, t.Parent)
		}
	}
	return nil
}

// Schemas returns the schemas of the declared entity types.
func (c *Config) Schemas() []store.Schema {
	out := make([]store.Schema, 0, len(c.Store.Types))
	for _, t := range c.Store.Types {
		switch {
		case t.Parent != "":
			out = append(out, store.NewDependentSchema(t.Name, t.Parent))
		case t.Versioned:
			out = append(out, store.NewVersionedSchema(t.Name))
		default:
			out = append(out, store.NewSchema(t.Name))
		}
	}
	return out
}

// Schema returns the schema of one declared entity type.
func (c *Config) Schema(entityType string) (store.Schema, error) {
	for _, s := range c.Schemas() {
		if s.Type == entityType {
			return s, nil
		}
	}
	return store.Schema{}, fmt.Errorf("config: entity type %s not declared", entityType)
}

// Logger builds a logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
