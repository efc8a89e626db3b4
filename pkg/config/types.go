package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent echoes configuration stored as config.toml
// in the .echoes/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Collections CollectionsConfig `toml:"collections"`
	Retention   RetentionConfig   `toml:"retention"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Ledger      LedgerConfig      `toml:"ledger"`
}

// StorageConfig selects and configures the key/value substrate.
type StorageConfig struct {
	// Backend is one of "sqlite", "postgres" or "inmemory".
	Backend     string `toml:"backend,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`

	// MaxValueBytes is the per-entry size ceiling. Zero disables it.
	MaxValueBytes int `toml:"max_value_bytes,omitempty"`
}

// CollectionsConfig holds per-collection chunk sizes.
type CollectionsConfig struct {
	MessageChunkSize int `toml:"message_chunk_size,omitempty"`
	TripletChunkSize int `toml:"triplet_chunk_size,omitempty"`
}

// RetentionConfig bounds the triplet collection.
type RetentionConfig struct {
	MaxTriplets int `toml:"max_triplets,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds event publisher settings.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of Kafka brokers.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// LedgerConfig selects the ledger client.
type LedgerConfig struct {
	Provider string `toml:"provider,omitempty"`
	Subject  string `toml:"subject,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q is not a non-negative integer", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.backend": {
		get: func(c *Config) string { return c.Storage.Backend },
		set: func(c *Config, v string) error {
			switch v {
			case BackendSQLite, BackendPostgres, BackendInMemory:
				c.Storage.Backend = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.backend: %q (available: sqlite, postgres, inmemory)", v)
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.max_value_bytes": intKey("storage.max_value_bytes",
		func(c *Config) *int { return &c.Storage.MaxValueBytes }),
	"collections.message_chunk_size": intKey("collections.message_chunk_size",
		func(c *Config) *int { return &c.Collections.MessageChunkSize }),
	"collections.triplet_chunk_size": intKey("collections.triplet_chunk_size",
		func(c *Config) *int { return &c.Collections.TripletChunkSize }),
	"retention.max_triplets": intKey("retention.max_triplets",
		func(c *Config) *int { return &c.Retention.MaxTriplets }),
	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNone, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			}
			return fmt.Errorf("invalid value for eventstream.provider: %q (available: none, kafka)", v)
		},
	},
	"eventstream.brokers": stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"ledger.provider":     stringKey(func(c *Config) *string { return &c.Ledger.Provider }),
	"ledger.subject":      stringKey(func(c *Config) *string { return &c.Ledger.Subject }),
}
