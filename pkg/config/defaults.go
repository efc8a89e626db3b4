package config

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendInMemory = "inmemory"
)

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
)

const (
	defaultBackend       = BackendSQLite
	defaultMaxValueBytes = 65536

	defaultMessageChunkSize = 10
	defaultTripletChunkSize = 5
	defaultMaxTriplets      = 100

	defaultAPIListen = ":8082"

	defaultEventStreamProvider = EventStreamNone
	defaultKafkaBrokers        = "localhost:9092"
	defaultKafkaTopic          = "echoes.triplets"

	defaultLedgerProvider = "simulated"
	defaultLedgerSubject  = "I"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Backend:       defaultBackend,
			MaxValueBytes: defaultMaxValueBytes,
		},
		Collections: CollectionsConfig{
			MessageChunkSize: defaultMessageChunkSize,
			TripletChunkSize: defaultTripletChunkSize,
		},
		Retention: RetentionConfig{
			MaxTriplets: defaultMaxTriplets,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Brokers:  defaultKafkaBrokers,
			Topic:    defaultKafkaTopic,
		},
		Ledger: LedgerConfig{
			Provider: defaultLedgerProvider,
			Subject:  defaultLedgerSubject,
		},
	}
}
