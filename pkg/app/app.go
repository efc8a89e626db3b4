// Package app assembles the echoes components from a resolved configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/config"
	"github.com/papercomputeco/echoes/pkg/dotdir"
	"github.com/papercomputeco/echoes/pkg/eventstream"
	"github.com/papercomputeco/echoes/pkg/eventstream/kafka"
	"github.com/papercomputeco/echoes/pkg/eventstream/nop"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/ledger"
	"github.com/papercomputeco/echoes/pkg/ledger/simulated"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/migrate"
	"github.com/papercomputeco/echoes/pkg/parser"
	"github.com/papercomputeco/echoes/pkg/parser/sofia"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
	"github.com/papercomputeco/echoes/pkg/storage/postgres"
	"github.com/papercomputeco/echoes/pkg/storage/sqlite"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// Options overrides collaborators that are otherwise built from config.
// Tests use it to inject an in-memory driver or a mock ledger.
type Options struct {
	ConfigDir string
	Driver    storage.Driver
	Ledger    ledger.Client
	Publisher eventstream.Publisher
	Parser    parser.Parser
	Logger    *slog.Logger
}

// App holds the wired echoes components.
type App struct {
	Config *config.Config

	Driver    storage.Driver
	Messages  *chunked.Store[triplet.RawMessage]
	Triplets  *chunked.Store[triplet.Record]
	Extractor *extract.Extractor
	Buffer    *buffer.Buffer
	Machine   *lifecycle.Machine
	Migrator  *migrate.Migrator
	Cleaner   *cleanup.Cleaner
	Publisher eventstream.Publisher
	Ledger    ledger.Client

	logger *slog.Logger
}

// New opens the substrate and wires every component on top of it.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	a := &App{
		Config: cfg,
		logger: opts.Logger,
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}

	var err error
	a.Driver = opts.Driver
	if a.Driver == nil {
		a.Driver, err = openDriver(ctx, cfg.Storage, opts.ConfigDir, a.logger)
		if err != nil {
			return nil, err
		}
	}

	a.Publisher = opts.Publisher
	if a.Publisher == nil {
		a.Publisher, err = newPublisher(cfg.EventStream, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.Ledger = opts.Ledger
	if a.Ledger == nil {
		a.Ledger, err = newLedger(cfg.Ledger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	p := opts.Parser
	if p == nil {
		p = sofia.New()
	}

	if err := a.wire(cfg, p); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *App) wire(cfg *config.Config, p parser.Parser) error {
	var err error

	a.Messages, err = chunked.New[triplet.RawMessage](a.Driver, chunked.Collection{
		Name:      buffer.DefaultCollection.Name,
		ChunkSize: orDefault(cfg.Collections.MessageChunkSize, buffer.DefaultCollection.ChunkSize),
	}, a.logger)
	if err != nil {
		return err
	}

	a.Triplets, err = chunked.New[triplet.Record](a.Driver, chunked.Collection{
		Name:      extract.DefaultCollection.Name,
		ChunkSize: orDefault(cfg.Collections.TripletChunkSize, extract.DefaultCollection.ChunkSize),
	}, a.logger)
	if err != nil {
		return err
	}

	a.Extractor, err = extract.New(extract.Config{
		Store:     a.Triplets,
		Parser:    p,
		Publisher: a.Publisher,
		Logger:    a.logger.With("component", "extract"),
	})
	if err != nil {
		return err
	}

	a.Buffer, err = buffer.New(buffer.Config{
		Messages:    a.Messages,
		Triplets:    a.Triplets,
		Extractor:   a.Extractor,
		MaxTriplets: cfg.Retention.MaxTriplets,
		Logger:      a.logger.With("component", "buffer"),
	})
	if err != nil {
		return err
	}

	a.Machine, err = lifecycle.New(lifecycle.Config{
		Store:     a.Triplets,
		Ledger:    a.Ledger,
		Publisher: a.Publisher,
		Logger:    a.logger.With("component", "lifecycle"),
	})
	if err != nil {
		return err
	}

	a.Migrator, err = migrate.New(migrate.Config{
		Driver:    a.Driver,
		Store:     a.Triplets,
		Extractor: a.Extractor,
		Logger:    a.logger.With("component", "migrate"),
	})
	if err != nil {
		return err
	}

	a.Cleaner, err = cleanup.New(cleanup.Config{
		Driver:   a.Driver,
		Messages: a.Messages,
		Triplets: a.Triplets,
		Logger:   a.logger.With("component", "cleanup"),
	})
	return err
}

// Startup migrates legacy keys and recovers records left in flight by an
// interrupted process. Migration errors are logged and left for the next
// start; a recovery error is returned.
func (a *App) Startup(ctx context.Context) (migrate.Report, error) {
	report, err := a.Migrator.Run(ctx)
	if err != nil {
		a.logger.Warn("legacy migration incomplete, will retry on next start", "error", err)
	}

	recovered, err := a.Machine.Recover(ctx)
	if err != nil {
		return report, fmt.Errorf("recovering in-flight records: %w", err)
	}
	if recovered > 0 {
		a.logger.Info("recovered in-flight records", "count", recovered)
	}

	return report, nil
}

// Close releases the publisher and the substrate.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Driver != nil {
		errs = append(errs, a.Driver.Close())
	}
	return errors.Join(errs...)
}

func openDriver(ctx context.Context, c config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch c.Backend {
	case config.BackendInMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriverWithConfig(inmemory.Config{MaxValueBytes: c.MaxValueBytes}), nil

	case config.BackendPostgres:
		if c.PostgresDSN == "" {
			return nil, errors.New("postgres backend requires storage.postgres_dsn")
		}
		d, err := postgres.NewDriver(ctx, c.PostgresDSN, c.MaxValueBytes)
		if err != nil {
			return nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		log.Info("using postgres storage")
		return d, nil

	case config.BackendSQLite, "":
		path := c.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().SQLitePath(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
		}
		d, err := sqlite.NewDriver(path, c.MaxValueBytes)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite storage: %w", err)
		}
		log.Info("using sqlite storage", "path", path)
		return d, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

func newPublisher(c config.EventStreamConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case config.EventStreamNone, "":
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: splitList(c.Brokers),
			Topic:   c.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing events to kafka", "brokers", c.Brokers, "topic", c.Topic)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider %q", c.Provider)
	}
}

func newLedger(c config.LedgerConfig) (ledger.Client, error) {
	switch c.Provider {
	case "simulated", "":
		return simulated.New(c.Subject), nil
	default:
		return nil, fmt.Errorf("unknown ledger provider %q", c.Provider)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
