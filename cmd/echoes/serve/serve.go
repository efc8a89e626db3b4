// Package servecmder provides the serve command that runs the echoes API
// server and its ingest workers.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/api"
	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/app"
	"github.com/papercomputeco/echoes/pkg/config"
	"github.com/papercomputeco/echoes/pkg/daemon"
	"github.com/papercomputeco/echoes/pkg/ingest"
	"github.com/papercomputeco/echoes/pkg/logger"
)

type ServeCommander struct {
	configDir string
	debug     bool
	logFile   string
	workers   uint
	queueSize uint
	retry     time.Duration

	cmd    *cobra.Command
	logger *slog.Logger
}

// serveFlags are the registry flags bound by serve.
var serveFlags = append([]string{
	config.FlagAPIListen,
	config.FlagMaxTriplets,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagLedgerProvider,
}, config.StorageFlags...)

const serveLongDesc string = `Run the echoes API server.

Inbound agent messages posted to /messages are buffered and drained by a pool
of ingest workers. Legacy storage keys are migrated and records left in flight
by an interrupted run are rolled back before the server accepts requests.

Only one server may run against a .echoes/ directory at a time.

Examples:
  echoes serve
  echoes serve --listen :9000 --backend postgres --postgres-dsn postgres://localhost/echoes
  echoes serve --eventstream kafka --kafka-brokers k1:9092,k2:9092`

const serveShortDesc string = "Run the echoes API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir = cmdutil.ConfigDir(cmd)
			cmder.cmd = cmd
			return cmder.run(cmd.Context())
		},
	}

	cmdutil.AddStorageFlags(cmd)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, new(string))
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTriplets, new(uint))
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagLedgerProvider, new(string))

	cmd.Flags().UintVar(&cmder.workers, "workers", 1, "Number of ingest workers")
	cmd.Flags().UintVar(&cmder.queueSize, "queue-size", 256, "Capacity of the ingest queue")
	cmd.Flags().DurationVar(&cmder.retry, "retry-interval", 5*time.Second, "How often a drain skipped while another ran is retried")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := cmdutil.LoadConfig(c.cmd, serveFlags)
	if err != nil {
		return err
	}

	dm, err := daemon.NewManager(c.configDir)
	if err != nil {
		return err
	}
	lock, err := dm.TryLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	a, err := app.New(ctx, cfg, app.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Startup(ctx)
	if err != nil {
		return err
	}
	if migrated := report.Migrated(); len(migrated) > 0 {
		c.logger.Info("migrated legacy keys", "keys", migrated, "added", report.Added())
	}

	pool, err := ingest.NewPool(&ingest.Config{
		Buffer:        a.Buffer,
		NumWorkers:    c.workers,
		QueueSize:     c.queueSize,
		RetryInterval: c.retry,
		Logger:        c.logger.With("component", "ingest"),
	})
	if err != nil {
		return fmt.Errorf("creating ingest pool: %w", err)
	}
	defer pool.Close()

	server, err := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, api.Deps{
		Buffer:  a.Buffer,
		Machine: a.Machine,
		Ingest:  pool,
		Cleaner: a.Cleaner,
	}, c.logger.With("component", "api"))
	if err != nil {
		return err
	}

	if err := dm.SaveState(&daemon.State{
		PID:       os.Getpid(),
		APIURL:    apiURL(cfg.API.Listen),
		Backend:   cfg.Storage.Backend,
		StartedAt: time.Now(),
	}); err != nil {
		c.logger.Warn("could not record server state", "error", err)
	}
	defer dm.ClearState()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Error("api shutdown", "error", err)
	}
	return nil
}

// setupLogger builds the pretty terminal logger and, with --log-file, a JSON
// file logger fanned out next to it.
func (c *ServeCommander) setupLogger() (func(), error) {
	terminal := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	if c.logFile == "" {
		c.logger = terminal
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	c.logger = logger.Multi(terminal, file)
	return func() {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			terminal.Warn("closing log file", "error", err)
		}
	}, nil
}

// apiURL turns a listen address into a URL other commands can reach.
func apiURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}
