// Package cmdutil resolves configuration and opens the echoes components for
// the one-shot CLI commands.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/pkg/app"
	"github.com/papercomputeco/echoes/pkg/config"
	"github.com/papercomputeco/echoes/pkg/daemon"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/migrate"
)

// Session is an opened App plus the server lock held while it is open.
type Session struct {
	*app.App

	Logger *slog.Logger

	// Migration is the legacy migration report of the startup pass.
	Migration migrate.Report

	lock *daemon.Lock
}

// Close releases the App and the server lock.
func (s *Session) Close() error {
	return errors.Join(s.App.Close(), s.lock.Release())
}

// AddStorageFlags registers the shared storage flags on cmd. Values are read
// back through viper, so the flag targets are not kept.
func AddStorageFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, new(string))
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, new(string))
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxValueBytes, new(uint))
}

// LoadConfig resolves the configuration for cmd from defaults, config.toml,
// ECHOES_* variables and the given registered flags.
func LoadConfig(cmd *cobra.Command, registryKeys []string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, registryKeys)
	return config.FromViper(v), nil
}

// Logger builds the CLI logger honoring the global --debug flag.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
}

// ConfigDir returns the global --config-dir flag value.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Open resolves configuration, takes the server lock and opens the App.
// Legacy migration and in-flight recovery run before it returns. Commands
// that go through Open refuse to run while "echoes serve" holds the store.
func Open(ctx context.Context, cmd *cobra.Command) (*Session, error) {
	cfg, err := LoadConfig(cmd, config.StorageFlags)
	if err != nil {
		return nil, err
	}
	log := Logger(cmd)

	dm, err := daemon.NewManager(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	lock, err := dm.TryLock()
	if err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			if state, _ := dm.LoadState(); state != nil {
				return nil, fmt.Errorf("%w (pid %d, api %s); use the API instead", err, state.PID, state.APIURL)
			}
		}
		return nil, err
	}

	a, err := app.New(ctx, cfg, app.Options{ConfigDir: ConfigDir(cmd), Logger: log})
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	report, err := a.Startup(ctx)
	if err != nil {
		_ = a.Close()
		_ = lock.Release()
		return nil, err
	}

	return &Session{App: a, Logger: log, Migration: report, lock: lock}, nil
}
