// Package configcmder provides the config command for managing persistent
// echoes configuration stored in the .echoes/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/config"
)

const configLongDesc string = `Manage persistent echoes configuration.

Configuration is stored as config.toml in the .echoes/ directory and provides
default values for command flags. ECHOES_* environment variables override the
file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  storage.backend, storage.sqlite_path, storage.postgres_dsn, storage.max_value_bytes,
  collections.message_chunk_size, collections.triplet_chunk_size,
  retention.max_triplets, api.listen,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  ledger.provider, ledger.subject

Use subcommands to get, set, or list configuration values:
  echoes config set <key> <value>    Set a configuration value
  echoes config get <key>            Get a configuration value
  echoes config list                 List all configuration values

Examples:
  echoes config set storage.backend postgres
  echoes config set retention.max_triplets 250
  echoes config get api.listen
  echoes config list`

const configShortDesc string = "Manage persistent echoes configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys completes the first argument with the valid config keys.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// unknownKey formats the error for a key that is not a config key.
func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
