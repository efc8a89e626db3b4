// Package cleanupcmder provides the cleanup command that purges local state.
package cleanupcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/cliui"
)

const cleanupLongDesc string = `Purge local state.

Empties the message buffer, keeps only the most recently extracted records and
removes any legacy storage keys left behind by an incomplete migration.
Records with a ledger call in flight are never removed.

Examples:
  echoes cleanup
  echoes cleanup --keep 25
  echoes cleanup --all`

const cleanupShortDesc string = "Purge the buffer, old records and legacy keys"

type CleanupCommander struct {
	keep uint
	all  bool
}

func NewCleanupCmd() *cobra.Command {
	cmder := &CleanupCommander{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: cleanupShortDesc,
		Long:  cleanupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.all && cmd.Flags().Changed("keep") {
				return fmt.Errorf("--all and --keep are mutually exclusive")
			}

			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			opts := cleanup.Options{Keep: int(cmder.keep)}
			if cmder.all {
				opts.Keep = 0
			}

			var result cleanup.Result
			err = cliui.Step(cmd.OutOrStdout(), "Cleaning up", func() error {
				var err error
				result, err = s.Cleaner.Run(cmd.Context(), opts)
				return err
			})

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("messages cleared:"), result.MessagesCleared)
			fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("triplets removed:"), result.TripletsRemoved)
			fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("triplets kept:"), result.TripletsKept)
			if len(result.LegacyKeysRemoved) > 0 {
				fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("legacy keys removed:"), strings.Join(result.LegacyKeysRemoved, ", "))
			}
			return err
		},
	}

	cmdutil.AddStorageFlags(cmd)
	cmd.Flags().UintVar(&cmder.keep, "keep", cleanup.DefaultKeep, "Number of most recently extracted records to keep")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Remove every record that is not in flight")

	return cmd
}
