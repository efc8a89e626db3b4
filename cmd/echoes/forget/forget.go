// Package forgetcmder provides the forget command that deletes records.
package forgetcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
)

const forgetLongDesc string = `Delete triplet records.

Forgetting a record only removes it locally; nothing is retracted from the
ledger.

Examples:
  echoes forget <id> [<id>...]`

const forgetShortDesc string = "Delete triplet records"

func NewForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <id> [<id>...]",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var errs []error
			for _, id := range args {
				err := s.Machine.Forget(cmd.Context(), id)
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.Mark(err), id)
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmdutil.AddStorageFlags(cmd)

	return cmd
}
