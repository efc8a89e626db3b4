// Package checkcmder provides the check command that resolves the object atom
// of a record on the ledger.
package checkcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

const checkLongDesc string = `Resolve the object atom of a record.

An atom-only record moves through checking to ready. When the atom already
existed on the ledger the record's origin becomes "existing".

Examples:
  echoes check 6b0c5c9e-5f0e-4b43-9d2c-5b8f7f0c3a11`

const checkShortDesc string = "Resolve the object atom of a record"

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: checkShortDesc,
		Long:  checkLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var rec triplet.Record
			err = cliui.Step(cmd.OutOrStdout(), "Checking "+args[0], func() error {
				var err error
				rec, err = s.Machine.BeginCheck(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s  %s %s\n",
				cliui.KeyStyle.Render("status:"), cliui.Status(rec.Status),
				cliui.KeyStyle.Render("object:"), rec.Refs.Object,
			)
			return nil
		},
	}

	cmdutil.AddStorageFlags(cmd)

	return cmd
}
