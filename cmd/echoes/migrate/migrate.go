// Package migratecmder provides the migrate command that moves legacy storage
// keys into the chunked triplet collection.
package migratecmder

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/migrate"
)

const migrateLongDesc string = `Migrate legacy storage keys.

Older installs kept raw messages, parsed triplets and published triplets as
single flat lists. Each list is merged into the chunked triplet collection and
its key removed once the merge is saved. A key that fails is kept and retried
on the next run.

Migration also runs automatically whenever the store is opened; this command
reports what it did.`

const migrateShortDesc string = "Migrate legacy storage keys"

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return printReport(cmd.OutOrStdout(), s.Migration)
		},
	}

	cmdutil.AddStorageFlags(cmd)

	return cmd
}

func printReport(w io.Writer, r migrate.Report) error {
	fmt.Fprintln(w)

	var errs []error
	for _, o := range r.Outcomes {
		switch {
		case o.Err != nil:
			errs = append(errs, &migrate.KeyError{Key: o.Key, Err: o.Err})
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, cliui.KeyStyle.Render(o.Key), cliui.DimStyle.Render(o.Err.Error()))
		case !o.Found:
			fmt.Fprintf(w, "  %s %s %s\n", cliui.DimStyle.Render("-"), cliui.KeyStyle.Render(o.Key), cliui.DimStyle.Render("not present"))
		default:
			fmt.Fprintf(w, "  %s %s %d entries, %d added, %d updated, %d skipped\n",
				cliui.SuccessMark, cliui.KeyStyle.Render(o.Key), o.Entries, o.Added, o.Updated, o.Skipped)
		}
	}
	fmt.Fprintln(w)

	return errors.Join(errs...)
}
