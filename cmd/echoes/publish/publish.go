// Package publishcmder provides the publish command that writes records to the
// ledger one at a time or as a single batch.
package publishcmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

const publishLongDesc string = `Publish records to the ledger.

Each id is published on its own. With --batch the ids are submitted in one
ledger transaction; without ids, --batch publishes every pending record.
Records that are not publishable are skipped and reported.

Examples:
  echoes publish <id>
  echoes publish --batch
  echoes publish --batch <id> <id>`

const publishShortDesc string = "Publish records to the ledger"

type publishCommander struct {
	batch bool
}

func NewPublishCmd() *cobra.Command {
	cmder := &publishCommander{}

	cmd := &cobra.Command{
		Use:   "publish [<id>...]",
		Short: publishShortDesc,
		Long:  publishLongDesc,
		Args: func(_ *cobra.Command, args []string) error {
			if !cmder.batch && len(args) == 0 {
				return errors.New("publish requires at least one id unless --batch is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if cmder.batch {
				return cmder.runBatch(cmd.Context(), cmd.OutOrStdout(), s.Machine, args)
			}
			return cmder.runEach(cmd.Context(), cmd.OutOrStdout(), s.Machine, args)
		},
	}

	cmdutil.AddStorageFlags(cmd)
	cmd.Flags().BoolVar(&cmder.batch, "batch", false, "Submit the records in one ledger transaction")

	return cmd
}

func (c *publishCommander) runEach(ctx context.Context, w io.Writer, m *lifecycle.Machine, ids []string) error {
	var errs []error
	for _, id := range ids {
		var rec triplet.Record
		err := cliui.Step(w, "Publishing "+id, func() error {
			var err error
			rec, err = m.Publish(ctx, id)
			return err
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "    %s  %s %s\n", cliui.Status(rec.Status), cliui.KeyStyle.Render("tx:"), rec.Refs.Tx)
	}
	return errors.Join(errs...)
}

func (c *publishCommander) runBatch(ctx context.Context, w io.Writer, m *lifecycle.Machine, ids []string) error {
	if len(ids) == 0 {
		pending, err := m.Pending(ctx)
		if err != nil {
			return err
		}
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("Nothing to publish."))
		return nil
	}

	var result lifecycle.BatchResult
	err := cliui.Step(w, fmt.Sprintf("Publishing %d records in one batch", len(ids)), func() error {
		var err error
		result, err = m.BatchPublish(ctx, ids)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("tx:"), result.TxRef)
	for _, r := range result.Published {
		fmt.Fprintf(w, "  %s %s %s\n", cliui.SuccessMark, r.ID, cliui.DimStyle.Render(r.Triplet.String()))
	}
	for _, sk := range result.Skipped {
		fmt.Fprintf(w, "  %s %s %s\n", cliui.DimStyle.Render("-"), sk.ID, cliui.DimStyle.Render(sk.Reason))
	}
	fmt.Fprintln(w)
	return nil
}
