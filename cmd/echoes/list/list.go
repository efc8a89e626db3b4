// Package listcmder provides the list command for inspecting triplet records.
package listcmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/triplet"
	"github.com/papercomputeco/echoes/pkg/utils"
)

const listLongDesc string = `List triplet records.

Records are printed in collection order with their lifecycle status. Use
--pending to show only records that can still be published, newest first.

Examples:
  echoes list
  echoes list --status published --status exists-on-chain
  echoes list --pending --json`

const listShortDesc string = "List triplet records"

type listCommander struct {
	statuses []string
	pending  bool
	json     bool
}

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := cmder.parseStatuses()
			if err != nil {
				return err
			}

			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var records []triplet.Record
			if cmder.pending {
				records, err = s.Machine.Pending(cmd.Context())
			} else {
				records, err = s.Machine.List(cmd.Context(), statuses...)
			}
			if err != nil {
				return err
			}

			if cmder.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmdutil.AddStorageFlags(cmd)
	cmd.Flags().StringSliceVar(&cmder.statuses, "status", nil, "Only list records in these statuses")
	cmd.Flags().BoolVar(&cmder.pending, "pending", false, "Only list publishable records, newest first")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print records as JSON")

	return cmd
}

func (c *listCommander) parseStatuses() ([]triplet.Status, error) {
	out := make([]triplet.Status, 0, len(c.statuses))
	for _, s := range c.statuses {
		st := triplet.Status(s)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		out = append(out, st)
	}
	return out, nil
}

func printRecords(w io.Writer, records []triplet.Record) {
	if len(records) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No triplets."))
		return
	}

	fmt.Fprintln(w)
	for _, r := range records {
		fmt.Fprintf(w, "  %s  %-24s %s\n",
			cliui.DimStyle.Render(r.ID),
			cliui.Status(r.Status),
			utils.Truncate(r.Triplet.String(), 72),
		)
	}
	fmt.Fprintln(w)
}
