// Package editcmder provides the edit command that updates the content of a
// record.
package editcmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

const editLongDesc string = `Edit a triplet record.

Only the flags given are changed. The triplet itself can only be edited while
the record is atom-only and must not duplicate another record; the
description, url and intention can be edited until the record is published.

Examples:
  echoes edit <id> --object "Go programming language"
  echoes edit <id> --description "Systems language" --url https://go.dev`

const editShortDesc string = "Edit the content of a triplet record"

// fields maps each flag onto the record field it edits.
var fields = []struct {
	flag  string
	usage string
	field func(r *triplet.Record) *string
}{
	{"subject", "New subject", func(r *triplet.Record) *string { return &r.Triplet.Subject }},
	{"predicate", "New predicate", func(r *triplet.Record) *string { return &r.Triplet.Predicate }},
	{"object", "New object", func(r *triplet.Record) *string { return &r.Triplet.Object }},
	{"intention", "New intention", func(r *triplet.Record) *string { return &r.Intention }},
	{"description", "New object description", func(r *triplet.Record) *string { return &r.ObjectDescription }},
	{"url", "New object url", func(r *triplet.Record) *string { return &r.ObjectURL }},
}

func NewEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: editShortDesc,
		Long:  editLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string)
			for _, f := range fields {
				if cmd.Flags().Changed(f.flag) {
					v, _ := cmd.Flags().GetString(f.flag)
					values[f.flag] = strings.TrimSpace(v)
				}
			}
			if len(values) == 0 {
				return errors.New("nothing to edit, pass at least one field flag")
			}

			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.Machine.Mutate(cmd.Context(), args[0], func(r *triplet.Record) {
				for _, f := range fields {
					if v, ok := values[f.flag]; ok {
						*f.field(r) = v
					}
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s  %s\n", cliui.Mark(nil), rec.ID, rec.Triplet.String())
			return nil
		},
	}

	cmdutil.AddStorageFlags(cmd)
	for _, f := range fields {
		cmd.Flags().String(f.flag, "", f.usage)
	}

	return cmd
}
