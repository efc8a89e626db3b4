// Package draincmder provides the drain command that extracts triplets from
// buffered agent messages.
package draincmder

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

const drainLongDesc string = `Extract triplets from buffered agent messages.

Every unprocessed message in the buffer is parsed and its new triplets are
persisted. Messages that fail to parse stay in the buffer for the next drain.

With --text, the given agent reply is buffered first.

Examples:
  echoes drain
  echoes drain --text '{"triplets":[{"subject":"I","predicate":"like","object":"go"}]}'`

const drainShortDesc string = "Extract triplets from buffered messages"

type drainCommander struct {
	text string
}

func NewDrainCmd() *cobra.Command {
	cmder := &drainCommander{}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: drainShortDesc,
		Long:  drainLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return cmder.run(cmd, s.Buffer)
		},
	}

	cmdutil.AddStorageFlags(cmd)
	cmd.Flags().StringVar(&cmder.text, "text", "", "Buffer this agent reply before draining")

	return cmd
}

func (c *drainCommander) run(cmd *cobra.Command, b *buffer.Buffer) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if c.text != "" {
		msg := triplet.RawMessage{ID: uuid.NewString(), ReceivedAt: time.Now(), Text: c.text}
		if _, err := b.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("buffering message: %w", err)
		}
	}

	var result buffer.DrainResult
	err := cliui.Step(w, "Draining message buffer", func() error {
		var err error
		result, err = b.Drain(ctx)
		return err
	})
	if err != nil {
		return err
	}

	printResult(w, result)
	return nil
}

func printResult(w io.Writer, r buffer.DrainResult) {
	fmt.Fprintf(w, "\n  %s %d\n", cliui.KeyStyle.Render("Processed:"), len(r.Processed))
	fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("New triplets:"), len(r.Added))
	for _, rec := range r.Added {
		fmt.Fprintf(w, "    %s %s\n", cliui.DimStyle.Render(rec.ID), rec.Triplet.String())
	}
	if r.Retained > 0 {
		fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render("Dropped by retention:"), r.Retained)
	}
	if r.BufferCleared {
		fmt.Fprintf(w, "  %s buffer was cleared after a storage quota error\n", cliui.FailMark)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, f.MessageID, cliui.DimStyle.Render(f.Err.Error()))
	}
	fmt.Fprintf(w, "  %s %d\n\n", cliui.KeyStyle.Render("Still pending:"), len(r.Pending))
}
