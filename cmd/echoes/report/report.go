// Package reportcmder provides the report command that summarizes the triplet
// collection as rendered markdown.
package reportcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/echoes/cmd/echoes/cmdutil"
	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/daemon"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

const reportLongDesc string = `Summarize the triplet collection.

Prints counts by lifecycle status and origin, the number of buffered
messages and the most recent pending records. When "echoes serve" is running
the report points at its API instead, since the store is held by the server.

Examples:
  echoes report
  echoes report --raw > report.md`

const reportShortDesc string = "Summarize the triplet collection"

// pendingShown caps the pending records listed in the report.
const pendingShown = 10

var statusOrder = []triplet.Status{
	triplet.StatusAtomOnly,
	triplet.StatusChecking,
	triplet.StatusReady,
	triplet.StatusPublishing,
	triplet.StatusPublished,
	triplet.StatusExistsOnChain,
}

type reportCommander struct {
	raw bool
}

// Summary is the data rendered by the report.
type Summary struct {
	Counts          lifecycle.Counts
	PendingMessages int
	Pending         []triplet.Record
}

func NewReportCmd() *cobra.Command {
	cmder := &reportCommander{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: reportShortDesc,
		Long:  reportLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			if dm, err := daemon.NewManager(cmdutil.ConfigDir(cmd)); err == nil {
				if state, _ := dm.LoadState(); state != nil {
					fmt.Fprintf(w, "  %s echoes serve is running (pid %d), query %s/stats\n",
						cliui.KeyStyle.Render("●"), state.PID, state.APIURL)
				}
			}

			s, err := cmdutil.Open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var sum Summary
			if sum.Counts, err = s.Machine.Counts(cmd.Context()); err != nil {
				return err
			}
			msgs, err := s.Buffer.Pending(cmd.Context())
			if err != nil {
				return err
			}
			sum.PendingMessages = len(msgs)
			if sum.Pending, err = s.Machine.Pending(cmd.Context()); err != nil {
				return err
			}

			return cmder.render(w, sum)
		},
	}

	cmdutil.AddStorageFlags(cmd)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the markdown without rendering it")

	return cmd
}

func (c *reportCommander) render(w io.Writer, sum Summary) error {
	md := Markdown(sum)
	if c.raw {
		_, err := io.WriteString(w, md)
		return err
	}

	out, err := cliui.RenderMarkdown(md)
	if err != nil {
		// Fall back to the raw markdown.
		out = md
	}
	_, err = io.WriteString(w, out)
	return err
}

// Markdown renders sum as a markdown document.
func Markdown(sum Summary) string {
	var b strings.Builder

	b.WriteString("# Echoes report\n\n")
	fmt.Fprintf(&b, "**%d** triplets (%d discovered, %d existing), **%d** buffered messages.\n\n",
		sum.Counts.Total, sum.Counts.Discovered, sum.Counts.Existing, sum.PendingMessages)

	b.WriteString("## By status\n\n| Status | Count |\n|---|---|\n")
	for _, st := range statusOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", st, sum.Counts.ByStatus[st])
	}

	b.WriteString("\n## Pending\n\n")
	if len(sum.Pending) == 0 {
		b.WriteString("_Nothing to publish._\n")
		return b.String()
	}
	for i, r := range sum.Pending {
		if i == pendingShown {
			fmt.Fprintf(&b, "- … and %d more\n", len(sum.Pending)-pendingShown)
			break
		}
		fmt.Fprintf(&b, "- `%s` %s (%s)\n", r.ID, r.Triplet.String(), r.Status)
	}

	return b.String()
}
