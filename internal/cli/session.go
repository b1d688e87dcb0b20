package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Show a sync session and the outcome of each item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client{opts: rootOpts}
			view, err := c.session(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return printJSON(out, view)
			}

			p := view.Progress()
			fmt.Fprintf(out, "session %s (%s) %s: %d scraped, %d failed, %d pending\n",
				view.ID, view.Type, view.Status, p.Scraped, p.Failed, p.Pending)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITEM\tSTATUS\tERROR")
			for _, it := range view.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ExternalID, it.Status, it.Error)
			}
			return tw.Flush()
		},
	}
}
