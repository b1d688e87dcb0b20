package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Follow the status stream of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client{opts: rootOpts}
			return c.watch(cmd.Context(), args[0], func(ev jobstatus.Event) error {
				return printEvent(cmd, rootOpts, ev)
			})
		},
	}
}

func printEvent(cmd *cobra.Command, opts *RootOptions, ev jobstatus.Event) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return printJSON(out, ev)
	}

	line := ev.Status
	if ev.Progress != nil {
		line += fmt.Sprintf(" %d/%d done, %d failed", ev.Progress.Scraped+ev.Progress.Failed, ev.Progress.Total, ev.Progress.Failed)
	}
	if ev.TerminalState != nil {
		line += fmt.Sprintf(" (%s)", *ev.TerminalState)
	}
	fmt.Fprintln(out, line)
	return nil
}
