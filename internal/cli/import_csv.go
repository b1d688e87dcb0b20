package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
)

// NewImportCSVCommand creates the import-csv command.
func NewImportCSVCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		idempotencyKey string
		follow         bool
	)

	cmd := &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Upload a collection export and start a sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("can't read %s: %w", args[0], err)
			}

			c := client{opts: rootOpts}
			receipt, err := c.importCSV(cmd.Context(), data, idempotencyKey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := printJSON(out, receipt); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "session %s queued as job %s\n", receipt.SessionID, receipt.JobID)
			}

			if !follow {
				return nil
			}
			return c.watch(cmd.Context(), receipt.JobID, func(ev jobstatus.Event) error {
				return printEvent(cmd, rootOpts, ev)
			})
		},
	}

	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "deduplicate retries of the same upload")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "follow the job until it finishes")

	return cmd
}
