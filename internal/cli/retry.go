package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewRetryCommand groups retry tracker maintenance.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Inspect and maintain the retry tracker",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete succeeded entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.Tracker.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts, map[string]int{"deleted": deleted}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %d retry entries\n", deleted)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show retry tracker counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Tracker.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts, stats, func(w io.Writer) {
				fmt.Fprintf(w, "retrying:             %d\n", stats.TotalRetrying)
				fmt.Fprintf(w, "moved to dlq:         %d\n", stats.TotalMovedToDLQ)
				fmt.Fprintf(w, "success with retries: %d\n", stats.TotalSuccessWithRetries)
			})
		},
	})

	return cmd
}
