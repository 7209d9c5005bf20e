package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rpattn/entitysync/internal/deadletter"
	"github.com/rpattn/entitysync/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// DLQOptions holds flags shared by the dlq subcommands.
type DLQOptions struct {
	*RootOptions
	State  string
	Entity string
	Limit  int
	Note   string
	By     string
	Out    string
}

// NewDLQCommand groups dead-letter operations.
func NewDLQCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DLQOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and resolve quarantined messages",
	}
	cmd.PersistentFlags().StringVar(&opts.By, "by", "admin", "user recorded on resolutions")

	list := &cobra.Command{
		Use:   "list",
		Short: "List quarantined messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQList(cmd, opts)
		},
	}
	list.Flags().StringVar(&opts.State, "state", "", "filter by state")
	list.Flags().StringVar(&opts.Entity, "entity", "", "filter by entity type")
	list.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries")

	reprocess := &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Replay one quarantined message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQAction(cmd, opts, args[0], func(svc *deadletter.Service, id uuid.UUID) (domain.DeadLetterEntry, error) {
				return svc.Reprocess(cmd.Context(), id, opts.By)
			})
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a message as resolved by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQAction(cmd, opts, args[0], func(svc *deadletter.Service, id uuid.UUID) (domain.DeadLetterEntry, error) {
				return svc.MarkResolved(cmd.Context(), id, opts.By, opts.Note)
			})
		},
	}
	resolve.Flags().StringVar(&opts.Note, "note", "", "resolution note (required)")

	fail := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a message as permanently failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQAction(cmd, opts, args[0], func(svc *deadletter.Service, id uuid.UUID) (domain.DeadLetterEntry, error) {
				return svc.MarkPermanentlyFailed(cmd.Context(), id, opts.By, opts.Note)
			})
		},
	}
	fail.Flags().StringVar(&opts.Note, "note", "", "resolution note (required)")

	export := &cobra.Command{
		Use:   "export",
		Short: "Export quarantined messages to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQExport(cmd, opts)
		},
	}
	export.Flags().StringVar(&opts.Out, "out", "dead-letters.xlsx", "output file")
	export.Flags().StringVar(&opts.State, "state", "", "filter by state")

	cmd.AddCommand(list, reprocess, resolve, fail, export)
	return cmd
}

func parseFilter(opts *DLQOptions) (domain.DeadLetterFilter, error) {
	filter := domain.DeadLetterFilter{EntityType: opts.Entity, Limit: opts.Limit}
	if opts.State != "" {
		state, ok := domain.ParseDeadLetterState(opts.State)
		if !ok {
			return filter, fmt.Errorf("invalid state %q", opts.State)
		}
		filter.State = state
	}
	return filter, nil
}

func runDLQList(cmd *cobra.Command, opts *DLQOptions) error {
	filter, err := parseFilter(opts)
	if err != nil {
		return err
	}
	a, err := loadApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.DeadLetters.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), opts.RootOptions, entries, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMESSAGE\tENTITY\tSTATE\tRETRIES\tERROR")
		for _, entry := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				entry.ID, entry.MessageID, entry.EntityType, entry.State, entry.RetryCount, firstLine(entry.ErrorMessage))
		}
		_ = tw.Flush()
	})
}

func runDLQAction(cmd *cobra.Command, opts *DLQOptions, rawID string, action func(*deadletter.Service, uuid.UUID) (domain.DeadLetterEntry, error)) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid dead-letter id %q: %w", rawID, err)
	}
	a, err := loadApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := action(a.DeadLetters, id)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), opts.RootOptions, entry, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: %s\n", entry.ID, entry.MessageID, entry.State)
	})
}

func runDLQExport(cmd *cobra.Command, opts *DLQOptions) error {
	filter, err := parseFilter(opts)
	if err != nil {
		return err
	}
	filter.Limit = 0
	a, err := loadApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := os.Create(opts.Out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Out, err)
	}
	defer file.Close()

	count, err := a.DeadLetters.Export(cmd.Context(), filter, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", count, opts.Out)
	return nil
}

func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i]
		}
	}
	return text
}
