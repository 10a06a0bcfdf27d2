package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ayusman/posetrace/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Long:  `List recently processed videos with their frame counts and status.`,
		Example: `  # Show the last 20 runs
  posetrace history

  # Show failed frames of one run
  posetrace history show 3f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.history()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs().List(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tFRAMES\tFAILED\tINPUT")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.ID, run.StartedAt.Local().Format(time.DateTime), run.Status, run.Total, run.Failed, run.Input)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show ID",
			Short: "Show one run and its failed frames",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := opts.history()
				if err != nil {
					return err
				}
				defer st.Close()

				run, err := st.Runs().Get(args[0])
				if err != nil {
					return historyErr(args[0], err)
				}
				failures, err := st.Runs().Failures(run.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Input:    %s\n", run.Input)
				fmt.Fprintf(out, "Output:   %s\n", run.Output)
				fmt.Fprintf(out, "Status:   %s\n", run.Status)
				fmt.Fprintf(out, "Frames:   %d (%d annotated, %d failed)\n", run.Total, run.Success, run.Failed)
				fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
				if run.FinishedAt != nil {
					fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(time.DateTime))
				}
				if run.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", run.Error)
				}

				if len(failures) > 0 {
					fmt.Fprintln(out, "\nFailed frames:")
					for _, f := range failures {
						fmt.Fprintf(out, "  %6d  %s\n", f.Frame, f.Reason)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a run and its failed frames",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := opts.history()
				if err != nil {
					return err
				}
				defer st.Close()

				if err := st.Runs().Delete(args[0]); err != nil {
					return historyErr(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			},
		},
	)

	return cmd
}

// history opens the run history database named by the configuration.
func (o *options) history() (*store.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Paths.History == "" {
		return nil, errors.New("run history is disabled (paths.history is empty)")
	}
	return store.New(cfg.Paths.History)
}

func historyErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	return err
}
