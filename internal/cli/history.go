package cli

import (
	"github.com/spf13/cobra"

	"github.com/ytget/mediaporter/internal/history"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "List recent batches, or the tasks of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderHistoryTasks(cmd.OutOrStdout(), run)
				return nil
			}
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "history-db", history.DefaultPath(), "history database")
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "number of batches to show")
	return cmd
}
