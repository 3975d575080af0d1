package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"learnplay/internal/history"
	"learnplay/internal/log"
	"learnplay/internal/ui"
)

var (
	flagHistoryList  bool
	flagHistoryClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Resume a lesson from watch history",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().BoolVar(&flagHistoryList, "list", false, "Print history instead of picking an entry")
	historyCmd.Flags().BoolVar(&flagHistoryClear, "clear", false, "Forget all resume positions")
}

func historyRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := history.OpenDefault()
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	if flagHistoryClear {
		ok, err := ui.Confirm("Clear all resume positions?")
		if err != nil || !ok {
			return err
		}
		return store.Clear(ctx)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}

	items := history.FormatForDisplay(entries)

	if flagHistoryList || flagJSON {
		if flagJSON {
			return printJSON(entries)
		}
		for i, item := range items {
			fmt.Fprintf(os.Stdout, "%s\t%s\n", item, entries[i].Key)
		}
		return nil
	}

	idx, err := ui.Select("History", items)
	if err != nil {
		return err
	}

	selected := entries[idx]
	logger := log.WithComponent("cmd")
	logger.Debug().Str("key", selected.Key).Float64("position", selected.Position).Msg("resuming")

	// Re-resolve the descriptor so page changes since the last visit are picked up
	flagContinue = true
	return playTarget(ctx, selected.Key)
}
