package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"learnplay/internal/history"
)

var flagLatencyLimit int

var latencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Show recent startup latency measurements",
	Args:  cobra.NoArgs,
	RunE:  latencyRun,
}

func init() {
	latencyCmd.Flags().IntVarP(&flagLatencyLimit, "limit", "n", 20, "Number of samples to show")
}

func latencyRun(cmd *cobra.Command, args []string) error {
	store, err := history.OpenDefault()
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	records, err := store.RecentLatency(cmd.Context(), flagLatencyLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No startup latency recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSOURCE\tLATENCY\tTITLE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", r.Recorded.Format("2006-01-02 15:04"), r.SourceKind, r.Millis, r.Title)
	}
	return w.Flush()
}
