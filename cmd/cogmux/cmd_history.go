package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cogmux/internal/store"
)

var historyLimit int

// historyCmd shows recorded mode activity
var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "Show recorded mode history",
	Long: `Shows mode activations recorded in the local store, newest first.
With a session argument only that session's history is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
}

func showHistory(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	var rows []store.HistoryRow
	if len(args) == 1 {
		rows, err = rt.store.History(args[0], historyLimit)
	} else {
		rows, err = rt.store.RecentHistory(historyLimit)
	}
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("no recorded history")
		return nil
	}

	fmt.Printf("%-20s %-9s %-14s %-10s %6s %10s\n", "STARTED", "SESSION", "MODE", "TRIGGER", "CONF", "DURATION")
	for _, row := range rows {
		fmt.Printf("%-20s %-9s %-14s %-10s %6.2f %10s\n",
			row.StartedAt.Format("2006-01-02 15:04:05"),
			shortID(row.SessionID),
			row.Mode,
			row.Trigger,
			row.Confidence,
			row.Duration.Round(time.Millisecond),
		)
	}
	return nil
}
