package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statsJSON bool

// statsCmd reports usage statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	Long:  `Shows lifetime dispatch and activation counters from the usage tracker.`,
	RunE:  showStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit statistics as JSON")
}

func showStats(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	agg := rt.tracker.Stats()

	if statsJSON {
		totals, err := rt.store.TotalsByMode()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(map[string]any{
			"usage":          agg,
			"history_totals": totals,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println("cogmux usage")
	fmt.Println("============")
	fmt.Printf("dispatches:     %d (%d failed, %d timed out)\n",
		agg.Total.Dispatches, agg.Total.Failures, agg.Total.Timeouts)
	fmt.Printf("activations:    %d\n", agg.Total.Activations)
	fmt.Printf("mode switches:  %d\n", agg.Switches)
	fmt.Printf("sessions ended: %d\n", agg.SessionsEnded)
	fmt.Printf("policy updates: %d\n", agg.PolicyUpdates)

	if len(agg.ByMode) > 0 {
		ids := make([]string, 0, len(agg.ByMode))
		for id := range agg.ByMode {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := agg.ByMode[ids[i]], agg.ByMode[ids[j]]
			if a.Dispatches != b.Dispatches {
				return a.Dispatches > b.Dispatches
			}
			return ids[i] < ids[j]
		})

		fmt.Printf("\n%-14s %6s %6s %6s %12s\n", "MODE", "ACT", "DISP", "FAIL", "ACTIVE")
		for _, id := range ids {
			c := agg.ByMode[id]
			fmt.Printf("%-14s %6d %6d %6d %12s\n",
				id, c.Activations, c.Dispatches, c.Failures,
				(time.Duration(c.ActiveMS) * time.Millisecond).Round(time.Second))
		}
	}

	if len(agg.ByCategory) > 0 {
		cats := make([]string, 0, len(agg.ByCategory))
		for cat := range agg.ByCategory {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Printf("\n%-14s %6s %6s\n", "CATEGORY", "ACT", "DISP")
		for _, cat := range cats {
			c := agg.ByCategory[cat]
			fmt.Printf("%-14s %6d %6d\n", cat, c.Activations, c.Dispatches)
		}
	}
	return nil
}
