package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsLimit int

// sessionsCmd lists and ends recorded sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and end recorded sessions",
	RunE:  listSessions,
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "Mark a session as ended",
	Args:  cobra.ExactArgs(1),
	RunE:  endSession,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to show")
	sessionsCmd.AddCommand(sessionsEndCmd)
}

func listSessions(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := rt.store.RecentSessions(sessionsLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no recorded sessions")
		return nil
	}

	fmt.Printf("%-38s %-20s %-20s %s\n", "SESSION", "FIRST SEEN", "LAST TOUCHED", "STATE")
	for _, row := range rows {
		state := "open"
		if row.EndedAt != nil {
			state = "ended " + row.EndedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-38s %-20s %-20s %s\n",
			row.SessionID,
			row.FirstSeen.Format("2006-01-02 15:04:05"),
			row.LastTouched.Format("2006-01-02 15:04:05"),
			state)
	}
	return nil
}

func endSession(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := args[0]
	if err := rt.store.EndSession(sessionID, time.Now()); err != nil {
		return err
	}
	fmt.Printf("session %s ended\n", sessionID)
	return nil
}
