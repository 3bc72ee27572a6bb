package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cogmux/internal/dispatch"
	"cogmux/internal/mode"
	"cogmux/internal/modes"
)

var (
	modesCategory    string
	modesSetSession  string
	modesLastSession string
)

// modesCmd lists and inspects the registered modes
var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List and inspect cognitive modes",
	RunE:  listModes,
}

var modesInfoCmd = &cobra.Command{
	Use:   "info [mode-id]",
	Short: "Show a mode's definition in full",
	Args:  cobra.ExactArgs(1),
	RunE:  showModeInfo,
}

var modesSetCmd = &cobra.Command{
	Use:   "set [mode-id] [input...]",
	Short: "Activate a mode explicitly, optionally processing input",
	Long: `Activates the named mode for the session regardless of fitness
scoring. Capacity limits still apply. Trailing arguments are processed
through the mode after activation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: setMode,
}

var modesLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show the session's most recent recorded mode",
	RunE:  showLastMode,
}

func init() {
	modesCmd.Flags().StringVarP(&modesCategory, "category", "c", "", "Only modes in this category")
	modesSetCmd.Flags().StringVarP(&modesSetSession, "session", "s", "", "Session ID (default: fresh session)")
	modesLastCmd.Flags().StringVarP(&modesLastSession, "session", "s", "", "Session ID (required)")
	modesLastCmd.MarkFlagRequired("session")

	modesCmd.AddCommand(modesInfoCmd)
	modesCmd.AddCommand(modesSetCmd)
	modesCmd.AddCommand(modesLastCmd)
}

// catalogRegistry builds the mode registry without opening the store.
func catalogRegistry() (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry()
	if err := modes.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func listModes(cmd *cobra.Command, args []string) error {
	registry, err := catalogRegistry()
	if err != nil {
		return err
	}

	defs := registry.All()
	if modesCategory != "" {
		cat := mode.Category(modesCategory)
		if !cat.Valid() {
			return fmt.Errorf("unknown category %q (known: %v)", modesCategory, mode.Categories())
		}
		defs = registry.ByCategory(cat)
	}

	fmt.Printf("%-14s %-12s %8s %9s %4s  %s\n", "MODE", "CATEGORY", "PRIORITY", "TIMEOUT", "CAP", "DESCRIPTION")
	for _, def := range defs {
		fmt.Printf("%-14s %-12s %8d %9s %4d  %s\n",
			def.ID, def.Category, def.Priority, def.Timeout, def.MaxConcurrentSessions, def.Description)
	}
	return nil
}

func showModeInfo(cmd *cobra.Command, args []string) error {
	registry, err := catalogRegistry()
	if err != nil {
		return err
	}

	_, def, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown mode %q", args[0])
	}

	fmt.Printf("%s (%s)\n", def.Name, def.ID)
	fmt.Printf("  Category:  %s\n", def.Category)
	fmt.Printf("  Priority:  %d\n", def.Priority)
	fmt.Printf("  Timeout:   %s\n", def.Timeout)
	fmt.Printf("  Capacity:  %d concurrent sessions\n", def.MaxConcurrentSessions)
	if len(def.Keywords) > 0 {
		fmt.Printf("  Keywords:  %s\n", strings.Join(def.Keywords, ", "))
	}
	if len(def.Triggers) > 0 {
		fmt.Printf("  Triggers:  %q\n", def.Triggers)
	}
	if def.Description != "" {
		fmt.Printf("  %s\n", def.Description)
	}
	return nil
}

func setMode(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	modeID := args[0]
	sessionID := resolveSession(modesSetSession)
	rt.reaper.Touch(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := rt.engine.SetMode(ctx, sessionID, modeID, mode.TriggerManual); err != nil {
		return err
	}
	fmt.Printf("mode %s active for session %s\n", modeID, sessionID)

	if len(args) > 1 {
		input := strings.Join(args[1:], " ")
		res, err := rt.engine.Process(ctx, sessionID, input, dispatch.ProcessOptions{ManualMode: modeID})
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(strings.TrimRight(res.Output, "\n"))
	}
	return nil
}

func showLastMode(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := rt.store.History(modesLastSession, 1)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("no recorded activity for session %s\n", modesLastSession)
		return nil
	}

	row := rows[0]
	fmt.Printf("session %s: %s (%.2f, %s) active %s, ended %s\n",
		modesLastSession, row.Mode, row.Confidence, row.Trigger,
		row.Duration.Round(time.Millisecond), row.EndedAt.Format(time.RFC3339))
	return nil
}
