package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"cogmux/internal/dispatch"
	"cogmux/internal/mode"
)

var (
	dispatchSession string
	dispatchMode    string
	dispatchJSON    bool
)

// dispatchCmd processes a single input through the engine
var dispatchCmd = &cobra.Command{
	Use:   "dispatch [input...]",
	Short: "Dispatch one input through the best-fitting mode",
	Long: `Scores the input against every registered mode, activates the best
fit and processes the input through it.

Examples:
  cogmux dispatch "summarize this meeting transcript: ..."
  cogmux dispatch --mode debugging "panic: runtime error: ..."
  cogmux dispatch --session standup --json "organize these notes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchSession, "session", "s", "", "Session ID (default: fresh session)")
	dispatchCmd.Flags().StringVarP(&dispatchMode, "mode", "m", "", "Force a specific mode instead of scoring")
	dispatchCmd.Flags().BoolVar(&dispatchJSON, "json", false, "Emit the result as JSON")
}

// dispatchEnvelope is the JSON shape of one dispatch result.
type dispatchEnvelope struct {
	Session     string            `json:"session"`
	Mode        string            `json:"mode,omitempty"`
	Category    string            `json:"category,omitempty"`
	Trigger     string            `json:"trigger"`
	Confidence  float64           `json:"confidence,omitempty"`
	Success     bool              `json:"success"`
	Output      string            `json:"output,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	NextMode    string            `json:"next_mode,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
}

func runDispatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := resolveSession(dispatchSession)
	input := strings.Join(args, " ")

	rt.reaper.Touch(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, procErr := rt.engine.Process(ctx, sessionID, input, dispatch.ProcessOptions{
		ManualMode: dispatchMode,
	})

	trigger := mode.TriggerAutomatic
	if dispatchMode != "" {
		trigger = mode.TriggerManual
	}

	env := dispatchEnvelope{
		Session:     sessionID,
		Trigger:     string(trigger),
		Confidence:  res.Confidence,
		Success:     res.Success,
		Output:      res.Output,
		Suggestions: res.Suggestions,
		NextMode:    res.NextMode,
		Metadata:    res.Metadata,
	}
	if def, ok := rt.engine.CurrentMode(sessionID); ok {
		env.Mode = def.ID
		env.Category = string(def.Category)
	}
	if procErr != nil {
		env.Error = procErr.Error()
		var merr *mode.Error
		if errors.As(procErr, &merr) {
			env.ErrorKind = string(merr.Kind)
		}
	}

	if dispatchJSON {
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return procErr
	}

	if procErr != nil {
		// A plugin failure can still carry renderable output.
		if res.Output != "" {
			fmt.Println(renderOutput(res.Output))
		}
		return procErr
	}

	fmt.Printf("◆ %s (%s) %.2f %s\n\n", env.Mode, env.Category, res.Confidence, trigger)
	fmt.Println(renderOutput(res.Output))

	if len(res.Suggestions) > 0 {
		fmt.Fprintln(os.Stderr)
		for _, s := range res.Suggestions {
			fmt.Fprintf(os.Stderr, "  · %s\n", s)
		}
	}
	if res.NextMode != "" {
		fmt.Fprintf(os.Stderr, "  → suggested next mode: %s\n", res.NextMode)
	}
	return nil
}

// renderOutput pretty-prints mode markdown unless colors are off.
func renderOutput(output string) string {
	output = strings.TrimRight(output, "\n")
	if noColor {
		return output
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return output
	}
	rendered, err := r.Render(output)
	if err != nil {
		return output
	}
	return strings.TrimRight(rendered, "\n")
}
