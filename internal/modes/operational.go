package modes

import (
	"fmt"
	"strings"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// OPERATIONAL MODES: vim
// =============================================================================

// NewVim builds the vim mode: modal editing help plus ex-command
// echoing. It holds exclusive editor state, so only one session may
// have it active at a time.
func NewVim() mode.Plugin {
	return newBuiltin(
		mode.Definition{
			ID:                    IDVim,
			Name:                  "Vim",
			Category:              mode.CategoryOperational,
			Keywords:              []string{"vim", "keybinding", "keybindings", "motions", "modal"},
			Triggers:              []string{"vim mode", "enable vim"},
			Priority:              3,
			Timeout:               5 * time.Second,
			MaxConcurrentSessions: 1,
			Description:           "Modal editing reference and ex-command echo",
		},
		Scorer{},
		renderVim,
	)
}

func renderVim(input string, mc mode.Context, mem SessionMemory) mode.Result {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, ":") {
		return mode.Result{
			Success:  true,
			Output:   fmt.Sprintf("`%s` acknowledged (command %d this session).", trimmed, mem.Dispatches),
			Metadata: map[string]string{"ex_command": trimmed},
		}
	}

	var b strings.Builder
	b.WriteString("## Vim Reference\n\n")
	b.WriteString("| Keys | Action |\n|---|---|\n")
	b.WriteString("| `h j k l` | Move left, down, up, right |\n")
	b.WriteString("| `w` / `b` | Next / previous word |\n")
	b.WriteString("| `dd` / `yy` / `p` | Delete, yank, paste line |\n")
	b.WriteString("| `ci(` | Change inside parentheses |\n")
	b.WriteString("| `/` then `n` | Search, repeat forward |\n")
	b.WriteString("| `:wq` | Write and quit |\n")

	return mode.Result{
		Success:     true,
		Output:      b.String(),
		Suggestions: []string{"Try an ex command starting with :", "Ask for text-object motions"},
	}
}
