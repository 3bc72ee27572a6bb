// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"cogmux/cmd/cogmux/ui"
	"cogmux/internal/config"
	"cogmux/internal/dispatch"
	"cogmux/internal/logging"
	"cogmux/internal/mode"
)

// chatModel is the main model for the interactive chat interface
type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	history   []chatMessage
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool

	// Session state
	sessionID string
	turnCount int

	// Backend
	rt *runtime
}

type chatMessage struct {
	role       string // "user", "mode" or "system"
	content    string
	modeID     string
	category   mode.Category
	confidence float64
	time       time.Time
}

// Messages for tea updates
type (
	dispatchDoneMsg chatMessage
	errorMsg        error
)

// initChat initializes the interactive chat model
func initChat(rt *runtime) chatModel {
	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Type anything... (Enter to send, /help for commands)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if !noColor {
		if styles.Theme.IsDark {
			renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(80),
			)
		} else {
			renderer, _ = glamour.NewTermRenderer(
				glamour.WithStylePath("light"),
				glamour.WithWordWrap(80),
			)
		}
	}

	sessionID := rt.cfg.Chat.DefaultSession
	if sessionID == "" {
		sessionID = resolveSession("")
	}

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		history:   []chatMessage{},
		sessionID: sessionID,
		rt:        rt,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case dispatchDoneMsg:
		m.isLoading = false
		m.turnCount++
		m.history = append(m.history, chatMessage(msg))
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case errorMsg:
		m.isLoading = false
		m.err = msg
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.history = append(m.history, chatMessage{
		role:    "user",
		content: input,
		time:    time.Now(),
	})

	m.textinput.Reset()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	m.isLoading = true
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.processInput(input, ""),
	)
}

// processInput dispatches one input in the background and folds the
// result (or a friendly failure) into a chat message.
func (m chatModel) processInput(input, manualMode string) tea.Cmd {
	engine := m.rt.engine
	reaper := m.rt.reaper
	sessionID := m.sessionID

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		reaper.Touch(sessionID)
		res, err := engine.Process(ctx, sessionID, input, dispatch.ProcessOptions{
			ManualMode: manualMode,
		})

		msg := chatMessage{
			role:       "mode",
			confidence: res.Confidence,
			time:       time.Now(),
		}
		if def, ok := engine.CurrentMode(sessionID); ok {
			msg.modeID = def.ID
			msg.category = def.Category
		}

		if err != nil {
			var merr *mode.Error
			if errors.As(err, &merr) {
				msg.content = friendlyDispatchError(merr, res)
				return dispatchDoneMsg(msg)
			}
			return errorMsg(err)
		}

		var sb strings.Builder
		sb.WriteString(res.Output)
		if len(res.Suggestions) > 0 {
			sb.WriteString("\n")
			for _, s := range res.Suggestions {
				sb.WriteString(fmt.Sprintf("\n> %s", s))
			}
		}
		if res.NextMode != "" {
			sb.WriteString(fmt.Sprintf("\n\n*next: `/mode %s`*", res.NextMode))
		}
		msg.content = sb.String()
		return dispatchDoneMsg(msg)
	}
}

// friendlyDispatchError turns an engine error into chat copy.
func friendlyDispatchError(merr *mode.Error, res mode.Result) string {
	switch merr.Kind {
	case mode.KindNoApplicableMode:
		return "No mode cleared the confidence floor for that input. Try `/mode <id>` to pick one explicitly, or `/modes` to see what's registered."
	case mode.KindTimeout:
		return fmt.Sprintf("⏱ **%s** ran out of time processing that input. The mode is still active; try again or simplify the input.", merr.Mode)
	case mode.KindCapacityExceeded:
		return fmt.Sprintf("**%s** is at its concurrent-session capacity. Your previous mode is untouched.", merr.Mode)
	case mode.KindPluginFailure:
		if res.Output != "" {
			return fmt.Sprintf("%s\n\n⚠ %v", res.Output, merr)
		}
		return fmt.Sprintf("⚠ %v", merr)
	default:
		return fmt.Sprintf("⚠ %v", merr)
	}
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/clear":
		m.history = []chatMessage{}
		m.viewport.SetContent("")
		m.textinput.Reset()
		return m, nil

	case "/help":
		return m.pushSystem(helpText), nil

	case "/modes":
		return m.pushSystem(m.renderModesTable()), nil

	case "/mode":
		if len(parts) < 2 {
			if def, ok := m.rt.engine.CurrentMode(m.sessionID); ok {
				return m.pushSystem(fmt.Sprintf("Active mode: **%s** (%s)", def.ID, def.Category)), nil
			}
			return m.pushSystem("No mode active yet. `/mode <id>` activates one."), nil
		}
		return m.switchMode(parts[1])

	case "/history":
		return m.pushSystem(m.renderSessionHistory()), nil

	case "/policy":
		return m.handlePolicyCommand(parts[1:])

	case "/stats":
		stats := m.rt.engine.Statistics()
		agg := m.rt.tracker.Stats()
		return m.pushSystem(fmt.Sprintf(
			"This process: %s\n\nLifetime: %d dispatches, %d activations, %d switches, %d failures",
			stats.Summary(), agg.Total.Dispatches, agg.Total.Activations, agg.Switches, agg.Total.Failures)), nil

	case "/end":
		if err := m.rt.reaper.EndNow(m.sessionID); err != nil && !errors.Is(err, mode.ErrNotFound) {
			return m.pushSystem(fmt.Sprintf("⚠ ending session: %v", err)), nil
		}
		old := shortID(m.sessionID)
		m.sessionID = resolveSession("")
		return m.pushSystem(fmt.Sprintf("Session %s ended. New session: %s", old, shortID(m.sessionID))), nil

	case "/session":
		return m.pushSystem(fmt.Sprintf("Session: `%s` (turn %d)", m.sessionID, m.turnCount)), nil

	default:
		return m.pushSystem(fmt.Sprintf("Unknown command `%s`. `/help` lists commands.", cmd)), nil
	}
}

// switchMode activates a mode manually via /mode <id>.
func (m chatModel) switchMode(modeID string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m.rt.reaper.Touch(m.sessionID)
	if err := m.rt.engine.SetMode(ctx, m.sessionID, modeID, mode.TriggerManual); err != nil {
		var merr *mode.Error
		if errors.As(err, &merr) {
			return m.pushSystem(friendlyDispatchError(merr, mode.Result{})), nil
		}
		return m.pushSystem(fmt.Sprintf("⚠ %v", err)), nil
	}
	return m.pushSystem(fmt.Sprintf("Switched to **%s**. Everything you type now goes through it.", modeID)), nil
}

// handlePolicyCommand implements /policy [on|off|threshold <v>|learning on|off].
func (m chatModel) handlePolicyCommand(args []string) (tea.Model, tea.Cmd) {
	p := m.rt.engine.Policy()

	if len(args) == 0 {
		return m.pushSystem(fmt.Sprintf(
			"Auto-switch: **%v** · threshold **%.2f** · learning **%v**\n\n`/policy on|off`, `/policy threshold <0..1>`, `/policy learning on|off`",
			p.Enabled, p.Threshold, p.LearningEnabled)), nil
	}

	switch args[0] {
	case "on":
		p.Enabled = true
	case "off":
		p.Enabled = false
	case "threshold":
		if len(args) < 2 {
			return m.pushSystem("Usage: `/policy threshold <0..1>`"), nil
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return m.pushSystem(fmt.Sprintf("Not a number: `%s`", args[1])), nil
		}
		p.Threshold = v
	case "learning":
		if len(args) < 2 {
			return m.pushSystem("Usage: `/policy learning on|off`"), nil
		}
		p.LearningEnabled = args[1] == "on"
	default:
		return m.pushSystem(fmt.Sprintf("Unknown policy option `%s`", args[0])), nil
	}

	if err := m.rt.engine.UpdatePolicy(p); err != nil {
		return m.pushSystem(fmt.Sprintf("⚠ %v", err)), nil
	}
	if err := m.rt.store.SavePolicy(p); err != nil {
		return m.pushSystem(fmt.Sprintf("Policy applied but not persisted: %v", err)), nil
	}
	return m.pushSystem(fmt.Sprintf(
		"Policy saved: auto-switch **%v**, threshold **%.2f**, learning **%v**",
		p.Enabled, p.Threshold, p.LearningEnabled)), nil
}

// pushSystem appends a system message and refreshes the viewport.
func (m chatModel) pushSystem(content string) chatModel {
	m.history = append(m.history, chatMessage{
		role:    "system",
		content: content,
		time:    time.Now(),
	})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m
}

// renderModesTable lists the catalog as a markdown table.
func (m chatModel) renderModesTable() string {
	var sb strings.Builder
	sb.WriteString("## Registered Modes\n\n")
	sb.WriteString("| Mode | Category | Priority | Timeout | Capacity |\n")
	sb.WriteString("|------|----------|----------|---------|----------|\n")
	for _, def := range m.rt.engine.Modes() {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %d |\n",
			def.ID, def.Category, def.Priority, def.Timeout, def.MaxConcurrentSessions))
	}
	sb.WriteString("\n`/mode <id>` switches manually. Otherwise the best-scoring mode wins.")
	return sb.String()
}

// renderSessionHistory shows this session's in-memory mode history.
func (m chatModel) renderSessionHistory() string {
	entries := m.rt.engine.History(m.sessionID)
	if len(entries) == 0 {
		return "No mode history for this session yet."
	}

	var sb strings.Builder
	sb.WriteString("## Session Mode History\n\n")
	sb.WriteString("| Mode | Trigger | Confidence | Duration |\n")
	sb.WriteString("|------|---------|------------|----------|\n")
	for _, e := range entries {
		dur := "active"
		if !e.Active() {
			dur = e.Duration.Round(time.Millisecond).String()
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %s |\n", e.Mode, e.Trigger, e.Confidence, dur))
	}
	return sb.String()
}

func (m chatModel) renderHistory() string {
	var sb strings.Builder

	for _, msg := range m.history {
		switch msg.role {
		case "user":
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.content))
			sb.WriteString("\n\n")

		case "mode":
			label := "cogmux"
			if msg.modeID != "" {
				label = msg.modeID
			}
			badge := m.styles.ModeBadge(label, msg.category)
			conf := ""
			if msg.confidence > 0 {
				conf = m.styles.Muted.Render(fmt.Sprintf(" %.2f", msg.confidence))
			}
			sb.WriteString(lipgloss.NewStyle().MarginTop(1).Render(badge+conf) + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.content))
			sb.WriteString("\n")

		default: // system
			sysStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(sysStyle.Render("◆ cogmux") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.content))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			// If glamour panics, return plain text
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())

	if m.isLoading {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " scoring modes..."
	}

	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)

	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" ◆ cogmux ")
	session := m.styles.Muted.Render("session " + shortID(m.sessionID))

	var modeStatus string
	if def, ok := m.rt.engine.CurrentMode(m.sessionID); ok {
		modeStatus = m.styles.ModeBadge(def.ID, def.Category)
	} else {
		modeStatus = m.styles.Muted.Render("no mode active")
	}

	var status string
	if m.isLoading {
		status = m.styles.Warning.Render("● dispatching")
	} else {
		status = m.styles.Success.Render("● ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title, "  ", modeStatus, "  ", status, "  ", session,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.RenderDivider(m.width),
	)
}

func (m chatModel) renderFooter() string {
	p := m.rt.engine.Policy()
	autoState := "auto-switch off"
	if p.Enabled {
		autoState = fmt.Sprintf("auto-switch ≥%.2f", p.Threshold)
	}
	help := m.styles.Muted.Render(fmt.Sprintf(
		"%s • Enter: send • /mode: switch • /help: commands • Ctrl+C: exit", autoState))
	return lipgloss.NewStyle().MarginTop(1).Render(help)
}

const helpText = `## Commands

| Command | Description |
|---------|-------------|
| /help | Show this help message |
| /modes | List registered modes |
| /mode | Show the active mode |
| /mode <id> | Switch to a mode manually |
| /history | Show this session's mode history |
| /policy | Show the auto-switch policy |
| /policy on, /policy off | Toggle automatic switching |
| /policy threshold <v> | Set the switch margin (0..1) |
| /policy learning on, off | Toggle transition learning |
| /stats | Usage statistics |
| /session | Show the session ID |
| /end | End this session and start a new one |
| /clear | Clear the chat view |
| /quit, /exit, /q | Exit |

Plain input is scored by every mode; the best fit processes it.
Manual switches pin the mode until a stronger candidate clears the
policy threshold.`

// runInteractiveChat starts the interactive chat interface
func runInteractiveChat() error {
	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Live-reload policy tuning from the config file while the chat
	// is open.
	watcher := config.NewWatcher(configPath, func(c *config.Config) {
		p := dispatch.AutoSwitchPolicy{
			Enabled:         c.Policy.Enabled,
			Threshold:       c.Policy.Threshold,
			LearningEnabled: c.Policy.LearningEnabled,
		}
		if err := rt.engine.UpdatePolicy(p); err != nil {
			logging.Get(logging.CategoryConfig).Warn("reloaded policy rejected", zap.Error(err))
		}
	})
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if err := watcher.Start(watchCtx); err != nil {
		logging.Get(logging.CategoryConfig).Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	p := tea.NewProgram(
		initChat(rt),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return err
}
