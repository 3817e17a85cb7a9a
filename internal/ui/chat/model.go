// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	core "github.com/Robdel12/DraftPatch/internal/chat"
	"github.com/Robdel12/DraftPatch/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// RefreshMsg asks the view to re-render the active thread. The program
// wiring sends it from the orchestrator's change callback.
type RefreshMsg struct{}

// sendDoneMsg reports the outcome of a completed send.
type sendDoneMsg struct{ err error }

// clearErrorMsg dismisses the transient error toast.
type clearErrorMsg struct{}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	orch   *core.Orchestrator
	theme  *styles.Theme
	keyMap KeyMap

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	// lastError holds the transient toast text; empty means no toast.
	lastError string
}

// New creates the chat view bound to an orchestrator.
func New(orch *core.Orchestrator) Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Message..."
	input.Prompt = theme.InputPrompt.Render("> ")
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	return Model{
		orch:   orch,
		theme:  theme,
		keyMap: DefaultKeyMap(),
		input:  input,
		spin:   spin,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// sendCmd runs one send-message exchange off the UI goroutine. Streaming
// progress arrives separately as RefreshMsg via the change callback.
func (m Model) sendCmd(text string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		return sendDoneMsg{err: orch.SendMessage(context.Background(), text)}
	}
}
