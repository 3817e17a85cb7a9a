// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Robdel12/DraftPatch/internal/model"
	"github.com/Robdel12/DraftPatch/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.orch.Thinking() {
		b.WriteString(m.spin.View())
		b.WriteString(m.theme.ThinkingText.Render(" thinking..."))
		b.WriteString("\n")
	}
	if m.lastError != "" {
		b.WriteString(m.theme.ErrorBox.Render(
			m.theme.ErrorTitle.Render("Error: ") + util.TruncateWidth(m.lastError, m.width-12)))
		b.WriteString("\n")
	}

	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	title := model.PlaceholderTitle
	if t := m.orch.Thread(); t != nil {
		title = t.DisplayTitle()
	}

	badge := "no model"
	if mdl, ok := m.orch.SelectedModel(); ok {
		badge = mdl.Label()
	} else if models := m.orch.Models(); len(models) > 0 {
		badge = models[0].Label()
	}

	left := m.theme.ThreadTitle.Render(util.TruncateWidth(title, m.width/2))
	right := m.theme.ModelBadge.Render(badge)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderStatusBar() string {
	shortcuts := []struct{ key, desc string }{
		{"enter", "send"},
		{"esc", "cancel"},
		{"ctrl+n", "new"},
		{"ctrl+p", "model"},
		{"ctrl+c", "quit"},
	}

	var parts []string
	for _, s := range shortcuts {
		parts = append(parts, m.theme.ShortcutKey.Render(s.key)+" "+m.theme.ShortcutDesc.Render(s.desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderThread renders the active thread's transcript. Finalized
// assistant messages go through the markdown renderer; streaming text is
// shown raw so partial constructs do not flicker.
func (m Model) renderThread() string {
	thread := m.orch.Thread()
	if thread == nil || len(thread.Messages) == 0 {
		return m.theme.SystemNote.Render("Start a conversation. Your drafts stay local until sent.")
	}

	var b strings.Builder
	for _, msg := range thread.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(m.theme.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.theme.UserText.Render(msg.DisplayContent()))
		case model.RoleAssistant:
			b.WriteString(m.theme.AssistantLabel.Render(thread.Model.Label()))
			b.WriteString("\n")
			b.WriteString(m.renderAssistant(msg))
		case model.RoleSystem:
			b.WriteString(m.theme.SystemNote.Render(msg.DisplayContent()))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Model) renderAssistant(msg *model.Message) string {
	content := msg.DisplayContent()
	if msg.Streaming || m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
