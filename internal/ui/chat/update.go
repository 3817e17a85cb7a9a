// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// errorToastDuration is how long a transient error stays visible.
const errorToastDuration = 4 * time.Second

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.orch.CancelStreaming()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Cancel):
			m.orch.CancelStreaming()
			return m, nil

		case key.Matches(msg, m.keyMap.NewThread):
			if !m.orch.Thinking() {
				m.orch.NewThread()
				m = m.refreshViewport()
			}
			return m, nil

		case key.Matches(msg, m.keyMap.NextModel):
			if !m.orch.Thinking() {
				m.cycleModel()
			}
			return m, nil

		case key.Matches(msg, m.keyMap.Send):
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.orch.Thinking() {
				return m, nil
			}
			m.input.Reset()
			m.lastError = ""
			return m, tea.Batch(m.sendCmd(text), m.spin.Tick)
		}

	case RefreshMsg:
		m = m.refreshViewport()

	case sendDoneMsg:
		m = m.refreshViewport()
		if msg.err != nil {
			m.lastError = msg.err.Error()
			cmds = append(cmds, tea.Tick(errorToastDuration, func(time.Time) tea.Msg {
				return clearErrorMsg{}
			}))
		}

	case clearErrorMsg:
		m.lastError = ""

	default:
		// Keep the spinner animated while a stream is in flight.
		if m.orch.Thinking() {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// resize lays the view out for a new terminal size and rebuilds the
// markdown renderer at the matching word wrap width.
func (m Model) resize(width, height int) Model {
	m.width = width
	m.height = height

	headerHeight := 1
	inputHeight := 3
	statusHeight := 1
	viewportHeight := height - headerHeight - inputHeight - statusHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.Width = width - 6

	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		m.renderer = renderer
	}

	return m.refreshViewport()
}

// refreshViewport re-renders the transcript and follows the tail.
func (m Model) refreshViewport() Model {
	if !m.ready {
		return m
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderThread())
	if atBottom {
		m.viewport.GotoBottom()
	}
	return m
}

// cycleModel pins the next enabled model after the current selection.
func (m *Model) cycleModel() {
	models := m.orch.Models()
	if len(models) == 0 {
		return
	}

	start := 0
	if current, ok := m.orch.SelectedModel(); ok {
		for i := range models {
			if models[i].Key() == current.Key() {
				start = i + 1
				break
			}
		}
	}
	for i := 0; i < len(models); i++ {
		candidate := models[(start+i)%len(models)]
		if candidate.Enabled {
			m.orch.SelectModel(candidate)
			return
		}
	}
}
