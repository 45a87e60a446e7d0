package update

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medremind/internal/commands"
)

const maxPaletteHistory = 50

func (m Model) handlePaletteKey(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEsc:
		m = m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m
	case tea.KeyEnter:
		return m.submitPalette()
	case tea.KeyUp:
		return m.recallPalette(-1)
	case tea.KeyDown:
		return m.recallPalette(1)
	}
	m.commandInput, _ = m.commandInput.Update(msg)
	m.Palette.Input = m.commandInput.Value()
	return m
}

func (m Model) submitPalette() Model {
	line := strings.TrimSpace(m.commandInput.Value())
	m = m.closePalette()
	if line == "" {
		return m
	}
	m.Palette.History = append(m.Palette.History, line)
	if n := len(m.Palette.History); n > maxPaletteHistory {
		m.Palette.History = m.Palette.History[n-maxPaletteHistory:]
	}

	cmd, err := commands.Parse(line)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m
	}
	return m.runCommand(cmd)
}

// recallPalette steps through History; stepping past the newest entry
// clears the input.
func (m Model) recallPalette(step int) Model {
	h := m.Palette.History
	if len(h) == 0 {
		return m
	}
	m.Palette.recall = min(max(m.Palette.recall+step, 0), len(h))
	line := ""
	if m.Palette.recall < len(h) {
		line = h[m.Palette.recall]
	}
	m.commandInput.SetValue(line)
	m.commandInput.CursorEnd()
	m.Palette.Input = line
	return m
}

func (m Model) openPalette() Model {
	m.Palette.Active = true
	m.Palette.Input = ""
	m.Palette.recall = len(m.Palette.History)
	m.commandInput.SetValue("")
	m.commandInput.Focus()
	return m
}

func (m Model) closePalette() Model {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.Reset()
	m.commandInput.Blur()
	return m
}
