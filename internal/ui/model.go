/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loqalabs/loqa-loopback-go/internal/meter"
)

// Model is the full-screen level meter
type Model struct {
	// Stream
	device string
	config string

	// Levels
	last     meter.Report
	received uint64
	peak     float64

	// Errors
	streamErrors int
	lastError    string

	width    int
	quitting bool
}

// StreamInfoMsg names the device being captured
type StreamInfoMsg struct {
	Device string
	Config string
}

// LevelMsg carries one level report
type LevelMsg meter.Report

// StreamErrorMsg carries a runtime stream error
type StreamErrorMsg struct {
	Err error
}

func NewModel() Model {
	return Model{}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "enter", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case StreamInfoMsg:
		m.device = msg.Device
		m.config = msg.Config
	case LevelMsg:
		m.last = meter.Report(msg)
		m.received++
		if m.last.Percent > m.peak {
			m.peak = m.last.Percent
		}
	case StreamErrorMsg:
		m.streamErrors++
		if msg.Err != nil {
			m.lastError = msg.Err.Error()
		}
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("┌─ Loqa Loopback ────────────────────────────────────┐\n")
	if m.device == "" {
		b.WriteString("│ Device: (starting)\n")
	} else {
		fmt.Fprintf(&b, "│ Device: %s\n", m.device)
		fmt.Fprintf(&b, "│ Config: %s\n", m.config)
	}
	b.WriteString("├────────────────────────────────────────────────────┤\n")

	if m.received == 0 {
		b.WriteString("│ Waiting for audio...\n")
	} else {
		fmt.Fprintf(&b, "│ %s\n", meter.FormatLine(m.last))
		fmt.Fprintf(&b, "│ Peak: %6.2f%%  Reports: %d\n", m.peak, m.received)
	}

	if m.streamErrors > 0 {
		fmt.Fprintf(&b, "│ ⚠ Stream errors: %d (last: %s)\n", m.streamErrors, truncate(m.lastError, m.errorWidth()))
	}

	b.WriteString("│ enter/q: stop\n")
	b.WriteString("└────────────────────────────────────────────────────┘\n")
	return b.String()
}

func (m Model) errorWidth() int {
	if m.width > 40 {
		return m.width - 40
	}
	return 40
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
