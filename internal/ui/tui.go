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
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loqalabs/loqa-loopback-go/internal/audio"
	"github.com/loqalabs/loqa-loopback-go/internal/meter"
)

// TUI runs the level meter as a bubbletea program and acts as a reporter
// sink. Done is closed when the user quits or the program stops.
type TUI struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
	err     error
}

// NewTUI creates the program; nothing is drawn until Start
func NewTUI(opts ...tea.ProgramOption) *TUI {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(NewModel(), opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program on its own goroutine
func (t *TUI) Start() {
	t.once.Do(func() {
		go func() {
			_, t.err = t.program.Run()
			close(t.done)
		}()
	})
}

// Done is closed once the program has exited
func (t *TUI) Done() <-chan struct{} {
	return t.done
}

// Err returns the program's exit error; valid after Done is closed
func (t *TUI) Err() error {
	return t.err
}

func (t *TUI) StreamStarted(device audio.Device, config audio.StreamConfig) error {
	t.program.Send(StreamInfoMsg{Device: device.Name, Config: config.String()})
	return nil
}

func (t *TUI) StreamStopped() error {
	return nil
}

// Report implements meter.Sink
func (t *TUI) Report(r meter.Report) error {
	t.program.Send(LevelMsg(r))
	return nil
}

// StreamError implements meter.StreamErrorSink
func (t *TUI) StreamError(err error) error {
	t.program.Send(StreamErrorMsg{Err: err})
	return nil
}

// Stop quits the program and waits for it to restore the terminal
func (t *TUI) Stop() {
	t.Start()
	t.program.Quit()
	<-t.done
}
