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

package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned when the host has no default output device
	ErrNoDevice = errors.New("no default output device available")

	// ErrNoSupportedFormat is returned when no output config is f32 with at least one channel
	ErrNoSupportedFormat = errors.New("no supported f32 output config found")
)

// StreamOp names the phase of a stream's life in which a StreamError occurred
type StreamOp string

const (
	StreamOpConstruct StreamOp = "construct"
	StreamOpStart     StreamOp = "start"
	StreamOpRuntime   StreamOp = "runtime"
)

// StreamError wraps a host-binding failure with the phase it happened in.
// Construct and start failures are fatal; runtime failures are reported
// through the ErrorCallback and capture continues.
type StreamError struct {
	Op  StreamOp
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("audio stream %s failed: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func constructError(err error) error {
	return &StreamError{Op: StreamOpConstruct, Err: err}
}

func startError(err error) error {
	return &StreamError{Op: StreamOpStart, Err: err}
}

func runtimeError(err error) error {
	return &StreamError{Op: StreamOpRuntime, Err: err}
}
