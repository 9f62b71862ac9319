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
	"fmt"
	"runtime"
	"strings"
)

// Backend names accepted by NewBackend
const (
	BackendAuto      = "auto"
	BackendWASAPI    = "wasapi"
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
	BackendMock      = "mock"
)

// BackendOptions carries backend-specific settings
type BackendOptions struct {
	// AppName is announced to sound servers that display clients
	AppName string

	// LoopbackDevice overrides PortAudio's loopback input auto-detection
	LoopbackDevice string

	// OnLog receives host library diagnostics
	OnLog func(string)
}

// NewBackend builds the named backend. "auto" picks the platform's native
// loopback path: WASAPI on Windows, PulseAudio on Linux, PortAudio elsewhere.
func NewBackend(name string, opts BackendOptions) (AudioBackend, error) {
	switch strings.ToLower(name) {
	case "", BackendAuto:
		return NewBackend(DefaultBackendFor(runtime.GOOS), opts)
	case BackendWASAPI:
		return NewMalgoBackend(opts.OnLog), nil
	case BackendPulse:
		return NewPulseBackend(opts.AppName), nil
	case BackendPortAudio:
		return NewPortAudioBackend(opts.LoopbackDevice), nil
	case BackendMock:
		return NewMockAudioBackend(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}

// DefaultBackendFor returns the backend "auto" resolves to on goos
func DefaultBackendFor(goos string) string {
	switch goos {
	case "windows":
		return BackendWASAPI
	case "linux":
		return BackendPulse
	default:
		return BackendPortAudio
	}
}
