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

// AudioBackend abstracts the host audio subsystem used for loopback capture.
// Implementations wrap a platform library; MockAudioBackend serves tests.
type AudioBackend interface {
	// Name identifies the backend in logs and startup output
	Name() string

	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// DefaultOutputDevice returns the default playback device, or ErrNoDevice
	DefaultOutputDevice() (Device, error)

	// SupportedOutputConfigs lists the output configurations the device supports
	SupportedOutputConfigs(device Device) ([]SupportedConfigRange, error)

	// OpenLoopbackStream builds a capture stream fed by what the device plays.
	// onData runs on the host's real-time thread; onError receives runtime faults.
	OpenLoopbackStream(device Device, config StreamConfig, onData DataCallback, onError ErrorCallback) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources. No DataCallback
	// invocation is in flight or will start once Close returns.
	Close() error

	// IsActive returns true if the stream is currently delivering buffers
	IsActive() bool
}

// DataCallback receives one buffer of interleaved float32 samples. The slice
// is owned by the backend and is only valid for the duration of the call.
type DataCallback func(samples []float32)

// ErrorCallback receives stream faults that occur after Start. It may be
// called from the real-time thread and must not block.
type ErrorCallback func(err error)
