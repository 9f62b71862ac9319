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
	"math"
	"slices"
	"sync"
	"time"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                sync.Mutex
	initialized       bool
	device            *Device
	configs           []SupportedConfigRange
	streams           map[string]*MockStream
	streamCounter     int
	initError         error
	terminateError    error
	configsError      error
	createStreamError error
	startError        error
	bufferFrames      int
	interval          time.Duration
	generator         func([]float32)
}

// NewMockAudioBackend creates a mock backend with one stereo f32 output device
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		device: &Device{ID: "mock-output-0", Name: "Mock Speakers"},
		configs: []SupportedConfigRange{
			{Format: FormatI16, Channels: 2, MinSampleRate: 8000, MaxSampleRate: 48000},
			{Format: FormatF32, Channels: 2, MinSampleRate: 8000, MaxSampleRate: 48000},
		},
		streams:      make(map[string]*MockStream),
		bufferFrames: 480,
		interval:     10 * time.Millisecond,
	}
}

// SetDevice replaces the default output device; nil simulates a host without one
func (m *MockAudioBackend) SetDevice(device *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = device
}

// SetConfigs replaces the supported output configuration list
func (m *MockAudioBackend) SetConfigs(configs []SupportedConfigRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = configs
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetConfigsError configures the backend to fail the supported config query
func (m *MockAudioBackend) SetConfigsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configsError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetStartError makes streams opened afterwards fail on Start()
func (m *MockAudioBackend) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetDelivery controls the buffer size and cadence of streams opened afterwards.
// A zero interval disables background delivery; use MockStream.Deliver instead.
func (m *MockAudioBackend) SetDelivery(bufferFrames int, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferFrames = bufferFrames
	m.interval = interval
}

// SetAudioDataGenerator sets the function that fills background buffers
func (m *MockAudioBackend) SetAudioDataGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generator = generator
}

// Streams returns every stream opened and not yet closed
func (m *MockAudioBackend) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*MockStream, 0, len(m.streams))
	for _, s := range m.streams {
		result = append(result, s)
	}
	return result
}

// OpenedStreams returns how many streams were ever opened
func (m *MockAudioBackend) OpenedStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCounter
}

// Name returns "mock"
func (m *MockAudioBackend) Name() string {
	return "mock"
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate closes any remaining streams and marks the backend uninitialized
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}
	streams := make([]*MockStream, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	// Release the lock before closing streams, Close re-enters the backend
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Close() // Ignore errors during cleanup
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// DefaultOutputDevice returns the configured device or ErrNoDevice
func (m *MockAudioBackend) DefaultOutputDevice() (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return Device{}, fmt.Errorf("mock audio backend not initialized")
	}
	if m.device == nil {
		return Device{}, ErrNoDevice
	}
	return *m.device, nil
}

// SupportedOutputConfigs returns the configured list
func (m *MockAudioBackend) SupportedOutputConfigs(device Device) ([]SupportedConfigRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.configsError != nil {
		return nil, m.configsError
	}
	if m.device == nil || m.device.ID != device.ID {
		return nil, fmt.Errorf("unknown device %q", device.ID)
	}

	result := make([]SupportedConfigRange, len(m.configs))
	copy(result, m.configs)
	return result, nil
}

// OpenLoopbackStream creates a mock stream that feeds onData once started
func (m *MockAudioBackend) OpenLoopbackStream(device Device, config StreamConfig, onData DataCallback, onError ErrorCallback) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, constructError(fmt.Errorf("mock audio backend not initialized"))
	}
	if m.createStreamError != nil {
		return nil, constructError(m.createStreamError)
	}
	if onData == nil {
		return nil, constructError(errors.New("data callback is required"))
	}
	if !slices.ContainsFunc(m.configs, func(r SupportedConfigRange) bool { return r.Contains(config) }) {
		return nil, constructError(fmt.Errorf("unsupported stream config %s", config))
	}

	streamID := fmt.Sprintf("loopback_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:           streamID,
		backend:      m,
		device:       device,
		config:       config,
		onData:       onData,
		onError:      onError,
		bufferFrames: m.bufferFrames,
		interval:     m.interval,
		generator:    m.generator,
		startError:   m.startError,
		isOpen:       true,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu           sync.Mutex
	id           string
	backend      *MockAudioBackend
	device       Device
	config       StreamConfig
	onData       DataCallback
	onError      ErrorCallback
	bufferFrames int
	interval     time.Duration
	generator    func([]float32)
	isOpen       bool
	isActive     bool
	startError   error
	stopCh       chan struct{}
	done         sync.WaitGroup
	// callbackMu serialises deliveries, the way a host runs one callback at a time
	callbackMu sync.Mutex
	callbacks  int
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// Config returns the configuration the stream was opened with
func (m *MockStream) Config() StreamConfig {
	return m.config
}

// Device returns the device the stream captures from
func (m *MockStream) Device() Device {
	return m.device
}

// Callbacks returns how many buffers have been delivered
func (m *MockStream) Callbacks() int {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	return m.callbacks
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return startError(m.startError)
	}
	if !m.isOpen {
		return startError(fmt.Errorf("stream not open"))
	}
	if m.isActive {
		return startError(fmt.Errorf("stream already active"))
	}

	m.isActive = true
	if m.interval > 0 {
		m.stopCh = make(chan struct{})
		m.done.Add(1)
		go m.simulateLoopback(m.stopCh)
	}
	return nil
}

// Stop halts background delivery and waits for an in-flight buffer to finish
func (m *MockStream) Stop() error {
	m.mu.Lock()
	if !m.isActive {
		m.mu.Unlock()
		return nil
	}
	m.isActive = false
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()

	m.done.Wait()
	// Wait out a synchronous Deliver that raced with Stop
	m.callbackMu.Lock()
	m.callbackMu.Unlock() //nolint:staticcheck // empty critical section is a barrier
	return nil
}

// Close stops the stream and removes it from the backend
func (m *MockStream) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.isOpen {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.isOpen = false
	m.mu.Unlock()

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()
	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// Deliver synchronously hands one buffer to the data callback if the stream is active
func (m *MockStream) Deliver(samples []float32) bool {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	if !m.IsActive() {
		return false
	}
	m.onData(samples)
	m.callbacks++
	return true
}

// EmitError reports a runtime fault through the error callback, e.g. a device disconnect
func (m *MockStream) EmitError(err error) {
	if m.onError != nil {
		m.onError(runtimeError(err))
	}
}

// simulateLoopback runs in background to simulate the host's real-time thread
func (m *MockStream) simulateLoopback(stop <-chan struct{}) {
	defer m.done.Done()

	channels := m.config.Channels
	if channels < 1 {
		channels = 1
	}
	buffer := make([]float32, m.bufferFrames*channels)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * 440 / float64(max(m.config.SampleRate, 1))

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.generator != nil {
				m.generator(buffer)
			} else {
				// Default: 440 Hz tone at -20 dBFS on every channel
				for i := 0; i < len(buffer); i += channels {
					v := float32(0.1 * math.Sin(phase))
					for c := 0; c < channels; c++ {
						buffer[i+c] = v
					}
					phase += step
				}
			}

			m.callbackMu.Lock()
			m.onData(buffer)
			m.callbacks++
			m.callbackMu.Unlock()
		}
	}
}
