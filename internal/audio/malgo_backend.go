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
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// miniaudio reports 0 for "any" in native data formats
const (
	malgoFallbackSampleRate = 48000
	malgoFallbackChannels   = 2
)

// MalgoBackend implements AudioBackend with miniaudio's WASAPI loopback
// device type, which records exactly what a playback device renders.
type MalgoBackend struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	devices map[string]malgo.DeviceID
	onLog   func(string)
}

// NewMalgoBackend creates a miniaudio backend. onLog, if set, receives
// miniaudio's internal diagnostics.
func NewMalgoBackend(onLog func(string)) *MalgoBackend {
	return &MalgoBackend{
		devices: make(map[string]malgo.DeviceID),
		onLog:   onLog,
	}
}

// Name returns "wasapi"
func (m *MalgoBackend) Name() string {
	return "wasapi"
}

// Initialize creates a miniaudio context restricted to WASAPI, the only
// miniaudio backend with loopback support
func (m *MalgoBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return nil
	}

	ctx, err := malgo.InitContext([]malgo.Backend{malgo.BackendWasapi}, malgo.ContextConfig{}, m.onLog)
	if err != nil {
		return fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	m.ctx = ctx
	return nil
}

// Terminate releases the miniaudio context
func (m *MalgoBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}

	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// DefaultOutputDevice returns the playback device flagged as default
func (m *MalgoBackend) DefaultOutputDevice() (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return Device{}, fmt.Errorf("miniaudio context not initialized")
	}

	infos, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return Device{}, fmt.Errorf("failed to list playback devices: %w", err)
	}

	for _, info := range infos {
		if info.IsDefault == 0 {
			continue
		}
		id := info.ID.String()
		m.devices[id] = info.ID
		return Device{ID: id, Name: info.Name()}, nil
	}

	return Device{}, ErrNoDevice
}

// SupportedOutputConfigs converts the device's native shared-mode formats
func (m *MalgoBackend) SupportedOutputConfigs(device Device) ([]SupportedConfigRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.devices[device.ID]
	if !ok || m.ctx == nil {
		return nil, fmt.Errorf("unknown device %q", device.ID)
	}

	info, err := m.ctx.DeviceInfo(malgo.Playback, id, malgo.Shared)
	if err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	configs := make([]SupportedConfigRange, 0, info.FormatCount)
	for i := 0; i < int(info.FormatCount); i++ {
		f := info.Formats[i]
		rate := int(f.SampleRate)
		if rate == 0 {
			rate = malgoFallbackSampleRate
		}
		channels := int(f.Channels)
		if channels == 0 {
			channels = malgoFallbackChannels
		}
		configs = append(configs, SupportedConfigRange{
			Format:        fromMalgoFormat(f.Format),
			Channels:      channels,
			MinSampleRate: rate,
			MaxSampleRate: rate,
		})
	}
	return configs, nil
}

// OpenLoopbackStream initializes a loopback device on the playback device
func (m *MalgoBackend) OpenLoopbackStream(device Device, config StreamConfig, onData DataCallback, onError ErrorCallback) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil, constructError(fmt.Errorf("miniaudio context not initialized"))
	}
	if config.Format != FormatF32 {
		return nil, constructError(fmt.Errorf("unsupported sample format %s", config.Format))
	}
	id, ok := m.devices[device.ID]
	if !ok {
		return nil, constructError(fmt.Errorf("unknown device %q", device.ID))
	}

	stream := &MalgoStream{deviceID: id}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(config.Channels) //nolint:gosec // G115: channel count is small and positive
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.Capture.DeviceID = stream.deviceID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(bytesToFloat32(input))
		},
		Stop: func() {
			// miniaudio also calls Stop on a deliberate ma_device_stop
			if stream.running.Load() && onError != nil {
				onError(runtimeError(errors.New("loopback device stopped unexpectedly")))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, constructError(fmt.Errorf("failed to init loopback device: %w", err))
	}

	stream.device = dev
	return stream, nil
}

// MalgoStream implements StreamInterface over a miniaudio loopback device
type MalgoStream struct {
	mu       sync.Mutex
	device   *malgo.Device
	deviceID malgo.DeviceID
	running  atomic.Bool
}

// Start starts the loopback device
func (s *MalgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return startError(fmt.Errorf("device is closed"))
	}
	s.running.Store(true)
	if err := s.device.Start(); err != nil {
		s.running.Store(false)
		return startError(err)
	}
	return nil
}

// Stop stops the loopback device
func (s *MalgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil || !s.running.Swap(false) {
		return nil
	}
	return s.device.Stop()
}

// Close uninitializes the device; miniaudio waits for the audio thread to exit
func (s *MalgoStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

// IsActive returns true while the device is started
func (s *MalgoStream) IsActive() bool {
	return s.running.Load()
}

// bytesToFloat32 reinterprets a native-endian f32 capture buffer without copying
func bytesToFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func fromMalgoFormat(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatI16
	case malgo.FormatS24:
		return FormatI24
	case malgo.FormatS32:
		return FormatI32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}
