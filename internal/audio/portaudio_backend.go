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
	"slices"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// standardSampleRates are probed in ascending order when listing configs
var standardSampleRates = []float64{22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

// loopbackHints match input devices that expose what an output device plays:
// PulseAudio/PipeWire monitors, Windows Stereo Mix and virtual loopback drivers.
var loopbackHints = []string{"monitor", "loopback", "stereo mix", "what u hear", "blackhole", "soundflower"}

// PortAudioBackend implements AudioBackend using the real PortAudio library.
// PortAudio has no native loopback, so capture is opened on an input device
// that mirrors the default output (see loopbackHints).
type PortAudioBackend struct {
	initialized    bool
	loopbackDevice string
}

// NewPortAudioBackend creates a new PortAudio backend. loopbackDevice, if
// set, names the input device to capture from instead of auto-detection.
func NewPortAudioBackend(loopbackDevice string) *PortAudioBackend {
	return &PortAudioBackend{loopbackDevice: loopbackDevice}
}

// Name returns "portaudio"
func (p *PortAudioBackend) Name() string {
	return "portaudio"
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// DefaultOutputDevice returns the host API's default output device
func (p *PortAudioBackend) DefaultOutputDevice() (Device, error) {
	if !p.initialized {
		return Device{}, fmt.Errorf("PortAudio not initialized")
	}

	info, err := portaudio.DefaultOutputDevice()
	if err != nil || info == nil {
		return Device{}, ErrNoDevice
	}

	return Device{ID: info.Name, Name: info.Name}, nil
}

// SupportedOutputConfigs probes the standard sample rates for float32
// capture on the input device that mirrors the output, at that input's full
// channel count. Each run of adjacent supported rates becomes one range,
// highest run first.
func (p *PortAudioBackend) SupportedOutputConfigs(device Device) ([]SupportedConfigRange, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	input, err := p.findLoopbackInput(device)
	if err != nil {
		return nil, err
	}

	configs := rateRanges(standardSampleRates, input.MaxInputChannels, func(rate float64) bool {
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   input,
				Channels: input.MaxInputChannels,
				Latency:  input.DefaultLowInputLatency,
			},
			SampleRate: rate,
		}
		return portaudio.IsFormatSupported(params, func(in []float32) {}) == nil
	})

	if len(configs) == 0 {
		// Fall back to what the device reports as its native rate
		rate := int(input.DefaultSampleRate)
		configs = append(configs, SupportedConfigRange{
			Format:        FormatF32,
			Channels:      input.MaxInputChannels,
			MinSampleRate: rate,
			MaxSampleRate: rate,
		})
	}
	return configs, nil
}

// rateRanges groups the rates accepted by supported into ranges of
// neighbouring entries of rates, which must be ascending. A rejected rate
// splits the range, so Contains never claims a rate that failed the probe.
func rateRanges(rates []float64, channels int, supported func(float64) bool) []SupportedConfigRange {
	var ranges []SupportedConfigRange
	open := false
	for _, rate := range rates {
		if !supported(rate) {
			open = false
			continue
		}
		if open {
			ranges[len(ranges)-1].MaxSampleRate = int(rate)
			continue
		}
		ranges = append(ranges, SupportedConfigRange{
			Format:        FormatF32,
			Channels:      channels,
			MinSampleRate: int(rate),
			MaxSampleRate: int(rate),
		})
		open = true
	}
	slices.Reverse(ranges)
	return ranges
}

// checkInputChannels rejects a channel count the input device cannot deliver
func checkInputChannels(name string, want, max int) error {
	if want < 1 || want > max {
		return fmt.Errorf("%q cannot capture %d channels (max %d)", name, want, max)
	}
	return nil
}

// OpenLoopbackStream opens a callback-driven input stream on the loopback input device
func (p *PortAudioBackend) OpenLoopbackStream(device Device, config StreamConfig, onData DataCallback, onError ErrorCallback) (StreamInterface, error) {
	if !p.initialized {
		return nil, constructError(fmt.Errorf("PortAudio not initialized"))
	}
	if config.Format != FormatF32 {
		return nil, constructError(fmt.Errorf("unsupported sample format %s", config.Format))
	}

	input, err := p.findLoopbackInput(device)
	if err != nil {
		return nil, constructError(err)
	}

	if err := checkInputChannels(input.Name, config.Channels, input.MaxInputChannels); err != nil {
		return nil, constructError(err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input,
			Channels: config.Channels,
			Latency:  input.DefaultLowInputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	callback := func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 && onError != nil {
			onError(runtimeError(errors.New("input overflow")))
		}
		onData(in)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, constructError(fmt.Errorf("failed to open loopback stream on %q: %w", input.Name, err))
	}

	return &PortAudioStream{stream: stream}, nil
}

func (p *PortAudioBackend) findDevice(name string, accept func(*portaudio.DeviceInfo) bool) (*portaudio.DeviceInfo, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && accept(d) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q not found", name)
}

// findLoopbackInput prefers the configured device, then a loopback-looking
// input whose name mentions the output device, then any loopback-looking input.
func (p *PortAudioBackend) findLoopbackInput(output Device) (*portaudio.DeviceInfo, error) {
	isInput := func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 }

	if p.loopbackDevice != "" {
		return p.findDevice(p.loopbackDevice, isInput)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var fallback *portaudio.DeviceInfo
	outputName := strings.ToLower(output.Name)
	for _, d := range devices {
		if !isInput(d) || !looksLikeLoopback(d.Name) {
			continue
		}
		if outputName != "" && strings.Contains(strings.ToLower(d.Name), outputName) {
			return d, nil
		}
		if fallback == nil {
			fallback = d
		}
	}

	if fallback == nil {
		return nil, fmt.Errorf("no loopback input device mirrors %q; set loopback_device", output.Name)
	}
	return fallback, nil
}

func looksLikeLoopback(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range loopbackHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	active bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return startError(fmt.Errorf("stream is nil"))
	}
	if err := p.stream.Start(); err != nil {
		return startError(err)
	}
	p.active = true
	return nil
}

// Stop stops the audio stream; PortAudio waits for the pending callback to return
func (p *PortAudioStream) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if !p.active {
		return nil
	}
	p.active = false
	return p.stream.Stop()
}

// Close stops and closes the audio stream
func (p *PortAudioStream) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	return err
}

// IsActive returns true if the stream has been started and not stopped
func (p *PortAudioStream) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
