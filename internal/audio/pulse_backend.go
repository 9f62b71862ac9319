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
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

const pulseWatchInterval = 250 * time.Millisecond

// PulseBackend implements AudioBackend by recording the monitor source of
// the default PulseAudio (or PipeWire-pulse) sink.
type PulseBackend struct {
	mu      sync.Mutex
	appName string
	client  *pulse.Client
	sink    *pulse.Sink
}

// NewPulseBackend creates a PulseAudio backend announcing itself as appName
func NewPulseBackend(appName string) *PulseBackend {
	return &PulseBackend{appName: appName}
}

// Name returns "pulse"
func (p *PulseBackend) Name() string {
	return "pulse"
}

// Initialize connects to the sound server
func (p *PulseBackend) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName(p.appName))
	if err != nil {
		return fmt.Errorf("failed to connect to PulseAudio: %w", err)
	}

	p.client = client
	return nil
}

// Terminate disconnects from the sound server
func (p *PulseBackend) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Close()
		p.client = nil
		p.sink = nil
	}
	return nil
}

// DefaultOutputDevice returns the server's default sink
func (p *PulseBackend) DefaultOutputDevice() (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return Device{}, fmt.Errorf("PulseAudio client not initialized")
	}

	sink, err := p.client.DefaultSink()
	device, err := sinkDevice(sink, err)
	if err != nil {
		return Device{}, err
	}

	p.sink = sink
	return device, nil
}

// sinkDevice maps a default-sink lookup; only a missing sink is ErrNoDevice
func sinkDevice(sink *pulse.Sink, err error) (Device, error) {
	if err != nil {
		return Device{}, fmt.Errorf("failed to query default sink: %w", err)
	}
	if sink == nil {
		return Device{}, ErrNoDevice
	}
	return Device{ID: sink.ID(), Name: sink.Name()}, nil
}

// SupportedOutputConfigs reports float32 at the sink's rate. The server
// converts the monitor to any format, so the list is stereo then mono.
func (p *PulseBackend) SupportedOutputConfigs(device Device) ([]SupportedConfigRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil || p.sink.ID() != device.ID {
		return nil, fmt.Errorf("unknown device %q", device.ID)
	}

	return monitorConfigs(len(p.sink.Channels()), p.sink.SampleRate()), nil
}

// monitorConfigs lists float32 stereo (when the sink has two or more
// channels) then mono, both at the sink's rate
func monitorConfigs(sinkChannels, rate int) []SupportedConfigRange {
	configs := make([]SupportedConfigRange, 0, 2)
	if sinkChannels >= 2 {
		configs = append(configs, SupportedConfigRange{Format: FormatF32, Channels: 2, MinSampleRate: rate, MaxSampleRate: rate})
	}
	return append(configs, SupportedConfigRange{Format: FormatF32, Channels: 1, MinSampleRate: rate, MaxSampleRate: rate})
}

// OpenLoopbackStream creates a record stream on the sink's monitor
func (p *PulseBackend) OpenLoopbackStream(device Device, config StreamConfig, onData DataCallback, onError ErrorCallback) (StreamInterface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil, constructError(fmt.Errorf("PulseAudio client not initialized"))
	}
	if p.sink == nil || p.sink.ID() != device.ID {
		return nil, constructError(fmt.Errorf("unknown device %q", device.ID))
	}
	if config.Format != FormatF32 {
		return nil, constructError(fmt.Errorf("unsupported sample format %s", config.Format))
	}

	layout := pulse.RecordStereo
	if config.Channels == 1 {
		layout = pulse.RecordMono
	}

	writer := pulse.Float32Writer(func(samples []float32) (int, error) {
		onData(samples)
		return len(samples), nil
	})

	record, err := p.client.NewRecord(writer,
		pulse.RecordMonitor(p.sink),
		pulse.RecordSampleRate(config.SampleRate),
		layout,
		pulse.RecordMediaName("loopback level meter"),
	)
	if err != nil {
		return nil, constructError(fmt.Errorf("failed to create monitor record stream: %w", err))
	}

	return &PulseStream{record: record, onError: onError}, nil
}

// PulseStream implements StreamInterface over a PulseAudio record stream
type PulseStream struct {
	mu      sync.Mutex
	record  *pulse.RecordStream
	onError ErrorCallback
	active  bool
	stopCh  chan struct{}
	watcher sync.WaitGroup
}

// Start starts recording and watches for the server ending the stream
func (s *PulseStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return startError(fmt.Errorf("stream is closed"))
	}
	if s.active {
		return startError(fmt.Errorf("stream already active"))
	}

	s.record.Start()
	s.active = true
	s.stopCh = make(chan struct{})
	s.watcher.Add(1)
	go s.watch(s.stopCh)
	return nil
}

// watch turns a server-side stream end (sink removed, server gone) into a runtime error
func (s *PulseStream) watch(stop <-chan struct{}) {
	defer s.watcher.Done()

	ticker := time.NewTicker(pulseWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.record.Running() {
				continue
			}
			// Stop closes stop before pausing the record stream
			select {
			case <-stop:
				return
			default:
			}
			if s.onError != nil {
				err := s.record.Error()
				if err == nil {
					err = fmt.Errorf("record stream ended by server")
				}
				s.onError(runtimeError(err))
			}
			return
		}
	}
}

// Stop pauses recording
func (s *PulseStream) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	close(s.stopCh)
	s.record.Stop()
	s.mu.Unlock()

	s.watcher.Wait()
	return nil
}

// Close stops and releases the record stream
func (s *PulseStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record != nil {
		s.record.Close()
		s.record = nil
	}
	return nil
}

// IsActive returns true while recording
func (s *PulseStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
