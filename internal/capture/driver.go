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

// Package capture drives one loopback capture session from device
// selection to release.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-loopback-go/internal/audio"
	"github.com/loqalabs/loqa-loopback-go/internal/meter"
)

// State of a capture session. Stopped is terminal.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrAlreadyRun is returned when Run is called a second time
var ErrAlreadyRun = errors.New("capture session already ran")

// InputError reports a failure reading the stop signal from stdin
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("failed to read stop signal: %v", e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Lifecycle is implemented by sinks that want stream start and stop events
type Lifecycle interface {
	StreamStarted(device audio.Device, config audio.StreamConfig) error
	StreamStopped() error
}

// Options configures a Driver. Only Backend is required.
type Options struct {
	Backend        audio.AudioBackend
	ReportInterval time.Duration
	Clock          func() time.Time

	// Stdin supplies the stop line; nil disables it
	Stdin io.Reader
	// Stdout receives the banner and level lines; defaults to os.Stdout
	Stdout io.Writer
	// Quit is an additional stop signal, closed by the TUI
	Quit <-chan struct{}

	Sinks  []meter.Sink
	Logger *zap.Logger
}

// Summary describes a finished session
type Summary struct {
	Device         audio.Device
	Config         audio.StreamConfig
	TotalSamples   uint64
	Callbacks      uint64
	Reports        uint64
	DroppedReports uint64
	DroppedErrors  uint64
	StopReason     string
	Duration       time.Duration
}

// Driver runs a single Idle → Capturing → Stopped session
type Driver struct {
	opts   Options
	logger *zap.Logger
	state  atomic.Int32
	ran    atomic.Bool
}

func NewDriver(opts Options) *Driver {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{opts: opts, logger: logger}
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

// Run captures until stdin yields a line or EOF, ctx is cancelled, or Quit
// is closed. Startup failures are returned without retry. The stream is
// always closed before Run returns, and no callback runs after that.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	if !d.ran.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRun
	}
	defer d.state.Store(int32(StateStopped))

	backend := d.opts.Backend
	if backend == nil {
		return Summary{}, errors.New("no audio backend configured")
	}

	if err := backend.Initialize(); err != nil {
		return Summary{}, fmt.Errorf("failed to initialize %s audio backend: %w", backend.Name(), err)
	}
	defer func() {
		if err := backend.Terminate(); err != nil {
			d.logger.Warn("⚠️ Failed to terminate audio backend", zap.String("backend", backend.Name()), zap.Error(err))
		}
	}()

	device, config, err := audio.SelectLoopbackConfig(backend)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Device: device, Config: config}

	console := meter.NewConsoleSink(d.opts.Stdout)
	console.Printf("Capturing from device: %s\n", device.Name)
	console.Printf("Using config: %s\n", config)
	d.logger.Info("🎤 Selected loopback device",
		zap.String("backend", backend.Name()),
		zap.String("device_id", device.ID),
		zap.String("device", device.Name),
		zap.Stringer("config", config))

	monitor := meter.NewMonitor(d.opts.ReportInterval, d.opts.Clock)
	sinks := append([]meter.Sink{console}, d.opts.Sinks...)
	reporter := meter.NewReporter(monitor.Reports(), d.logger, sinks...)

	stream, err := backend.OpenLoopbackStream(device, config, monitor.Process, reporter.OnStreamError)
	if err != nil {
		return summary, err
	}

	reporterCtx, stopReporter := context.WithCancel(context.Background())
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(reporterCtx)
	}()

	started := d.opts.Clock()
	if err := stream.Start(); err != nil {
		d.release(stream)
		stopReporter()
		<-reporterDone
		return summary, err
	}
	d.state.Store(int32(StateCapturing))

	for _, sink := range d.opts.Sinks {
		if lc, ok := sink.(Lifecycle); ok {
			if err := lc.StreamStarted(device, config); err != nil {
				d.logger.Warn("⚠️ Failed to announce stream start", zap.Error(err))
			}
		}
	}

	console.Printf("Audio capture started. Press Enter to stop.\n")
	d.logger.Info("▶️ Audio capture started")

	reason, waitErr := d.wait(ctx)
	summary.StopReason = reason

	d.release(stream)
	d.state.Store(int32(StateStopped))

	// queued reports print before the status line
	stopReporter()
	<-reporterDone
	console.Printf("Stopping audio capture...\n")

	for _, sink := range d.opts.Sinks {
		if lc, ok := sink.(Lifecycle); ok {
			if err := lc.StreamStopped(); err != nil {
				d.logger.Warn("⚠️ Failed to announce stream stop", zap.Error(err))
			}
		}
	}

	summary.TotalSamples = monitor.TotalSamples()
	summary.Callbacks = monitor.Callbacks()
	summary.Reports = reporter.Emitted()
	summary.DroppedReports = monitor.Dropped()
	summary.DroppedErrors = reporter.DroppedErrors()
	summary.Duration = d.opts.Clock().Sub(started)
	d.logSummary(summary)

	console.Printf("Stopped.\n")
	return summary, waitErr
}

// wait blocks until the first stop signal arrives
func (d *Driver) wait(ctx context.Context) (string, error) {
	var input <-chan error
	if d.opts.Stdin != nil {
		input = readStopLine(d.opts.Stdin)
	}

	select {
	case err := <-input:
		if err != nil {
			return "input error", err
		}
		return "stdin", nil
	case <-d.opts.Quit:
		return "quit", nil
	case <-ctx.Done():
		return "signal", nil
	}
}

// readStopLine reads one line. EOF counts as a stop request. The reader
// goroutine may outlive the session if another signal wins.
func readStopLine(r io.Reader) <-chan error {
	result := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			result <- &InputError{Err: err}
			return
		}
		result <- nil
	}()
	return result
}

func (d *Driver) release(stream audio.StreamInterface) {
	if stream.IsActive() {
		if err := stream.Stop(); err != nil {
			d.logger.Warn("⚠️ Failed to stop audio stream", zap.Error(err))
		}
	}
	if err := stream.Close(); err != nil {
		d.logger.Warn("⚠️ Failed to close audio stream", zap.Error(err))
	}
}

func (d *Driver) logSummary(s Summary) {
	d.logger.Info("📊 Capture finished",
		zap.String("device", s.Device.Name),
		zap.String("reason", s.StopReason),
		zap.Uint64("total_samples", s.TotalSamples),
		zap.Uint64("callbacks", s.Callbacks),
		zap.Uint64("reports", s.Reports),
		zap.Duration("duration", s.Duration))

	if s.DroppedReports > 0 || s.DroppedErrors > 0 {
		d.logger.Warn("⚠️ Reporter fell behind the audio thread",
			zap.Uint64("dropped_reports", s.DroppedReports),
			zap.Uint64("dropped_errors", s.DroppedErrors))
	}
}
