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

package meter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// streamErrorBuffer bounds pending runtime stream errors
const streamErrorBuffer = 4

// Sink receives every report the Reporter emits
type Sink interface {
	Report(r Report) error
}

// StreamErrorSink is implemented by sinks that also want runtime stream errors
type StreamErrorSink interface {
	StreamError(err error) error
}

// ConsoleSink writes one level line per report
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a sink writing to w
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Report writes the formatted level line
func (c *ConsoleSink) Report(r Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, FormatLine(r))
	return err
}

// Printf writes a status line, serialized with level lines
func (c *ConsoleSink) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// Reporter owns all output. It runs on its own goroutine, away from the
// audio thread, and fans reports and stream errors out to sinks.
type Reporter struct {
	reports <-chan Report
	errs    chan error
	sinks   []Sink
	logger  *zap.Logger

	emitted       atomic.Uint64
	droppedErrors atomic.Uint64
}

// NewReporter creates a reporter draining reports into sinks
func NewReporter(reports <-chan Report, logger *zap.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		reports: reports,
		errs:    make(chan error, streamErrorBuffer),
		sinks:   sinks,
		logger:  logger,
	}
}

// OnStreamError queues a runtime stream error for logging. It never blocks
// and is safe to call from the audio thread.
func (r *Reporter) OnStreamError(err error) {
	select {
	case r.errs <- err:
	default:
		r.droppedErrors.Add(1)
	}
}

// Run dispatches until ctx is cancelled, then flushes whatever is queued
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case report := <-r.reports:
			r.dispatch(report)
		case err := <-r.errs:
			r.dispatchError(err)
		}
	}
}

func (r *Reporter) drain() {
	for {
		select {
		case report := <-r.reports:
			r.dispatch(report)
		case err := <-r.errs:
			r.dispatchError(err)
		default:
			return
		}
	}
}

func (r *Reporter) dispatch(report Report) {
	r.emitted.Add(1)

	for _, sink := range r.sinks {
		if err := sink.Report(report); err != nil {
			r.logger.Warn("⚠️ Failed to deliver level report", zap.Error(err))
		}
	}
}

func (r *Reporter) dispatchError(err error) {
	// The stream keeps running; there is no reselection or restart
	r.logger.Error("❌ An error occurred on the audio stream", zap.Error(err))

	for _, sink := range r.sinks {
		es, ok := sink.(StreamErrorSink)
		if !ok {
			continue
		}
		if serr := es.StreamError(err); serr != nil {
			r.logger.Warn("⚠️ Failed to deliver stream error", zap.Error(serr))
		}
	}
}

// Emitted returns how many reports reached the sinks
func (r *Reporter) Emitted() uint64 {
	return r.emitted.Load()
}

// DroppedErrors returns how many stream errors were discarded under load
func (r *Reporter) DroppedErrors() uint64 {
	return r.droppedErrors.Load()
}
