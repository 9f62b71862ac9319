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
	"sync/atomic"
	"time"
)

// DefaultReportInterval is how often a level line is produced at most
const DefaultReportInterval = time.Second

// reportBuffer bounds how many reports may wait for the reporter
const reportBuffer = 8

// Report is one throttled level observation
type Report struct {
	Amplitude    float64
	Percent      float64
	BarLength    int
	TotalSamples uint64
	At           time.Time
}

// Monitor is the loopback data callback. Process never blocks, locks or
// performs I/O; reports leave through a bounded channel and are dropped
// when the reporter falls behind.
type Monitor struct {
	samples   atomic.Uint64
	callbacks atomic.Uint64
	dropped   atomic.Uint64
	throttle  *Throttle
	reports   chan Report
}

// NewMonitor creates a monitor reporting at most once per interval; a nil
// clock means time.Now
func NewMonitor(interval time.Duration, clock func() time.Time) *Monitor {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Monitor{
		throttle: NewThrottle(interval, clock),
		reports:  make(chan Report, reportBuffer),
	}
}

// Process handles one buffer delivered by the host audio thread
func (m *Monitor) Process(samples []float32) {
	amplitude := RMS(samples)
	total := m.samples.Add(uint64(len(samples)))
	m.callbacks.Add(1)

	at, ok := m.throttle.Allow()
	if !ok {
		return
	}

	percent := Percent(amplitude)
	report := Report{
		Amplitude:    amplitude,
		Percent:      percent,
		BarLength:    BarLength(percent),
		TotalSamples: total,
		At:           at,
	}

	select {
	case m.reports <- report:
	default:
		m.dropped.Add(1)
	}
}

// Reports is the stream of throttled reports consumed by a Reporter
func (m *Monitor) Reports() <-chan Report {
	return m.reports
}

// TotalSamples returns the running sample count
func (m *Monitor) TotalSamples() uint64 {
	return m.samples.Load()
}

// Callbacks returns how many buffers were processed
func (m *Monitor) Callbacks() uint64 {
	return m.callbacks.Load()
}

// Dropped returns how many reports were discarded because the reporter lagged
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}
