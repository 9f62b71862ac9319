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

// Package meter turns loopback buffers into throttled level reports.
// Monitor.Process is the only code that runs on the host's real-time
// thread; everything that formats or writes lives in Reporter.
package meter

import (
	"fmt"
	"math"
	"strings"
)

const (
	// BarWidth is the fixed width of the rendered bar field
	BarWidth = 20

	// BarGlyph fills one bar cell
	BarGlyph = "█"

	// percentPerCell is how much level one bar cell represents
	percentPerCell = 100.0 / BarWidth
)

// bars holds every possible bar so rendering never allocates
var bars = func() [BarWidth + 1]string {
	var b [BarWidth + 1]string
	for i := range b {
		b[i] = strings.Repeat(BarGlyph, i)
	}
	return b
}()

// RMS returns the root-mean-square of the buffer, or 0 for an empty buffer
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Percent converts an amplitude to a level in [0, 100]. Clipped input
// (amplitude > 1) reads as 100.
func Percent(amplitude float64) float64 {
	p := amplitude * 100
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// BarLength returns the number of filled cells for a level, in [0, BarWidth]
func BarLength(percent float64) int {
	if math.IsNaN(percent) || percent < 0 {
		return 0
	}
	n := int(math.Floor(math.Min(percent, 100) / percentPerCell))
	return min(n, BarWidth)
}

// RenderBar returns length filled cells, clamped to [0, BarWidth]
func RenderBar(length int) string {
	return bars[max(0, min(length, BarWidth))]
}

// FormatLine renders a report as `<percent>% |<bar>| <total samples>`
func FormatLine(r Report) string {
	return fmt.Sprintf("%6.2f%% |%-*s| %d", r.Percent, BarWidth, RenderBar(r.BarLength), r.TotalSamples)
}
