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
	"math"
	"math/rand"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func abs64(x float64) float64 {
	return math.Abs(x)
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected float64
		epsilon  float64
	}{
		{
			name:     "empty buffer",
			input:    []float32{},
			expected: 0.0,
			epsilon:  0,
		},
		{
			name:     "nil buffer",
			input:    nil,
			expected: 0.0,
			epsilon:  0,
		},
		{
			name:     "zero samples",
			input:    []float32{0.0, 0.0, 0.0, 0.0},
			expected: 0.0,
			epsilon:  0.000001,
		},
		{
			name:     "alternating half scale",
			input:    []float32{0.5, -0.5, 0.5, -0.5},
			expected: 0.5,
			epsilon:  0.000001,
		},
		{
			name:     "single negative sample",
			input:    []float32{-1.0},
			expected: 1.0,
			epsilon:  0.000001,
		},
		{
			name:     "mixed samples",
			input:    []float32{0.5, -0.5, 0.3, -0.3},
			expected: 0.412, // sqrt(0.68/4)
			epsilon:  0.001,
		},
		{
			name:     "clipping above full scale",
			input:    []float32{2.0, -2.0},
			expected: 2.0,
			epsilon:  0.000001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RMS(tt.input)

			if abs64(result-tt.expected) > tt.epsilon {
				t.Errorf("RMS() = %f, want %f (±%f)", result, tt.expected, tt.epsilon)
			}
		})
	}
}

// TestRMSBounds checks 0 <= RMS <= max|sample| on random buffers
func TestRMSBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		buf := make([]float32, 1+rng.Intn(2048))
		var peak float64
		for j := range buf {
			buf[j] = float32(rng.Float64()*2 - 1)
			peak = math.Max(peak, math.Abs(float64(buf[j])))
		}

		rms := RMS(buf)
		if rms < 0 || rms > peak+1e-9 {
			t.Fatalf("RMS %f outside [0, %f] for buffer of %d samples", rms, peak, len(buf))
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		amplitude float64
		expected  float64
	}{
		{0, 0},
		{0.5, 50},
		{1.0, 100},
		{1.7, 100},
		{-0.2, 0},
		{math.NaN(), 0},
		{math.Inf(1), 100},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, Percent(tt.amplitude), 1e-9, "Percent(%v)", tt.amplitude)
	}
}

func TestBarLength(t *testing.T) {
	tests := []struct {
		percent  float64
		expected int
	}{
		{0, 0},
		{4.99, 0},
		{5, 1},
		{50, 10},
		{99.99, 19},
		{100, 20},
		{250, 20},
		{-3, 0},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BarLength(tt.percent), "BarLength(%v)", tt.percent)
	}

	for p := -10.0; p <= 200; p += 0.25 {
		n := BarLength(p)
		if n < 0 || n > BarWidth {
			t.Fatalf("BarLength(%v) = %d outside [0, %d]", p, n, BarWidth)
		}
	}
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "", RenderBar(0))
	assert.Equal(t, 10, utf8.RuneCountInString(RenderBar(10)))
	assert.Equal(t, BarWidth, utf8.RuneCountInString(RenderBar(BarWidth)))
	assert.Equal(t, BarWidth, utf8.RuneCountInString(RenderBar(BarWidth+5)), "bar never overflows the field")
	assert.Equal(t, "", RenderBar(-1))
}

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		total    uint64
		expected string
	}{
		{
			name:     "half scale",
			samples:  []float32{0.5, -0.5, 0.5, -0.5},
			total:    4,
			expected: " 50.00% |██████████          | 4",
		},
		{
			name:     "silence",
			samples:  []float32{},
			total:    0,
			expected: "  0.00% |                    | 0",
		},
		{
			name:     "clipping",
			samples:  []float32{1, 1, 1, 1, 1, 1, 1, 1},
			total:    96000,
			expected: "100.00% |████████████████████| 96000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percent := Percent(RMS(tt.samples))
			line := FormatLine(Report{Percent: percent, BarLength: BarLength(percent), TotalSamples: tt.total})
			assert.Equal(t, tt.expected, line)
		})
	}
}
