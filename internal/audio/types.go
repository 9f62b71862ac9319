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

import "fmt"

// SampleFormat identifies the encoding of a single sample
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatI16
	FormatI24
	FormatI32
	FormatF32
	FormatF64
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatI16:
		return "i16"
	case FormatI24:
		return "i24"
	case FormatI32:
		return "i32"
	case FormatF32:
		return "f32"
	case FormatF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Device identifies a playback device known to a backend
type Device struct {
	// ID is backend-specific and canonical
	ID string

	// Name is human-readable and not canonical
	Name string
}

func (d Device) String() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// StreamConfig is the configuration a stream is opened with. It is chosen
// once at startup and never changes afterwards.
type StreamConfig struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("{format: %s, channels: %d, sample_rate: %d}", c.Format, c.Channels, c.SampleRate)
}

// SupportedConfigRange is one entry of a device's supported configuration list
type SupportedConfigRange struct {
	Format        SampleFormat
	Channels      int
	MinSampleRate int
	MaxSampleRate int
}

// WithMaxSampleRate picks the highest sample rate the range allows
func (r SupportedConfigRange) WithMaxSampleRate() StreamConfig {
	return StreamConfig{
		Format:     r.Format,
		Channels:   r.Channels,
		SampleRate: r.MaxSampleRate,
	}
}

// Contains reports whether the concrete config falls inside the range
func (r SupportedConfigRange) Contains(c StreamConfig) bool {
	return c.Format == r.Format &&
		c.Channels == r.Channels &&
		c.SampleRate >= r.MinSampleRate &&
		c.SampleRate <= r.MaxSampleRate
}
