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

// SelectLoopbackConfig picks the default output device and the first
// supported configuration that is 32-bit float with at least one channel,
// opened at that configuration's maximum sample rate.
func SelectLoopbackConfig(backend AudioBackend) (Device, StreamConfig, error) {
	device, err := backend.DefaultOutputDevice()
	if err != nil {
		return Device{}, StreamConfig{}, err
	}

	configs, err := backend.SupportedOutputConfigs(device)
	if err != nil {
		return Device{}, StreamConfig{}, fmt.Errorf("failed to query output configs of %s: %w", device, err)
	}

	for _, c := range configs {
		if c.Format == FormatF32 && c.Channels >= 1 {
			return device, c.WithMaxSampleRate(), nil
		}
	}

	return Device{}, StreamConfig{}, ErrNoSupportedFormat
}
