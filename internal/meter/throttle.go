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

// Throttle admits at most one event per interval without locking. The
// window is measured from the previously admitted event; the first window
// starts when the throttle is created.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	base     time.Time
	// last is the admitted instant as nanoseconds since base
	last atomic.Int64
}

// NewThrottle creates a throttle; a nil clock means time.Now
func NewThrottle(interval time.Duration, clock func() time.Time) *Throttle {
	if clock == nil {
		clock = time.Now
	}
	return &Throttle{
		interval: interval,
		now:      clock,
		base:     clock(),
	}
}

// Allow reports whether an event may fire now. Of several concurrent
// callers in the same window exactly one wins.
func (t *Throttle) Allow() (time.Time, bool) {
	now := t.now()
	elapsed := int64(now.Sub(t.base))

	for {
		last := t.last.Load()
		if elapsed-last < int64(t.interval) {
			return now, false
		}
		if t.last.CompareAndSwap(last, elapsed) {
			return now, true
		}
	}
}

// Interval returns the minimum spacing between admitted events
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
