// go-sdcard
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sdcard.
//
// go-sdcard is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sdcard is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sdcard; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package sdcard

import "time"

// Clock is the monotonic millisecond time source used for every bounded
// wait. Transports that carry their own clock implement it directly.
type Clock interface {
	Millis() uint64
	Sleep(d time.Duration)
}

type systemClock struct {
	start time.Time
}

func newSystemClock() *systemClock {
	return &systemClock{start: time.Now()}
}

// Millis uses the monotonic reading carried by time.Time.
func (c *systemClock) Millis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

func (*systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
