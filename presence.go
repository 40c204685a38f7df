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

import (
	"context"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// IsPresent probes the card with CMD58 and reports whether it answered
// ready. A failed probe on a ready card moves the state to StateRemoved,
// after which block I/O returns ErrNotInitialized until the card is
// initialized again.
func (d *Device) IsPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.transport == nil {
		return false
	}

	r, err := d.command(context.Background(), "presence", frame.CmdReadOCR, 0)
	present := err == nil && r == frame.R1Ready
	if !present && d.state == StateReady {
		debugf("card removed (R1 0x%02X, err %v)", r, err)
		d.state = StateRemoved
	}
	return present
}
