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

// BulkExchanger is implemented by transports that can move a buffer in one
// bus transaction. Data blocks and register reads use it when present; the
// result must be identical to calling Exchange once per byte.
type BulkExchanger interface {
	// ExchangeBytes clocks out w and stores the bytes clocked in into r.
	// len(r) must equal len(w).
	ExchangeBytes(w, r []byte) error
}

// ClockRateSetter is implemented by transports whose bus clock can change
// after the card is initialized.
type ClockRateSetter interface {
	SetClockRate(hz int64) error
}

// ConnectionChecker is implemented by transports that can report whether
// their bus is open. IsConnected must be safe to call on a nil receiver.
type ConnectionChecker interface {
	IsConnected() bool
}

// connected reports false for transports that say their bus is not open,
// which includes typed nil pointers of the shipped transports.
func connected(t Transport) bool {
	c, ok := t.(ConnectionChecker)
	return !ok || c.IsConnected()
}

// transportClock returns the transport's own clock when it has one.
func transportClock(t Transport) (Clock, bool) {
	c, ok := t.(Clock)
	return c, ok
}

func (d *Device) bulkExchanger() (BulkExchanger, bool) {
	b, ok := d.transport.(BulkExchanger)
	return b, ok
}
