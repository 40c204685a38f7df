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

import "fmt"

// CardState is the driver's view of the card lifecycle.
type CardState int

const (
	// StateUninitialized is the state at construction and after Close or Reset.
	StateUninitialized CardState = iota
	// StateInitializing is held while the initialization sequence runs.
	StateInitializing
	// StateReady means the address mode is known and the block length is 512.
	StateReady
	// StateFailed means the last initialization attempt failed.
	StateFailed
	// StateRemoved means a presence probe failed while the card was ready.
	StateRemoved
)

func (s CardState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("CardState(%d)", int(s))
	}
}
