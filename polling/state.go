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

package polling

import (
	"fmt"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// PresenceState is what the monitor last concluded about the slot.
type PresenceState int

const (
	PresenceUnknown PresenceState = iota
	PresenceInserted
	PresenceRemoved
)

func (s PresenceState) String() string {
	switch s {
	case PresenceUnknown:
		return "unknown"
	case PresenceInserted:
		return "inserted"
	case PresenceRemoved:
		return "removed"
	default:
		return fmt.Sprintf("PresenceState(%d)", int(s))
	}
}

// Status is a snapshot of the monitor's view of the card.
type Status struct {
	LastChange time.Time
	Geometry   sdcard.CardGeometry
	Insertions int
	Removals   int
	State      PresenceState
}

func (s *Status) toInserted(geometry sdcard.CardGeometry, now time.Time) {
	s.State = PresenceInserted
	s.Geometry = geometry
	s.LastChange = now
	s.Insertions++
}

func (s *Status) toRemoved(now time.Time) {
	s.State = PresenceRemoved
	s.Geometry = sdcard.CardGeometry{}
	s.LastChange = now
	s.Removals++
}
