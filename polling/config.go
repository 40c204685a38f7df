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

// Package polling watches an SD card slot for insertion and removal.
package polling

import "time"

// DefaultPollInterval is how often the monitor probes the card.
const DefaultPollInterval = 500 * time.Millisecond

// Config holds monitor settings.
type Config struct {
	// PollInterval is the delay between presence probes.
	PollInterval time.Duration
	// AutoReinitialize re-runs card initialization on every tick while
	// no ready card is present.
	AutoReinitialize bool
}

// DefaultConfig returns a Config that probes every DefaultPollInterval
// and leaves reinitialization to the caller.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: DefaultPollInterval,
	}
}

func (c *Config) interval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}
