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
	"fmt"
	"time"
)

// Timing holds the bounded waits used by the driver.
type Timing struct {
	// InitTimeout bounds the whole operating-condition loop.
	InitTimeout time.Duration
	// OperatingConditionPollDelay is slept between ACMD41 attempts.
	OperatingConditionPollDelay time.Duration
	// ReadyTimeout bounds the busy wait after a write.
	ReadyTimeout time.Duration
	// DataTokenTimeout bounds the wait for a read data token.
	DataTokenTimeout time.Duration
	// WakeClocks is the number of 0xFF bytes sent with chip select high.
	WakeClocks int
}

// DefaultTiming returns the standard SD SPI timing.
func DefaultTiming() Timing {
	return Timing{
		InitTimeout:                 time.Second,
		OperatingConditionPollDelay: 10 * time.Millisecond,
		ReadyTimeout:                500 * time.Millisecond,
		DataTokenTimeout:            100 * time.Millisecond,
		WakeClocks:                  10,
	}
}

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	Clock  Clock
	Timing Timing
	// FastClockHz, when non-zero, is applied after a successful
	// initialization on transports that implement ClockRateSetter.
	FastClockHz int64
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Timing: DefaultTiming(),
	}
}

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithClock overrides the time source. Without it the transport's own clock
// is used when it has one, otherwise the system clock.
func WithClock(clock Clock) Option {
	return func(d *Device) error {
		if clock == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidParameter)
		}
		d.config.Clock = clock
		return nil
	}
}

// WithTiming replaces all timing parameters.
func WithTiming(timing Timing) Option {
	return func(d *Device) error {
		if timing.WakeClocks < 10 {
			return fmt.Errorf("%w: wake clocks %d < 10", ErrInvalidParameter, timing.WakeClocks)
		}
		if timing.InitTimeout < 0 || timing.ReadyTimeout < 0 || timing.DataTokenTimeout < 0 {
			return fmt.Errorf("%w: negative timeout", ErrInvalidParameter)
		}
		d.config.Timing = timing
		return nil
	}
}

// WithInitTimeout sets the operating-condition loop bound.
func WithInitTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: init timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.Timing.InitTimeout = timeout
		return nil
	}
}

// WithDataTimeout sets the read data-token wait.
func WithDataTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: data timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.Timing.DataTokenTimeout = timeout
		return nil
	}
}

// WithFastClock requests a faster bus clock once the card is ready.
func WithFastClock(hz int64) Option {
	return func(d *Device) error {
		if hz <= 0 {
			return fmt.Errorf("%w: clock rate %d", ErrInvalidParameter, hz)
		}
		d.config.FastClockHz = hz
		return nil
	}
}
