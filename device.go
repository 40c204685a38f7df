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
	"errors"
	"fmt"
	"sync"
)

// ErrDeviceClosed is returned by every operation after Close.
var ErrDeviceClosed = errors.New("device closed")

// Device is an SD card driven in SPI mode over a Transport.
//
// Thread Safety: every public method holds one mutex for its whole bus
// transaction, so a Device may be shared between goroutines (for example a
// polling.Monitor and a reader). The Transport must not be used directly
// while the Device owns it.
type Device struct {
	transport Transport
	config    *DeviceConfig
	clock     Clock
	geometry  CardGeometry
	state     CardState
	mu        sync.Mutex
	closed    bool
}

// New creates a Device on transport. A nil transport is accepted so that
// initialization can report ErrNoCsConfigured. A transport that reports it
// is not connected, such as a typed nil *spi.Transport, is rejected with
// ErrInvalidParameter.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport != nil && !connected(transport) {
		return nil, fmt.Errorf("%w: transport %T is not connected", ErrInvalidParameter, transport)
	}

	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	switch {
	case device.config.Clock != nil:
		device.clock = device.config.Clock
	default:
		if c, ok := transportClock(transport); ok {
			device.clock = c
		} else {
			device.clock = newSystemClock()
		}
	}

	return device, nil
}

// State returns the current card state.
func (d *Device) State() CardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Geometry returns the card geometry; the zero value before Ready.
func (d *Device) Geometry() CardGeometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady {
		return CardGeometry{}
	}
	return d.geometry
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

// Close releases the transport. The device cannot be used afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.state = StateUninitialized
	d.geometry = CardGeometry{}

	if d.transport == nil {
		return nil
	}
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// requireReady is called with d.mu held.
func (d *Device) requireReady(op string) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if d.state != StateReady {
		return newCardError(op, ErrNotInitialized, 0, nil)
	}
	return nil
}
