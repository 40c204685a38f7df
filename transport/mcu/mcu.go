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

// Package mcu provides an SD card transport for microcontrollers running
// TinyGo. Any tinygo.org/x/drivers SPI bus works, including machine.SPI0.
//
//	machine.SPI0.Configure(machine.SPIConfig{Frequency: 400_000, Mode: 0})
//	cs := machine.GP17
//	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
//	t, err := mcu.New(machine.SPI0, cs, mcu.WithRateSetter(func(hz uint32) error {
//		return machine.SPI0.Configure(machine.SPIConfig{Frequency: hz, Mode: 0})
//	}))
package mcu

import (
	"errors"
	"fmt"
	"math"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"tinygo.org/x/drivers"
)

// ErrRateFixed is returned by SetClockRate when no rate setter was given.
var ErrRateFixed = errors.New("bus clock rate cannot be changed")

// Pin is a chip-select output. machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// Option configures a Transport.
type Option func(*Transport)

// WithRateSetter installs the function used to reconfigure the bus clock
// after initialization.
func WithRateSetter(set func(hz uint32) error) Option {
	return func(t *Transport) {
		t.setRate = set
	}
}

// Transport implements sdcard.Transport on a drivers.SPI bus. It also
// serves as the device clock, using the runtime's monotonic time.
type Transport struct {
	bus     drivers.SPI
	cs      Pin
	setRate func(hz uint32) error
	start   time.Time
}

// New wraps bus and cs. The bus must already be configured for mode 0 at an
// initialization clock between 100 kHz and 1 MHz.
func New(bus drivers.SPI, cs Pin, opts ...Option) (*Transport, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil SPI bus", sdcard.ErrInvalidParameter)
	}
	if cs == nil {
		return nil, sdcard.ErrNoCsConfigured
	}

	t := &Transport{bus: bus, cs: cs, start: time.Now()}
	for _, opt := range opts {
		opt(t)
	}
	cs.High()
	return t, nil
}

// Exchange shifts one byte each way.
func (t *Transport) Exchange(out byte) (byte, error) {
	in, err := t.bus.Transfer(out)
	if err != nil {
		return 0xFF, fmt.Errorf("SPI transfer failed: %w", err)
	}
	return in, nil
}

// ExchangeBytes moves a buffer with one Tx call.
func (t *Transport) ExchangeBytes(w, r []byte) error {
	if len(w) != len(r) {
		return fmt.Errorf("%w: bulk buffers differ (%d/%d)", sdcard.ErrInvalidParameter, len(w), len(r))
	}
	if err := t.bus.Tx(w, r); err != nil {
		return fmt.Errorf("SPI bulk transfer failed: %w", err)
	}
	return nil
}

// Select drives chip select low.
func (t *Transport) Select() error {
	t.cs.Low()
	return nil
}

// Deselect drives chip select high.
func (t *Transport) Deselect() error {
	t.cs.High()
	return nil
}

// SetClockRate reconfigures the bus through the installed rate setter.
func (t *Transport) SetClockRate(hz int64) error {
	if t.setRate == nil {
		return ErrRateFixed
	}
	if hz <= 0 || hz > math.MaxUint32 {
		return fmt.Errorf("%w: clock rate %d", sdcard.ErrInvalidParameter, hz)
	}
	return t.setRate(uint32(hz))
}

// Millis returns milliseconds since the transport was created.
func (t *Transport) Millis() uint64 {
	return uint64(time.Since(t.start).Milliseconds())
}

// Sleep blocks for d.
func (*Transport) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Close releases chip select. The bus itself belongs to the caller.
func (t *Transport) Close() error {
	t.cs.High()
	return nil
}

// Type returns the transport type
func (*Transport) Type() sdcard.TransportType {
	return sdcard.TransportMCU
}

// IsConnected reports whether a bus is attached. It is safe on a nil
// receiver.
func (t *Transport) IsConnected() bool {
	return t != nil && t.bus != nil
}

// Ensure Transport implements the driver interfaces
var (
	_ sdcard.Transport         = (*Transport)(nil)
	_ sdcard.BulkExchanger     = (*Transport)(nil)
	_ sdcard.ClockRateSetter   = (*Transport)(nil)
	_ sdcard.Clock             = (*Transport)(nil)
	_ sdcard.ConnectionChecker = (*Transport)(nil)
)
