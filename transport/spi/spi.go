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

// Package spi provides a Linux SPI transport for SD cards using periph.io.
//
// The card's chip select must be wired to a GPIO line. The hardware chip
// select of the SPI controller toggles around every transfer, which breaks
// the byte-at-a-time command exchange.
package spi

import (
	"errors"
	"fmt"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ErrNotConnected is returned by exchanges after the bus was closed or a
// clock change could not reopen it.
var ErrNotConnected = errors.New("SPI bus not connected")

const (
	// InitFrequency is the bus clock used until the card is initialized.
	InitFrequency = 400 * physic.KiloHertz

	minInitFrequency = 100 * physic.KiloHertz
	maxInitFrequency = physic.MegaHertz
	// MaxFrequency is the default-speed limit of SD cards in SPI mode.
	MaxFrequency = 25 * physic.MegaHertz

	bitsPerWord = 8
)

// port is the part of spi.PortCloser the transport uses.
type port interface {
	Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error)
	Close() error
}

type txConn interface {
	Tx(w, r []byte) error
}

// chipSelect is the part of gpio.PinOut the transport uses.
type chipSelect interface {
	Out(l gpio.Level) error
}

type opener func(busName string) (port, error)

func openPort(busName string) (port, error) {
	p, err := spireg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI bus %s: %w", busName, err)
	}
	return p, nil
}

// Option configures a Transport.
type Option func(*Transport) error

// WithChipSelect names the GPIO line driving the card's chip select, as
// understood by gpioreg (for example "GPIO25").
func WithChipSelect(name string) Option {
	return func(t *Transport) error {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return fmt.Errorf("unknown GPIO %q: %w", name, sdcard.ErrNoCsConfigured)
		}
		t.cs = pin
		t.csName = name
		return nil
	}
}

// WithChipSelectPin uses an already resolved pin.
func WithChipSelectPin(pin gpio.PinOut) Option {
	return func(t *Transport) error {
		if pin == nil {
			return sdcard.ErrNoCsConfigured
		}
		t.cs = pin
		t.csName = pin.Name()
		return nil
	}
}

// WithFrequency sets the initialization clock. It must stay between
// 100 kHz and 1 MHz.
func WithFrequency(f physic.Frequency) Option {
	return func(t *Transport) error {
		if f < minInitFrequency || f > maxInitFrequency {
			return fmt.Errorf("%w: init frequency %s outside 100kHz-1MHz", sdcard.ErrInvalidParameter, f)
		}
		t.freq = f
		return nil
	}
}

// Transport implements sdcard.Transport on a periph.io SPI port.
type Transport struct {
	port    port
	conn    txConn
	cs      chipSelect
	open    opener
	busName string
	csName  string
	freq    physic.Frequency
	single  [2][1]byte
}

// New opens busName (for example "SPI0.0" or "/dev/spidev0.0") in mode 0
// at the initialization clock. A chip select option is required.
func New(busName string, opts ...Option) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return newTransport(busName, openPort, opts...)
}

func newTransport(busName string, open opener, opts ...Option) (*Transport, error) {
	t := &Transport{
		busName: busName,
		freq:    InitFrequency,
		open:    open,
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	if t.cs == nil {
		return nil, sdcard.ErrNoCsConfigured
	}
	if err := t.cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive chip select %s: %w", t.csName, err)
	}

	if err := t.connect(t.freq); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) connect(f physic.Frequency) error {
	p, err := t.open(t.busName)
	if err != nil {
		return err
	}
	c, err := p.Connect(f, spi.Mode0, bitsPerWord)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("failed to connect to SPI bus %s at %s: %w", t.busName, f, err)
	}
	t.port = p
	t.conn = c
	t.freq = f
	return nil
}

// Exchange shifts one byte each way.
func (t *Transport) Exchange(out byte) (byte, error) {
	if t.conn == nil {
		return 0xFF, ErrNotConnected
	}
	t.single[0][0] = out
	if err := t.conn.Tx(t.single[0][:], t.single[1][:]); err != nil {
		return 0xFF, fmt.Errorf("SPI transfer failed: %w", err)
	}
	return t.single[1][0], nil
}

// ExchangeBytes moves a whole buffer in one ioctl.
func (t *Transport) ExchangeBytes(w, r []byte) error {
	if len(w) != len(r) {
		return fmt.Errorf("%w: bulk buffers differ (%d/%d)", sdcard.ErrInvalidParameter, len(w), len(r))
	}
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.Tx(w, r); err != nil {
		return fmt.Errorf("SPI bulk transfer failed: %w", err)
	}
	return nil
}

// Select drives chip select low.
func (t *Transport) Select() error {
	if err := t.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to assert chip select %s: %w", t.csName, err)
	}
	return nil
}

// Deselect drives chip select high.
func (t *Transport) Deselect() error {
	if err := t.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to release chip select %s: %w", t.csName, err)
	}
	return nil
}

// SetClockRate reconnects the port at hz, capped at MaxFrequency.
// periph only accepts one Connect per open port. If the new rate cannot be
// applied the previous one is restored; if that fails too the transport is
// left disconnected and every exchange returns ErrNotConnected.
func (t *Transport) SetClockRate(hz int64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: clock rate %d", sdcard.ErrInvalidParameter, hz)
	}
	f := MaxFrequency
	if hz < int64(MaxFrequency/physic.Hertz) {
		f = physic.Frequency(hz) * physic.Hertz
	}

	prev := t.freq
	if err := t.closePort(); err != nil {
		return err
	}
	if err := t.connect(f); err != nil {
		if rerr := t.connect(prev); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

func (t *Transport) closePort() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close SPI bus %s: %w", t.busName, err)
	}
	return nil
}

// IsConnected reports whether the bus is open. It is safe on a nil receiver.
func (t *Transport) IsConnected() bool {
	return t != nil && t.conn != nil
}

// Frequency returns the current bus clock.
func (t *Transport) Frequency() physic.Frequency {
	return t.freq
}

// Close releases chip select and the bus.
func (t *Transport) Close() error {
	_ = t.cs.Out(gpio.High)
	return t.closePort()
}

// Type returns the transport type
func (*Transport) Type() sdcard.TransportType {
	return sdcard.TransportSPI
}

// String describes the bus and chip select.
func (t *Transport) String() string {
	return fmt.Sprintf("%s cs=%s @ %s", t.busName, t.csName, t.freq)
}

// Ensure Transport implements the driver interfaces
var (
	_ sdcard.Transport         = (*Transport)(nil)
	_ sdcard.BulkExchanger     = (*Transport)(nil)
	_ sdcard.ClockRateSetter   = (*Transport)(nil)
	_ sdcard.ConnectionChecker = (*Transport)(nil)
)
