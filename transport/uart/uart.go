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

// Package uart provides an SD card transport over a USB-serial SPI bridge
// speaking the Bus Pirate binary SPI protocol.
package uart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
	transportutil "github.com/ZaparooProject/go-sdcard/internal/transport"
	"go.bug.st/serial"
)

// Binary mode commands
const (
	cmdReset      = 0x00 // also "enter bitbang"
	cmdEnterSPI   = 0x01
	cmdCSLow      = 0x02
	cmdCSHigh     = 0x03
	cmdHardReset  = 0x0F
	cmdBulk       = 0x10 // low nibble: byte count - 1
	cmdPeripheral = 0x40 // 0100 power pullup aux cs
	cmdSpeed      = 0x60 // low 3 bits: speed code
	cmdConfig     = 0x80 // 1000 output ckp cke smp

	peripheralPower = 0x08
	peripheralCS    = 0x01

	// 3.3V push-pull, idle low, data valid on the idle-to-active edge: mode 0
	configMode0 = cmdConfig | 0x08 | 0x02

	ack         = 0x01
	maxBulk     = 16
	enterTries  = 20
	defaultBaud = 115200
)

var (
	bitbangBanner = []byte("BBIO1")
	spiBanner     = []byte("SPI1")
)

// speeds maps the bridge's speed codes to bus clock rates.
var speeds = []int64{30_000, 125_000, 250_000, 1_000_000, 2_000_000, 2_600_000, 4_000_000, 8_000_000}

// initSpeedCode is 250 kHz, inside the 100 kHz - 1 MHz init window.
const initSpeedCode = 2

// ErrNoBridge is returned when the serial device does not answer the binary
// mode handshake.
var ErrNoBridge = errors.New("serial device is not an SPI bridge")

// port is the subset of serial.Port the transport needs.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Option configures a Transport.
type Option func(*config)

type config struct {
	baud    int
	timeout time.Duration
}

// WithBaudRate sets the serial line rate.
func WithBaudRate(baud int) Option {
	return func(c *config) {
		c.baud = baud
	}
}

// WithTimeout sets how long a reply may take.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// Transport implements sdcard.Transport through a serial SPI bridge.
type Transport struct {
	port     port
	portName string
	timeout  time.Duration
	clockHz  int64
	scratch  [1 + maxBulk]byte
}

// New opens portName and switches the bridge into binary SPI mode at
// 250 kHz, mode 0, chip select high.
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := config{baud: defaultBaud, timeout: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	// short polls; readExact owns the real deadline
	if err := p.SetReadTimeout(10 * time.Millisecond); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	t, err := newTransport(p, portName, cfg.timeout)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(p port, portName string, timeout time.Duration) (*Transport, error) {
	t := &Transport{port: p, portName: portName, timeout: timeout}
	if err := t.enterSPI(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) enterSPI() error {
	_, err := transportutil.WithRetry(transportutil.RetryConfig{
		Description: "enter bitbang mode",
		MaxRetries:  enterTries - 1,
		OnRetry:     t.port.ResetInputBuffer,
	}, func() (struct{}, bool, error) {
		if err := t.write(cmdReset); err != nil {
			return struct{}{}, false, err
		}
		reply := make([]byte, len(bitbangBanner))
		if err := t.readExact(reply); err != nil {
			return struct{}{}, true, nil
		}
		return struct{}{}, !bytes.Equal(reply, bitbangBanner), nil
	})
	if errors.Is(err, transportutil.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %s did not enter bitbang mode", ErrNoBridge, t.portName)
	}
	if err != nil {
		return err
	}

	if err := t.write(cmdEnterSPI); err != nil {
		return err
	}
	reply := make([]byte, len(spiBanner))
	if err := t.readExact(reply); err != nil {
		return err
	}
	if !bytes.Equal(reply, spiBanner) {
		return fmt.Errorf("%w: unexpected SPI banner %q", ErrNoBridge, reply)
	}

	for _, cmd := range []byte{
		cmdSpeed | initSpeedCode,
		configMode0,
		cmdPeripheral | peripheralPower | peripheralCS,
	} {
		if err := t.command(cmd); err != nil {
			return err
		}
	}
	t.clockHz = speeds[initSpeedCode]
	return nil
}

func (t *Transport) write(b ...byte) error {
	if _, err := t.port.Write(b); err != nil {
		return fmt.Errorf("serial write to %s failed: %w", t.portName, err)
	}
	return nil
}

// readExact fills buf or fails once the reply timeout passes. Reads that
// return no data are the serial port's own short timeout.
func (t *Transport) readExact(buf []byte) error {
	deadline := time.Now().Add(t.timeout)
	n := 0
	for n < len(buf) {
		m, err := t.port.Read(buf[n:])
		if err != nil {
			return fmt.Errorf("serial read from %s failed: %w", t.portName, err)
		}
		n += m
		if m == 0 && time.Now().After(deadline) {
			return fmt.Errorf("%w: %s replied %d of %d bytes", sdcard.ErrTransportTimeout, t.portName, n, len(buf))
		}
	}
	return nil
}

// command sends a one-byte command and checks the acknowledgement.
func (t *Transport) command(cmd byte) error {
	if err := t.write(cmd); err != nil {
		return err
	}
	if err := t.readExact(t.scratch[:1]); err != nil {
		return err
	}
	if t.scratch[0] != ack {
		return fmt.Errorf("bridge refused command 0x%02X: replied 0x%02X", cmd, t.scratch[0])
	}
	return nil
}

// transfer moves up to 16 bytes in one bulk command.
func (t *Transport) transfer(w, r []byte) error {
	frame := make([]byte, 0, 1+len(w))
	frame = append(frame, cmdBulk|byte(len(w)-1))
	frame = append(frame, w...)
	if err := t.write(frame...); err != nil {
		return err
	}

	reply := t.scratch[:1+len(w)]
	if err := t.readExact(reply); err != nil {
		return err
	}
	if reply[0] != ack {
		return fmt.Errorf("bridge refused bulk transfer: replied 0x%02X", reply[0])
	}
	copy(r, reply[1:])
	return nil
}

// Exchange shifts one byte each way.
func (t *Transport) Exchange(out byte) (byte, error) {
	var in [1]byte
	if err := t.transfer([]byte{out}, in[:]); err != nil {
		return 0xFF, err
	}
	return in[0], nil
}

// ExchangeBytes moves w in bulk commands of up to 16 bytes.
func (t *Transport) ExchangeBytes(w, r []byte) error {
	if len(w) != len(r) {
		return fmt.Errorf("%w: bulk buffers differ (%d/%d)", sdcard.ErrInvalidParameter, len(w), len(r))
	}
	for off := 0; off < len(w); off += maxBulk {
		end := min(off+maxBulk, len(w))
		if err := t.transfer(w[off:end], r[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// Select drives chip select low.
func (t *Transport) Select() error {
	return t.command(cmdCSLow)
}

// Deselect drives chip select high.
func (t *Transport) Deselect() error {
	return t.command(cmdCSHigh)
}

// SetClockRate picks the fastest bridge speed not above hz.
func (t *Transport) SetClockRate(hz int64) error {
	if hz < speeds[0] {
		return fmt.Errorf("%w: clock rate %d below %d", sdcard.ErrInvalidParameter, hz, speeds[0])
	}
	code := 0
	for i, s := range speeds {
		if s <= hz {
			code = i
		}
	}
	if err := t.command(cmdSpeed | byte(code)); err != nil {
		return err
	}
	t.clockHz = speeds[code]
	return nil
}

// ClockRate returns the current bus clock in Hz.
func (t *Transport) ClockRate() int64 {
	return t.clockHz
}

// Close returns the bridge to its terminal and closes the port.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	_ = t.write(cmdReset, cmdHardReset)
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the port is open. It is safe on a nil receiver.
func (t *Transport) IsConnected() bool {
	return t != nil && t.port != nil
}

// Type returns the transport type
func (*Transport) Type() sdcard.TransportType {
	return sdcard.TransportUART
}

// Ensure Transport implements the driver interfaces
var (
	_ sdcard.Transport         = (*Transport)(nil)
	_ sdcard.BulkExchanger     = (*Transport)(nil)
	_ sdcard.ClockRateSetter   = (*Transport)(nil)
	_ sdcard.ConnectionChecker = (*Transport)(nil)
)
