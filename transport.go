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

// Transport is the byte-level full-duplex link to the card. Every Exchange
// clocks one byte out and returns the byte clocked in during the same eight
// clocks. Select and Deselect drive the chip-select line.
//
// Implementations live under transport/: spi (Linux spidev), mcu (TinyGo
// machine SPI), uart (serial SPI bridge).
type Transport interface {
	// Exchange shifts out one byte and returns the byte shifted in.
	Exchange(out byte) (byte, error)

	// Select asserts chip select.
	Select() error

	// Deselect releases chip select.
	Deselect() error

	// Close releases the underlying bus handle.
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSPI is a Linux spidev bus with a GPIO chip select.
	TransportSPI TransportType = "spi"
	// TransportMCU is a microcontroller SPI peripheral under TinyGo.
	TransportMCU TransportType = "mcu"
	// TransportUART is a USB-serial SPI bridge.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportError wraps a failure reported by the transport itself.
type TransportError struct {
	Err  error
	Op   string
	Type TransportType
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap lets errors.Is match both ErrTransportFailed and the raw cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransportFailed, e.Err}
}
