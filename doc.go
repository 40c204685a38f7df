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

/*
Package sdcard provides a pure Go driver for SD cards in SPI mode.

The driver gives raw access to fixed 512-byte sectors. It runs the card's
power-up handshake (idle reset, interface condition, operating-condition
polling, block length) and frames single-sector reads and writes. There is no
file system and no wear leveling.

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-sdcard"
	    "github.com/ZaparooProject/go-sdcard/transport/spi"
	)

	// Open the SPI bus with a GPIO chip select
	transport, err := spi.New("SPI0.0", spi.WithChipSelect("GPIO25"))
	if err != nil {
	    log.Fatal(err)
	}

	device, err := sdcard.New(transport, sdcard.WithFastClock(20_000_000))
	if err != nil {
	    log.Fatal(err)
	}
	defer device.Close()

	geometry, err := device.Initialize()
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Printf("%d bytes, %s addressing\n", geometry.SizeBytes, geometry.AddressMode)

	sector, err := device.ReadSector(0)
	if err != nil {
	    log.Fatal(err)
	}

Transport Selection:

  - spi: Linux spidev through periph.io, chip select on a GPIO line
  - mcu: TinyGo machine SPI on a microcontroller
  - uart: Bus Pirate style USB-serial SPI bridge

Error Handling:

Failures are *CardError values wrapping one of the package sentinels, so
both forms work:

	if errors.Is(err, sdcard.ErrDataTimeout) {
	    // card stopped answering
	}

	var cardErr *sdcard.CardError
	if errors.As(err, &cardErr) {
	    fmt.Printf("R1 was 0x%02X\n", cardErr.Response)
	}

Card Removal:

IsPresent probes the card. Once a ready card fails a probe, block I/O
returns ErrNotInitialized until Initialize succeeds again. The polling
package runs the probe on a timer.

Thread Safety:

Device methods are serialized by an internal mutex, so a polling monitor and
a reader can share one Device.
*/
package sdcard
