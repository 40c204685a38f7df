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

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// Output handles consistent formatting of messages
type Output struct {
	w       io.Writer
	now     func() time.Time
	verbose bool
}

// NewOutput creates a new output handler
func NewOutput(w io.Writer, verbose bool) *Output {
	return &Output{w: w, verbose: verbose, now: time.Now}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

// Geometry prints what initialization learned about the card.
func (o *Output) Geometry(g sdcard.CardGeometry) {
	o.printf("Capacity:     %s (%d bytes)\n", formatSize(g.SizeBytes), g.SizeBytes)
	o.printf("Sectors:      %d\n", g.SectorCount)
	o.printf("Addressing:   %s\n", g.AddressMode)
	if g.CSDVersion > 0 {
		o.printf("CSD version:  %d.0\n", g.CSDVersion)
	}
}

// CID prints the card identification register.
func (o *Output) CID(c sdcard.CID) {
	o.printf("Manufacturer: 0x%02X (OEM %s)\n", c.ManufacturerID, c.OEMID)
	o.printf("Product:      %s rev %s\n", c.ProductName, c.RevisionString())
	o.printf("Serial:       %08X\n", c.SerialNumber)
	o.printf("Made:         %04d-%02d\n", c.Year, c.Month)
}

// Sector prints a hex dump of one sector with absolute byte offsets.
func (o *Output) Sector(sector uint32, data []byte) {
	o.printf("Sector %d (offset 0x%X):\n", sector, uint64(sector)*sdcard.SectorSize)
	o.printf("%s", hex.Dump(data))
}

// Event prints a timestamped monitor event.
func (o *Output) Event(format string, args ...any) {
	o.printf("%s "+format+"\n", append([]any{o.now().Format(time.TimeOnly)}, args...)...)
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	o.printf("ERROR: "+format+"\n", args...)
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	o.printf("WARNING: "+format+"\n", args...)
}

// Info prints an info message
func (o *Output) Info(format string, args ...any) {
	o.printf("INFO: "+format+"\n", args...)
}

// OK prints a success message
func (o *Output) OK(format string, args ...any) {
	o.printf("OK: "+format+"\n", args...)
}

// Verbose prints only if verbose mode is enabled
func (o *Output) Verbose(format string, args ...any) {
	if o.verbose {
		o.printf(format+"\n", args...)
	}
}
