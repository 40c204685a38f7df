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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// AddressMode selects how a sector number becomes a command argument.
type AddressMode int

const (
	// AddressUnknown is reported before initialization completes.
	AddressUnknown AddressMode = iota
	// ByteAddressed cards take the byte offset (sector * 512).
	ByteAddressed
	// BlockAddressed cards take the sector number.
	BlockAddressed
)

func (m AddressMode) String() string {
	switch m {
	case ByteAddressed:
		return "byte"
	case BlockAddressed:
		return "block"
	default:
		return "unknown"
	}
}

// CardGeometry describes the card after initialization. SizeBytes and
// SectorCount are zero when the CSD could not be read.
type CardGeometry struct {
	SizeBytes   uint64
	SectorCount uint32
	AddressMode AddressMode
	// CSDVersion is the CSD_STRUCTURE field plus one (1 or 2), or 0 if unknown.
	CSDVersion int
}

// sectorArgument converts a sector number to a command argument.
func (g CardGeometry) sectorArgument(sector uint32) (uint32, error) {
	if g.SectorCount > 0 && sector >= g.SectorCount {
		return 0, fmt.Errorf("%w: sector %d beyond card (%d sectors)", ErrInvalidParameter, sector, g.SectorCount)
	}
	if g.AddressMode == BlockAddressed {
		return sector, nil
	}
	if uint64(sector)*frame.SectorSize > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: sector %d not byte addressable", ErrInvalidParameter, sector)
	}
	return sector * frame.SectorSize, nil
}

// CapacityFromCSD decodes the card size in bytes and the structure version
// from a 16-byte CSD register.
func CapacityFromCSD(csd []byte) (sizeBytes uint64, version int, err error) {
	if len(csd) < frame.RegisterSize {
		return 0, 0, fmt.Errorf("%w: CSD length %d", ErrInvalidParameter, len(csd))
	}

	switch csd[0] >> 6 {
	case 0:
		cSize := uint64(csd[6]&0x03)<<10 | uint64(csd[7])<<2 | uint64(csd[8])>>6
		mult := uint(csd[9]&0x03)<<1 | uint(csd[10])>>7
		blLen := uint(csd[5] & 0x0F)
		return (cSize + 1) << (mult + 2) << blLen, 1, nil
	case 1:
		cSize := uint64(csd[7]&0x3F)<<16 | uint64(csd[8])<<8 | uint64(csd[9])
		return (cSize + 1) * 512 * 1024, 2, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported CSD structure %d", ErrInvalidParameter, csd[0]>>6)
	}
}

// CID is the decoded card identification register.
type CID struct {
	OEMID          string
	ProductName    string
	SerialNumber   uint32
	Year           int
	Month          int
	ManufacturerID byte
	Revision       byte
}

// RevisionString formats the product revision as major.minor.
func (c CID) RevisionString() string {
	return fmt.Sprintf("%d.%d", c.Revision>>4, c.Revision&0x0F)
}

func (c CID) String() string {
	return fmt.Sprintf("%s %s rev %s SN %08X (%04d-%02d) MID 0x%02X",
		c.OEMID, c.ProductName, c.RevisionString(), c.SerialNumber, c.Year, c.Month, c.ManufacturerID)
}

// ParseCID decodes a 16-byte CID register.
func ParseCID(raw []byte) (CID, error) {
	if len(raw) < frame.RegisterSize {
		return CID{}, fmt.Errorf("%w: CID length %d", ErrInvalidParameter, len(raw))
	}
	return CID{
		ManufacturerID: raw[0],
		OEMID:          cleanASCII(raw[1:3]),
		ProductName:    cleanASCII(raw[3:8]),
		Revision:       raw[8],
		SerialNumber:   binary.BigEndian.Uint32(raw[9:13]),
		Year:           2000 + (int(raw[13]&0x0F)<<4 | int(raw[14]>>4)),
		Month:          int(raw[14] & 0x0F),
	}, nil
}

func cleanASCII(b []byte) string {
	return strings.TrimRight(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, string(b)), " ")
}
