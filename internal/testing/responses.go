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

package testing

// BuildCSDv1 creates a version 1.0 (standard capacity) CSD register.
// Capacity is (cSize+1) * 2^(cSizeMult+2) * 2^readBlLen bytes.
func BuildCSDv1(cSize uint16, cSizeMult, readBlLen byte) []byte {
	csd := make([]byte, 16)
	csd[0] = 0x00 // CSD_STRUCTURE 0
	csd[1] = 0x26 // TAAC
	csd[3] = 0x32 // TRAN_SPEED 25 MHz
	csd[4] = 0x5F // CCC high bits
	csd[5] = 0x50 | (readBlLen & 0x0F)
	csd[6] = byte(cSize>>10) & 0x03
	csd[7] = byte(cSize >> 2)
	csd[8] = byte(cSize<<6) & 0xC0
	csd[9] = (cSizeMult >> 1) & 0x03
	csd[10] = (cSizeMult & 0x01) << 7
	csd[15] = 0x01
	return csd
}

// BuildCSDv2 creates a version 2.0 (high capacity) CSD register.
// Capacity is (cSize+1) * 512 KiB.
func BuildCSDv2(cSize uint32) []byte {
	csd := make([]byte, 16)
	csd[0] = 0x40 // CSD_STRUCTURE 1
	csd[1] = 0x0E
	csd[3] = 0x32
	csd[4] = 0x5B
	csd[5] = 0x59 // READ_BL_LEN fixed at 9
	csd[7] = byte(cSize>>16) & 0x3F
	csd[8] = byte(cSize >> 8)
	csd[9] = byte(cSize)
	csd[10] = 0x7F
	csd[11] = 0x80
	csd[12] = 0x0A
	csd[13] = 0x40
	csd[15] = 0x01
	return csd
}

// BuildCID creates a CID register.
func BuildCID(mid byte, oem, product string, rev byte, serial uint32, year, month int) []byte {
	cid := make([]byte, 16)
	cid[0] = mid
	copy(cid[1:3], padRight(oem, 2))
	copy(cid[3:8], padRight(product, 5))
	cid[8] = rev
	cid[9] = byte(serial >> 24)
	cid[10] = byte(serial >> 16)
	cid[11] = byte(serial >> 8)
	cid[12] = byte(serial)
	y := year - 2000
	cid[13] = byte(y>>4) & 0x0F
	cid[14] = byte(y<<4) | byte(month&0x0F)
	cid[15] = 0x01
	return cid
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// Sample register contents used across tests
var (
	// TestCID is the CID reported by the virtual cards.
	TestCID = BuildCID(0x03, "SD", "SU08G", 0x80, 0x12345678, 2021, 6)
)

// Default capacities of the virtual cards
const (
	DefaultHighCapacityBytes     = 8 << 30   // 8 GiB SDHC
	DefaultStandardCapacityBytes = 128 << 20 // 128 MiB SDSC
)
