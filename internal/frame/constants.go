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

// Package frame provides the SD card SPI-mode wire format: command frames,
// R1 status bits and data tokens.
package frame

// Command indices used by the driver (CMDn in SD terminology). ACMD41 is an
// application command and must be preceded by CmdAppCmd.
const (
	CmdGoIdleState     = 0
	CmdSendIfCond      = 8
	CmdSendCSD         = 9
	CmdSendCID         = 10
	CmdSetBlockLen     = 16
	CmdReadSingleBlock = 17
	CmdWriteBlock      = 24
	CmdAppSendOpCond   = 41
	CmdAppCmd          = 55
	CmdReadOCR         = 58
)

// Command frame layout
const (
	CommandLength = 6    // start+index, 4 argument bytes, checksum
	StartBits     = 0x40 // "01" transmission prefix on the first byte
	StartMask     = 0xC0
	IndexMask     = 0x3F
)

// Checksum bytes. The card only verifies CRC7 before SPI mode is fully
// entered, so CMD0 and CMD8 carry their precomputed values and everything
// else carries the placeholder.
const (
	ChecksumGoIdle      = 0x95
	ChecksumSendIfCond  = 0x87
	ChecksumPlaceholder = 0xFF
)

// R1 response bits
const (
	R1Ready          = 0x00
	R1IdleState      = 1 << 0
	R1EraseReset     = 1 << 1
	R1IllegalCommand = 1 << 2
	R1CRCError       = 1 << 3
	R1EraseSequence  = 1 << 4
	R1AddressError   = 1 << 5
	R1ParameterError = 1 << 6
	R1Busy           = 1 << 7

	// ResponseTimeout is returned when no R1 arrived within MaxResponsePolls.
	ResponseTimeout = 0xFF
)

// Data block tokens
const (
	TokenStartBlock = 0xFE
	Filler          = 0xFF

	DataResponseMask = 0x1F
	DataAccepted     = 0x05
	DataCRCError     = 0x0B
	DataWriteError   = 0x0D
)

// Sizes and arguments
const (
	SectorSize       = 512
	RegisterSize     = 16
	CRCLength        = 2
	OCRLength        = 4
	MaxResponsePolls = 8

	IfCondArgument     = 0x000001AA // 2.7-3.6V window + 0xAA check pattern
	OpCondHighCapacity = 0x40000000 // HCS bit of ACMD41

	// First OCR byte
	OCRPowerUpStatus = 0x80
	OCRCapacityState = 0x40
)
