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

package frame

import (
	"encoding/binary"
	"strings"
)

// Checksum returns the checksum byte sent with the given command index.
func Checksum(index byte) byte {
	switch index & IndexMask {
	case CmdGoIdleState:
		return ChecksumGoIdle
	case CmdSendIfCond:
		return ChecksumSendIfCond
	default:
		return ChecksumPlaceholder
	}
}

// Encode builds the 6-byte command frame for index and argument.
func Encode(index byte, arg uint32) [CommandLength]byte {
	var frm [CommandLength]byte
	frm[0] = StartBits | (index & IndexMask)
	binary.BigEndian.PutUint32(frm[1:5], arg)
	frm[5] = Checksum(index)
	return frm
}

// Decode splits a command frame back into its fields. ok is false when the
// frame is short or lacks the start bits.
func Decode(frm []byte) (index byte, arg uint32, checksum byte, ok bool) {
	if len(frm) < CommandLength || frm[0]&StartMask != StartBits {
		return 0, 0, 0, false
	}
	return frm[0] & IndexMask, binary.BigEndian.Uint32(frm[1:5]), frm[5], true
}

// IsCommandStart reports whether b can be the first byte of a command frame.
func IsCommandStart(b byte) bool {
	return b&StartMask == StartBits
}

// IsBusy reports whether an R1 poll byte means "no response yet".
func IsBusy(r byte) bool {
	return r&R1Busy != 0
}

// DataResponse masks a data-response token down to its status field.
func DataResponse(b byte) byte {
	return b & DataResponseMask
}

// IsDataErrorToken reports whether b is a read data error token rather than
// idle bus filler or a start token.
func IsDataErrorToken(b byte) bool {
	return b != Filler && b != TokenStartBlock && b&0xF0 == 0
}

var r1Names = []struct {
	name string
	bit  byte
}{
	{"idle", R1IdleState},
	{"erase-reset", R1EraseReset},
	{"illegal-command", R1IllegalCommand},
	{"crc-error", R1CRCError},
	{"erase-sequence", R1EraseSequence},
	{"address-error", R1AddressError},
	{"parameter-error", R1ParameterError},
}

// DescribeR1 renders the flags set in an R1 byte for log output.
func DescribeR1(r byte) string {
	switch r {
	case ResponseTimeout:
		return "timeout"
	case R1Ready:
		return "ready"
	}
	var parts []string
	for _, n := range r1Names {
		if r&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// DescribeDataResponse names a masked data-response status.
func DescribeDataResponse(b byte) string {
	switch DataResponse(b) {
	case DataAccepted:
		return "accepted"
	case DataCRCError:
		return "crc-error"
	case DataWriteError:
		return "write-error"
	default:
		return "unknown"
	}
}
