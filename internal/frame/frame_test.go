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

import "testing"

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		index byte
		want  byte
	}{
		{name: "go idle", index: CmdGoIdleState, want: 0x95},
		{name: "send if cond", index: CmdSendIfCond, want: 0x87},
		{name: "set block len", index: CmdSetBlockLen, want: ChecksumPlaceholder},
		{name: "read single block", index: CmdReadSingleBlock, want: ChecksumPlaceholder},
		{name: "app cmd", index: CmdAppCmd, want: ChecksumPlaceholder},
		{name: "start bits ignored", index: StartBits | CmdSendIfCond, want: 0x87},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Checksum(tt.index); got != tt.want {
				t.Errorf("Checksum(%d) = 0x%02X, want 0x%02X", tt.index, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		index byte
		arg   uint32
		want  [CommandLength]byte
	}{
		{
			name:  "CMD0",
			index: CmdGoIdleState,
			arg:   0,
			want:  [CommandLength]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95},
		},
		{
			name:  "CMD8",
			index: CmdSendIfCond,
			arg:   IfCondArgument,
			want:  [CommandLength]byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87},
		},
		{
			name:  "CMD8 checksum does not follow argument",
			index: CmdSendIfCond,
			arg:   0xDEADBEEF,
			want:  [CommandLength]byte{0x48, 0xDE, 0xAD, 0xBE, 0xEF, 0x87},
		},
		{
			name:  "CMD16 block length",
			index: CmdSetBlockLen,
			arg:   SectorSize,
			want:  [CommandLength]byte{0x50, 0x00, 0x00, 0x02, 0x00, 0xFF},
		},
		{
			name:  "ACMD41 high capacity",
			index: CmdAppSendOpCond,
			arg:   OpCondHighCapacity,
			want:  [CommandLength]byte{0x69, 0x40, 0x00, 0x00, 0x00, 0xFF},
		},
		{
			name:  "index truncated to six bits",
			index: 0xFF,
			arg:   1,
			want:  [CommandLength]byte{0x7F, 0x00, 0x00, 0x00, 0x01, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Encode(tt.index, tt.arg); got != tt.want {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	frm := Encode(CmdReadSingleBlock, 0x00012345)
	index, arg, checksum, ok := Decode(frm[:])
	if !ok {
		t.Fatal("Decode() rejected a valid frame")
	}
	if index != CmdReadSingleBlock || arg != 0x00012345 || checksum != ChecksumPlaceholder {
		t.Errorf("Decode() = (%d, 0x%08X, 0x%02X)", index, arg, checksum)
	}

	if _, _, _, ok := Decode(frm[:4]); ok {
		t.Error("Decode() accepted a short frame")
	}
	if _, _, _, ok := Decode([]byte{0xFF, 0, 0, 0, 0, 0}); ok {
		t.Error("Decode() accepted a frame without start bits")
	}
}

func TestResponseHelpers(t *testing.T) {
	t.Parallel()

	if !IsBusy(0xFF) || !IsBusy(0x80) {
		t.Error("IsBusy() should report bytes with bit 7 set")
	}
	if IsBusy(0x01) || IsBusy(0x00) {
		t.Error("IsBusy() should not report R1 values")
	}

	if got := DataResponse(0xE5); got != DataAccepted {
		t.Errorf("DataResponse(0xE5) = 0x%02X, want accepted", got)
	}
	if got := DataResponse(0x0B); got != DataCRCError {
		t.Errorf("DataResponse(0x0B) = 0x%02X, want crc error", got)
	}

	if IsDataErrorToken(Filler) || IsDataErrorToken(TokenStartBlock) {
		t.Error("filler and start token are not error tokens")
	}
	if !IsDataErrorToken(0x08) {
		t.Error("0x08 (out of range) should be an error token")
	}

	if !IsCommandStart(0x51) || IsCommandStart(0xFF) {
		t.Error("IsCommandStart() mismatch")
	}
}

func TestDescribeR1(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want string
		r    byte
	}{
		{r: 0x00, want: "ready"},
		{r: 0xFF, want: "timeout"},
		{r: 0x01, want: "idle"},
		{r: 0x05, want: "idle|illegal-command"},
		{r: 0x60, want: "address-error|parameter-error"},
	}

	for _, tt := range tests {
		if got := DescribeR1(tt.r); got != tt.want {
			t.Errorf("DescribeR1(0x%02X) = %q, want %q", tt.r, got, tt.want)
		}
	}

	if got := DescribeDataResponse(0xEB); got != "crc-error" {
		t.Errorf("DescribeDataResponse(0xEB) = %q", got)
	}
}
