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
	"testing"

	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityFromCSD(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		csd         []byte
		wantSize    uint64
		wantVersion int
		wantErr     bool
	}{
		{
			name:        "V1_2GiB",
			csd:         testutil.BuildCSDv1(4095, 7, 10),
			wantSize:    2 << 30,
			wantVersion: 1,
		},
		{
			name:        "V1_Smallest",
			csd:         testutil.BuildCSDv1(0, 0, 9),
			wantSize:    4 * 512,
			wantVersion: 1,
		},
		{
			name:        "V2_8GiB",
			csd:         testutil.BuildCSDv2(16383),
			wantSize:    8 << 30,
			wantVersion: 2,
		},
		{
			name:        "V2_Odd_Size",
			csd:         testutil.BuildCSDv2(15159),
			wantSize:    15160 * 512 * 1024,
			wantVersion: 2,
		},
		{
			name:    "Reserved_Structure",
			csd:     append([]byte{0x80}, make([]byte, 15)...),
			wantErr: true,
		},
		{
			name:    "Too_Short",
			csd:     make([]byte, 8),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size, version, err := CapacityFromCSD(tt.csd)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestCardGeometry_SectorArgument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		geometry CardGeometry
		sector   uint32
		want     uint32
		wantErr  bool
	}{
		{name: "Block_Mode", geometry: CardGeometry{AddressMode: BlockAddressed}, sector: 1000, want: 1000},
		{name: "Byte_Mode", geometry: CardGeometry{AddressMode: ByteAddressed}, sector: 1000, want: 512000},
		{name: "Byte_Mode_Last_Addressable", geometry: CardGeometry{AddressMode: ByteAddressed}, sector: 1<<23 - 1, want: 0xFFFFFE00},
		{name: "Byte_Mode_Overflow", geometry: CardGeometry{AddressMode: ByteAddressed}, sector: 1 << 23, wantErr: true},
		{name: "Beyond_Count", geometry: CardGeometry{AddressMode: BlockAddressed, SectorCount: 10}, sector: 10, wantErr: true},
		{name: "Last_Sector", geometry: CardGeometry{AddressMode: BlockAddressed, SectorCount: 10}, sector: 9, want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.geometry.sectorArgument(tt.sector)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCID(t *testing.T) {
	t.Parallel()

	cid, err := ParseCID(testutil.BuildCID(0x1B, "SM", "EB1QT", 0x30, 0xCAFEBABE, 2019, 12))
	require.NoError(t, err)
	assert.Equal(t, CID{
		ManufacturerID: 0x1B,
		OEMID:          "SM",
		ProductName:    "EB1QT",
		Revision:       0x30,
		SerialNumber:   0xCAFEBABE,
		Year:           2019,
		Month:          12,
	}, cid)
	assert.Equal(t, "3.0", cid.RevisionString())
	assert.Contains(t, cid.String(), "SN CAFEBABE")

	raw := testutil.BuildCID(0x02, "TM", "SA", 0x10, 1, 2000, 1)
	raw[5] = 0x00
	cid, err = ParseCID(raw)
	require.NoError(t, err)
	assert.Equal(t, "SA", cid.ProductName)
	assert.Equal(t, 2000, cid.Year)

	_, err = ParseCID(raw[:10])
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestStringers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "block", BlockAddressed.String())
	assert.Equal(t, "byte", ByteAddressed.String())
	assert.Equal(t, "unknown", AddressUnknown.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "removed", StateRemoved.String())
	assert.Equal(t, "CardState(42)", CardState(42).String())
}
