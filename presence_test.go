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
	"context"
	"testing"

	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPresent(t *testing.T) {
	t.Parallel()

	t.Run("Ready_Card", func(t *testing.T) {
		t.Parallel()
		card := testutil.NewVirtualSDHC()
		device, _ := newReadyDevice(t, card)

		assert.True(t, device.IsPresent())
		assert.Equal(t, StateReady, device.State())
		assert.False(t, card.Selected())
	})

	t.Run("Idle_Card_Is_Not_Ready", func(t *testing.T) {
		t.Parallel()
		card := testutil.NewVirtualSDHC()
		device, _ := newTestDevice(t, card)
		require.NoError(t, device.Reset(context.Background()))

		assert.False(t, device.IsPresent())
		assert.Equal(t, StateUninitialized, device.State())
	})
}

func TestIsPresent_RemovalAndReinsertion(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualSDHC()
	card.SetSector(4, []byte("data"))
	device, _ := newReadyDevice(t, card)

	card.SetPresent(false)
	assert.False(t, device.IsPresent())
	assert.Equal(t, StateRemoved, device.State())
	assert.Equal(t, CardGeometry{}, device.Geometry())

	_, err := device.ReadSector(4)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, device.WriteSector(4, patternSector(0)), ErrNotInitialized)

	// power was lost, so the card needs the full sequence again
	card.SetPresent(true)
	assert.False(t, device.IsPresent())
	assert.Equal(t, StateRemoved, device.State())

	_, err = device.Initialize()
	require.NoError(t, err)
	assert.True(t, device.IsPresent())

	got, err := device.ReadSector(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got[:4])
}
