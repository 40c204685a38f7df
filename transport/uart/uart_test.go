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

package uart

import (
	"bytes"
	"testing"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modeTerminal = iota
	modeBitbang
	modeSPI
)

// fakeBridge emulates the binary SPI protocol in front of a simulated card.
type fakeBridge struct {
	card        *testutil.VirtualCard
	out         bytes.Buffer
	config      []byte
	mode        int
	zerosNeeded int
	zeros       int
	bulkLeft    int
	bulks       int
	resets      int
	closed      bool
}

func newFakeBridge(zerosNeeded int) *fakeBridge {
	return &fakeBridge{card: testutil.NewVirtualSDHC(), zerosNeeded: zerosNeeded}
}

func (f *fakeBridge) Write(p []byte) (int, error) {
	for _, b := range p {
		f.feed(b)
	}
	return len(p), nil
}

func (f *fakeBridge) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

func (f *fakeBridge) ResetInputBuffer() error {
	f.resets++
	f.out.Reset()
	return nil
}

func (f *fakeBridge) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBridge) feed(b byte) {
	switch f.mode {
	case modeTerminal:
		if b != cmdReset {
			return
		}
		f.zeros++
		if f.zeros >= f.zerosNeeded {
			f.mode = modeBitbang
			f.out.WriteString("BBIO1")
		}
	case modeBitbang:
		switch b {
		case cmdReset:
			f.out.WriteString("BBIO1")
		case cmdEnterSPI:
			f.mode = modeSPI
			f.out.WriteString("SPI1")
		case cmdHardReset:
			f.mode = modeTerminal
			f.zeros = 0
		}
	case modeSPI:
		f.feedSPI(b)
	}
}

func (f *fakeBridge) feedSPI(b byte) {
	if f.bulkLeft > 0 {
		in, _ := f.card.Exchange(b)
		f.out.WriteByte(in)
		f.bulkLeft--
		return
	}

	switch {
	case b == cmdReset:
		f.mode = modeBitbang
		f.out.WriteString("BBIO1")
	case b == cmdCSLow:
		_ = f.card.Select()
		f.out.WriteByte(ack)
	case b == cmdCSHigh:
		_ = f.card.Deselect()
		f.out.WriteByte(ack)
	case b&0xF0 == cmdBulk:
		f.bulks++
		f.bulkLeft = int(b&0x0F) + 1
		f.out.WriteByte(ack)
	case b&0xF0 == cmdPeripheral, b&0xF8 == cmdSpeed, b&0xF0 == cmdConfig:
		f.config = append(f.config, b)
		f.out.WriteByte(ack)
	default:
		f.out.WriteByte(0x00)
	}
}

func newBridgeTransport(t *testing.T, bridge *fakeBridge) *Transport {
	t.Helper()
	tr, err := newTransport(bridge, "/dev/ttyUSB0", 5*time.Millisecond)
	require.NoError(t, err)
	return tr
}

// TestTransportCreation verifies basic transport creation and properties
func TestTransportCreation(t *testing.T) {
	t.Parallel()

	testPortName := "/dev/ttyUSB0"
	transport := &Transport{
		portName: testPortName,
	}

	assert.Equal(t, testPortName, transport.portName)
	assert.Equal(t, sdcard.TransportUART, transport.Type())
	assert.False(t, transport.IsConnected())
	require.NoError(t, transport.Close())
}

func TestNewTransport_Handshake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		zeros      int
		wantResets int
	}{
		{name: "Immediate", zeros: 1, wantResets: 0},
		{name: "After_Several_Resets", zeros: 4, wantResets: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bridge := newFakeBridge(tt.zeros)
			tr := newBridgeTransport(t, bridge)

			assert.True(t, tr.IsConnected())
			assert.Equal(t, tt.wantResets, bridge.resets)
			assert.Equal(t, modeSPI, bridge.mode)
			assert.Equal(t, []byte{0x62, 0x8A, 0x49}, bridge.config)
			assert.Equal(t, int64(250_000), tr.ClockRate())
		})
	}
}

func TestNewTransport_NoBridge(t *testing.T) {
	t.Parallel()

	bridge := newFakeBridge(enterTries + 1)
	_, err := newTransport(bridge, "/dev/ttyUSB3", time.Millisecond)
	require.ErrorIs(t, err, ErrNoBridge)
	assert.Equal(t, enterTries-1, bridge.resets)
}

func TestTransport_DrivesCard(t *testing.T) {
	t.Parallel()

	bridge := newFakeBridge(1)
	tr := newBridgeTransport(t, bridge)

	device, err := sdcard.New(tr, sdcard.WithClock(bridge.card), sdcard.WithFastClock(4_000_000))
	require.NoError(t, err)

	geometry, err := device.Initialize()
	require.NoError(t, err)
	assert.Equal(t, sdcard.BlockAddressed, geometry.AddressMode)
	assert.Equal(t, int64(4_000_000), tr.ClockRate())
	assert.Equal(t, byte(0x66), bridge.config[len(bridge.config)-1])

	data := bytes.Repeat([]byte{0xC3}, sdcard.SectorSize)
	require.NoError(t, device.WriteSector(12, data))
	got, err := device.ReadSector(12)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, device.Close())
	assert.True(t, bridge.closed)
	assert.Equal(t, modeTerminal, bridge.mode)
}

func TestSetClockRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hz      int64
		want    int64
		wantErr bool
	}{
		{name: "Exact", hz: 1_000_000, want: 1_000_000},
		{name: "Rounds_Down", hz: 900_000, want: 250_000},
		{name: "Above_Fastest", hz: 25_000_000, want: 8_000_000},
		{name: "Too_Slow", hz: 10_000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newBridgeTransport(t, newFakeBridge(1))
			err := tr.SetClockRate(tt.hz)
			if tt.wantErr {
				require.ErrorIs(t, err, sdcard.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.ClockRate())
		})
	}
}

func TestExchangeBytes_Chunks(t *testing.T) {
	t.Parallel()

	bridge := newFakeBridge(1)
	tr := newBridgeTransport(t, bridge)

	w := bytes.Repeat([]byte{0xFF}, 40)
	r := make([]byte, 40)
	require.NoError(t, tr.ExchangeBytes(w, r))
	assert.Equal(t, 3, bridge.bulks)
	// deselected card leaves the line high
	assert.Equal(t, w, r)

	require.ErrorIs(t, tr.ExchangeBytes(w, r[:1]), sdcard.ErrInvalidParameter)
}

func TestReadExact_Timeout(t *testing.T) {
	t.Parallel()

	bridge := newFakeBridge(1)
	tr := newBridgeTransport(t, bridge)

	// the bridge stays silent for unknown commands in bitbang mode
	bridge.mode = modeBitbang
	_, err := tr.Exchange(0xFF)
	require.ErrorIs(t, err, sdcard.ErrTransportTimeout)
}
