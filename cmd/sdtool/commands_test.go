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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*sdcard.Device, *testutil.VirtualCard) {
	t.Helper()
	card := testutil.NewVirtualSDHC()
	device, err := sdcard.New(sdcard.NewMockTransportWithCard(card))
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Close() })
	return device, card
}

func newTestOutput() (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	out := NewOutput(&buf, false)
	out.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return out, &buf
}

func TestTransportKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{path: "SPI0.0", want: transportSPI},
		{path: "/dev/spidev1.1", want: transportSPI},
		{path: "/dev/ttyUSB0", want: transportUART},
		{path: "COM3", want: transportUART},
		{path: "", want: transportUART},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, transportKind(tt.path))
		})
	}
}

func TestNewTransport_SPIRequiresChipSelect(t *testing.T) {
	t.Parallel()
	_, err := newTransport(transportSPI, "SPI0.0", "")
	require.ErrorIs(t, err, sdcard.ErrNoCsConfigured)

	_, err = newTransport("i2c", "/dev/i2c-1", "")
	require.Error(t, err)
}

func TestDeviceOptions_Clock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		clockHz int64
		want    int64
	}{
		{name: "zero keeps init clock", clockHz: 0, want: 0},
		{name: "negative keeps init clock", clockHz: -1, want: 0},
		{name: "positive raises clock", clockHz: 25_000_000, want: 25_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			transport := sdcard.NewBulkMockTransport(testutil.NewVirtualSDHC())
			device, err := sdcard.New(transport, deviceOptions(tt.clockHz)...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = device.Close() })

			_, err = initialize(context.Background(), device)
			require.NoError(t, err)
			assert.Equal(t, tt.want, transport.ClockRate())
		})
	}
}

func TestParseReadArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    readArgs
		wantErr bool
	}{
		{name: "defaults", want: readArgs{count: 1}},
		{name: "all flags", args: []string{"-sector", "8", "-count", "2", "-out", "x.bin"},
			want: readArgs{sector: 8, count: 2, out: "x.bin"}},
		{name: "zero count", args: []string{"-count", "0"}, wantErr: true},
		{name: "past 32-bit range", args: []string{"-sector", "4294967295", "-count", "2"}, wantErr: true},
		{name: "stray argument", args: []string{"extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseReadArgs(tt.args)
			if tt.wantErr {
				require.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWriteArgs(t *testing.T) {
	t.Parallel()

	_, err := parseWriteArgs(nil)
	require.ErrorIs(t, err, errUsage)

	_, err = parseWriteArgs([]string{"-in", "f", "-sector", "4294967296"})
	require.ErrorIs(t, err, errUsage)

	got, err := parseWriteArgs([]string{"-in", "f", "-sector", "3"})
	require.NoError(t, err)
	assert.Equal(t, writeArgs{in: "f", sector: 3}, got)
}

func TestFormatSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "3.7 GiB", formatSize(4_000_000_000))
}

func TestRunInfo(t *testing.T) {
	t.Parallel()
	device, _ := newTestDevice(t)
	out, buf := newTestOutput()

	require.NoError(t, runInfo(context.Background(), device, nil, out))
	text := buf.String()
	assert.Contains(t, text, "Addressing:   block")
	assert.Contains(t, text, "Product:")
	assert.Contains(t, text, "Serial:")
}

func TestRunInfo_NoCard(t *testing.T) {
	t.Parallel()
	device, card := newTestDevice(t)
	card.SetPresent(false)
	out, _ := newTestOutput()

	err := runInfo(context.Background(), device, nil, out)
	require.ErrorIs(t, err, sdcard.ErrIdleResetFailed)
	assert.Contains(t, err.Error(), "no card answered")
}

func TestRunReadWrite(t *testing.T) {
	t.Parallel()
	device, card := newTestDevice(t)
	dir := t.TempDir()

	data := make([]byte, 2*sdcard.SectorSize)
	for i := range data {
		data[i] = byte(i * 7)
	}
	in := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(in, data, 0o600))

	out, buf := newTestOutput()
	require.NoError(t, runWrite(context.Background(), device, []string{"-sector", "10", "-in", in}, out))
	assert.Contains(t, buf.String(), "Wrote 2 sector(s) starting at 10")
	assert.Equal(t, data[:sdcard.SectorSize], card.Sector(10))
	assert.Equal(t, data[sdcard.SectorSize:], card.Sector(11))

	saved := filepath.Join(dir, "out.bin")
	require.NoError(t, runRead(context.Background(), device,
		[]string{"-sector", "10", "-count", "2", "-out", saved}, out))
	got, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	buf.Reset()
	require.NoError(t, runRead(context.Background(), device, []string{"-sector", "11"}, out))
	assert.Contains(t, buf.String(), "Sector 11 (offset 0x1600):")
	assert.Contains(t, buf.String(), "00000000  ")
}

func TestRunWrite_PartialSector(t *testing.T) {
	t.Parallel()
	device, _ := newTestDevice(t)
	in := filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, os.WriteFile(in, []byte("short"), 0o600))

	out, _ := newTestOutput()
	err := runWrite(context.Background(), device, []string{"-in", in}, out)
	require.Error(t, err)
	assert.Equal(t, sdcard.StateUninitialized, device.State(), "card must not be touched")
}

func TestRunProbe(t *testing.T) {
	t.Parallel()
	device, card := newTestDevice(t)
	out, buf := newTestOutput()

	require.NoError(t, runProbe(context.Background(), device, nil, out))
	assert.Contains(t, buf.String(), "Card present")

	card.SetPresent(false)
	require.Error(t, runProbe(context.Background(), device, nil, out))
}

func TestRunMonitor_StopsOnCancel(t *testing.T) {
	t.Parallel()
	device, _ := newTestDevice(t)
	out, buf := newTestOutput()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// A deadline is not a clean stop.
	err := runMonitor(ctx, device, []string{"-interval", "5ms"}, out)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), "03:04:05 inserted:")
}

func TestOutputEvent(t *testing.T) {
	t.Parallel()
	out, buf := newTestOutput()
	out.Event("removed")
	assert.Equal(t, "03:04:05 removed\n", buf.String())
}
