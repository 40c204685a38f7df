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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (s *stubDetector) Transport() string { return s.transport }

func (s *stubDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	s.calls++
	return s.devices, s.err
}

func TestDetectWith(t *testing.T) {
	t.Parallel()

	boom := errors.New("bus exploded")

	tests := []struct {
		wantErr   error
		name      string
		detectors func() []Detector
		opts      Options
		wantPaths []string
	}{
		{
			name: "sorted by confidence",
			detectors: func() []Detector {
				return []Detector{
					&stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "SPI0.0", Confidence: Medium}}},
					&stubDetector{transport: "uart", devices: []DeviceInfo{
						{Path: "/dev/ttyUSB0", Confidence: Low},
						{Path: "/dev/ttyACM0", Confidence: High},
					}},
				}
			},
			wantPaths: []string{"/dev/ttyACM0", "SPI0.0", "/dev/ttyUSB0"},
		},
		{
			name: "transport filter",
			detectors: func() []Detector {
				return []Detector{
					&stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "SPI0.0"}}},
					&stubDetector{transport: "uart", devices: []DeviceInfo{{Path: "/dev/ttyUSB0"}}},
				}
			},
			opts:      Options{Transports: []string{"uart"}},
			wantPaths: []string{"/dev/ttyUSB0"},
		},
		{
			name: "ignored paths dropped",
			detectors: func() []Detector {
				return []Detector{
					&stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "SPI0.0"}, {Path: "SPI0.1"}}},
				}
			},
			opts:      Options{IgnorePaths: []string{"spi0.1"}},
			wantPaths: []string{"SPI0.0"},
		},
		{
			name: "unsupported and empty are not errors",
			detectors: func() []Detector {
				return []Detector{
					&stubDetector{transport: "spi", err: ErrUnsupportedPlatform},
					&stubDetector{transport: "uart", err: ErrNoDevicesFound},
				}
			},
			wantErr: ErrNoDevicesFound,
		},
		{
			name: "real failure surfaces",
			detectors: func() []Detector {
				return []Detector{&stubDetector{transport: "uart", err: boom}}
			},
			wantErr: boom,
		},
		{
			name: "partial failure still returns devices",
			detectors: func() []Detector {
				return []Detector{
					&stubDetector{transport: "spi", err: boom},
					&stubDetector{transport: "uart", devices: []DeviceInfo{{Path: "COM3"}}},
				}
			},
			wantPaths: []string{"COM3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := tt.opts
			devices, err := detectWith(context.Background(), tt.detectors(), &opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, devices)
				return
			}
			require.NoError(t, err)
			paths := make([]string, 0, len(devices))
			for _, d := range devices {
				paths = append(paths, d.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)
		})
	}
}

func TestDetectWith_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "SPI0.0"}}}
	_, err := detectWith(ctx, []Detector{stub}, &Options{})
	require.ErrorIs(t, err, ErrDetectionTimeout)
	assert.Zero(t, stub.calls)
}

func TestRegisterDetector(t *testing.T) {
	t.Parallel()

	RegisterDetector(&stubDetector{transport: "zz-test-first"})
	replacement := &stubDetector{transport: "zz-test-first"}
	RegisterDetector(replacement)

	var found Detector
	for _, d := range Detectors() {
		if d.Transport() == "zz-test-first" {
			require.Nil(t, found, "transport registered twice")
			found = d
		}
	}
	assert.Same(t, replacement, found)
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vidpid    string
		blocklist []string
		want      bool
	}{
		{name: "exact", vidpid: "0403:6001", blocklist: []string{"0403:6001"}, want: true},
		{name: "case insensitive", vidpid: "04d8:fb00", blocklist: []string{" 04D8:FB00 "}, want: true},
		{name: "not listed", vidpid: "2341:0043", blocklist: DefaultBlocklist(), want: false},
		{name: "default entry", vidpid: "0403:6014", blocklist: DefaultBlocklist(), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBlocked(tt.vidpid, tt.blocklist))
		})
	}
}

func TestParseVIDPID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		descriptor string
		want       string
	}{
		{descriptor: "USB VID:0403 PID:6001", want: "0403:6001"},
		{descriptor: "vendor=04d8 product=fb00", want: "04D8:FB00"},
		{descriptor: "0403:6001", want: "0403:6001"},
		{descriptor: "no ids here", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.descriptor, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseVIDPID(tt.descriptor))
		})
	}
}

func TestConfidenceString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "Confidence(9)", Confidence(9).String())
}

func TestDetectAllContext_Timeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DetectAllContext(ctx, &Options{Timeout: time.Second, Transports: []string{"spi"}})
	require.Error(t, err)
}

func TestDeviceInfoString(t *testing.T) {
	t.Parallel()
	d := DeviceInfo{Transport: "spi", Path: "SPI0.0", Name: "spidev bus 0 chip select 0", Confidence: Medium}
	assert.Equal(t, "spi:SPI0.0 (spidev bus 0 chip select 0, medium confidence)", d.String())
}
