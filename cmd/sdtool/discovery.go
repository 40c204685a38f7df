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
	"context"
	"errors"
	"fmt"
	"strings"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/detection"
	// Import detectors to register them
	_ "github.com/ZaparooProject/go-sdcard/detection/spi"
	_ "github.com/ZaparooProject/go-sdcard/detection/uart"
	"github.com/ZaparooProject/go-sdcard/transport/spi"
	"github.com/ZaparooProject/go-sdcard/transport/uart"
)

const (
	transportSPI  = "spi"
	transportUART = "uart"
)

// transportKind guesses the transport from a device path: SPI bus names
// and spidev nodes go to the SPI transport, everything else is a serial port.
func transportKind(path string) string {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "spi") || strings.Contains(lower, "spidev") {
		return transportSPI
	}
	return transportUART
}

func newTransport(kind, path, chipSelect string) (sdcard.Transport, error) {
	switch kind {
	case transportSPI:
		if chipSelect == "" {
			return nil, fmt.Errorf("SPI bus %s: %w (use -cs)", path, sdcard.ErrNoCsConfigured)
		}
		transport, err := spi.New(path, spi.WithChipSelect(chipSelect))
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	case transportUART:
		transport, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}

// detectAdapter returns the most likely adapter. SPI buses are only
// usable when a chip select pin was given.
func detectAdapter(ctx context.Context, cfg *config, output *Output) (detection.DeviceInfo, error) {
	output.Info("Auto-detecting SD card adapters...")

	opts := detection.DefaultOptions()
	opts.Timeout = *cfg.timeout
	opts.Mode = detection.Safe
	if *cfg.chipSelect == "" {
		opts.Transports = []string{transportUART}
	}

	devices, err := detection.DetectAllContext(ctx, &opts)
	if err != nil {
		return detection.DeviceInfo{}, fmt.Errorf("adapter discovery failed: %w", err)
	}
	for _, d := range devices {
		output.Verbose("   candidate %s", d)
	}
	return devices[0], nil
}

func openDevice(ctx context.Context, cfg *config, output *Output) (*sdcard.Device, error) {
	kind, path := transportKind(*cfg.devicePath), *cfg.devicePath
	if path == "" {
		found, err := detectAdapter(ctx, cfg, output)
		if err != nil {
			return nil, err
		}
		kind, path = found.Transport, found.Path
	}

	output.Info("Opening %s adapter %s", kind, path)
	transport, err := newTransport(kind, path, *cfg.chipSelect)
	if err != nil {
		return nil, err
	}

	device, err := sdcard.New(transport, deviceOptions(*cfg.clockHz)...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// deviceOptions maps CLI flags to device options. A zero clock leaves the
// bus at the initialization rate.
func deviceOptions(clockHz int64) []sdcard.Option {
	var opts []sdcard.Option
	if clockHz > 0 {
		opts = append(opts, sdcard.WithFastClock(clockHz))
	}
	return opts
}

// initialize brings the card up and explains the common failure.
func initialize(ctx context.Context, device *sdcard.Device) (sdcard.CardGeometry, error) {
	geometry, err := device.InitializeContext(ctx)
	if errors.Is(err, sdcard.ErrIdleResetFailed) && errors.Is(err, sdcard.ErrTransportTimeout) {
		return geometry, fmt.Errorf("no card answered (is one inserted?): %w", err)
	}
	if err != nil {
		return geometry, fmt.Errorf("card initialization failed: %w", err)
	}
	return geometry, nil
}
