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

// Package uart detects USB serial SPI bridges (Bus Pirate and compatibles)
// that can drive an SD card through transport/uart.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-sdcard/detection"
	"go.bug.st/serial/enumerator"
)

// knownBridges maps VID:PID to a bridge description.
var knownBridges = map[string]string{
	"0403:6001": "Bus Pirate v3 (FT232R)",
	"04D8:FB00": "Bus Pirate v4",
}

type detector struct {
	list func() ([]*enumerator.PortDetails, error)
}

// New creates a USB serial bridge detector.
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect reports USB serial ports whose VID:PID belongs to a known bridge.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if port == nil || !port.IsUSB {
			continue
		}

		vidpid := strings.ToUpper(port.VID + ":" + port.PID)
		bridge, known := knownBridges[vidpid]
		if !known || detection.IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
			continue
		}

		dev := detection.DeviceInfo{
			Transport:  "uart",
			Path:       port.Name,
			Name:       bridge,
			Confidence: detection.Medium,
			Metadata: map[string]string{
				"vidpid": vidpid,
			},
		}
		if port.SerialNumber != "" {
			dev.Metadata["serial"] = port.SerialNumber
		}
		if port.Product != "" {
			dev.Metadata["product"] = port.Product
			// FT232R boards are generic; a product string naming the
			// bridge is a stronger signal.
			if strings.Contains(strings.ToLower(port.Product), "bus pirate") {
				dev.Confidence = detection.High
			}
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
