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

// Package spi detects Linux spidev nodes that can host an SD card.
package spi

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-sdcard/detection"
)

const nodePattern = "/dev/spidev*"

type detector struct {
	glob   func(pattern string) ([]string, error)
	access func(path string) bool
}

// New creates a spidev detector.
func New() detection.Detector {
	return &detector{glob: filepath.Glob, access: accessible}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect lists spidev nodes. In Safe mode each node is checked for
// read/write permission and inaccessible nodes are reported with Low
// confidence.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	nodes, err := d.glob(nodePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for spidev nodes: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, node := range nodes {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		dev, ok := d.describe(node, opts)
		if ok {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) describe(node string, opts *detection.Options) (detection.DeviceInfo, bool) {
	bus, cs, ok := parseNode(node)
	if !ok {
		return detection.DeviceInfo{}, false
	}

	name := fmt.Sprintf("SPI%d.%d", bus, cs)
	if detection.IsPathIgnored(node, opts.IgnorePaths) || detection.IsPathIgnored(name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	dev := detection.DeviceInfo{
		Transport:  "spi",
		Path:       name,
		Name:       fmt.Sprintf("spidev bus %d chip select %d", bus, cs),
		Confidence: detection.Medium,
		Metadata: map[string]string{
			"node": node,
			"bus":  strconv.Itoa(bus),
			"cs":   strconv.Itoa(cs),
		},
	}

	if opts.Mode == detection.Safe {
		if d.access(node) {
			dev.Metadata["access"] = "rw"
		} else {
			dev.Confidence = detection.Low
			dev.Metadata["access"] = "denied"
		}
	}
	return dev, true
}

// parseNode splits /dev/spidevB.C into its bus and chip select numbers.
func parseNode(node string) (bus, cs int, ok bool) {
	rest, found := strings.CutPrefix(filepath.Base(node), "spidev")
	if !found {
		return 0, 0, false
	}
	b, c, found := strings.Cut(rest, ".")
	if !found {
		return 0, 0, false
	}
	var err error
	if bus, err = strconv.Atoi(b); err != nil || bus < 0 {
		return 0, 0, false
	}
	if cs, err = strconv.Atoi(c); err != nil || cs < 0 {
		return 0, 0, false
	}
	return bus, cs, true
}
