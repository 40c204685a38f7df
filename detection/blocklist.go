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
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// DefaultBlocklist returns USB serial devices that share a vendor with a
// supported SPI bridge but never run the bridge firmware.
// Entries are VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"0403:6014", // FT232H in MPSSE mode is claimed by libftdi, not a tty
	}
}

// IsBlocked reports whether vidpid appears in blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = normalizeVIDPID(vidpid)
	return slices.ContainsFunc(blocklist, func(b string) bool {
		return normalizeVIDPID(b) == vidpid
	})
}

func normalizeVIDPID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var (
	vidField = regexp.MustCompile(`(?:VID[:=]|VENDOR=)([0-9A-F]+)`)
	pidField = regexp.MustCompile(`(?:PID[:=]|PRODUCT=)([0-9A-F]+)`)
	bareID   = regexp.MustCompile(`^([0-9A-F]+):([0-9A-F]+)$`)
)

// ParseVIDPID extracts a VID:PID pair from a USB descriptor string such as
// "USB VID:0403 PID:6001", "vendor=04d8 product=fb00" or "0403:6001".
// It returns "" when no pair is found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	vid := vidField.FindStringSubmatch(descriptor)
	pid := pidField.FindStringSubmatch(descriptor)
	if vid != nil && pid != nil {
		return vid[1] + ":" + pid[1]
	}

	if m := bareID.FindStringSubmatch(descriptor); m != nil {
		return m[1] + ":" + m[2]
	}
	return ""
}

// IsPathIgnored reports whether devicePath matches an entry in ignorePaths.
// Paths are compared after cleaning and case folding, so "COM3" matches
// "com3" and "/dev/../dev/ttyUSB0" matches "/dev/ttyUSB0".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
