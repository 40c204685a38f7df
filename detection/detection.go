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

// Package detection finds host adapters that can carry an SD card in SPI
// mode. Transport-specific detectors register themselves on import:
//
//	import (
//		"github.com/ZaparooProject/go-sdcard/detection"
//		_ "github.com/ZaparooProject/go-sdcard/detection/spi"
//		_ "github.com/ZaparooProject/go-sdcard/detection/uart"
//	)
//
//	opts := detection.DefaultOptions()
//	devices, err := detection.DetectAll(&opts)
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoDevicesFound is returned when no detector produced a candidate.
	ErrNoDevicesFound = errors.New("no SD card adapters found")
	// ErrUnsupportedPlatform is returned by detectors that cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	// ErrDetectionTimeout is returned when the detection context expires.
	ErrDetectionTimeout = errors.New("detection timed out")
)

// Mode controls how intrusive detection is allowed to be.
type Mode int

const (
	// Passive only inspects the OS device tree.
	Passive Mode = iota
	// Safe may open a device node to check that it is accessible.
	Safe
)

// Confidence ranks how likely a candidate is to be usable.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
}

// DeviceInfo describes a detected adapter.
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// String formats the device for display.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s:%s (%s, %s confidence)", d.Transport, d.Path, d.Name, d.Confidence)
}

// Options configures a detection run.
type Options struct {
	// Blocklist holds VID:PID pairs that must never be reported.
	Blocklist []string
	// IgnorePaths holds device paths to skip.
	IgnorePaths []string
	// Transports restricts the run to these transport names. Empty means all.
	Transports []string
	Timeout    time.Duration
	Mode       Mode
}

// DefaultOptions returns passive detection with the default blocklist.
func DefaultOptions() Options {
	return Options{
		Blocklist: DefaultBlocklist(),
		Timeout:   5 * time.Second,
		Mode:      Passive,
	}
}

// Detector finds candidates for a single transport.
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector adds d to the global registry, replacing any detector
// already registered for the same transport.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Detectors returns the registered detectors sorted by transport name.
func Detectors() []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Detector, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Transport() < out[j].Transport() })
	return out
}

// DetectAll runs every registered detector. A nil opts uses DefaultOptions.
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	return DetectAllContext(context.Background(), opts)
}

// DetectAllContext runs every registered detector under ctx, bounded by
// opts.Timeout when it is set.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return detectWith(ctx, Detectors(), opts)
}

func detectWith(ctx context.Context, detectors []Detector, opts *Options) ([]DeviceInfo, error) {
	var (
		devices []DeviceInfo
		errs    []error
	)

	for _, d := range detectors {
		if !wantTransport(d.Transport(), opts.Transports) {
			continue
		}
		if ctx.Err() != nil {
			return devices, ErrDetectionTimeout
		}

		found, err := d.Detect(ctx, opts)
		switch {
		case errors.Is(err, ErrNoDevicesFound), errors.Is(err, ErrUnsupportedPlatform):
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", d.Transport(), err))
		}
		for _, dev := range found {
			if IsPathIgnored(dev.Path, opts.IgnorePaths) {
				continue
			}
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	// Most likely candidates first.
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func wantTransport(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}
