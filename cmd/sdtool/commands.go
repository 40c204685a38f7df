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
	"flag"
	"fmt"
	"io"
	"os"

	sdcard "github.com/ZaparooProject/go-sdcard"
	"github.com/ZaparooProject/go-sdcard/polling"
)

type command func(ctx context.Context, device *sdcard.Device, args []string, output *Output) error

var commands = map[string]command{
	"info":    runInfo,
	"read":    runRead,
	"write":   runWrite,
	"probe":   runProbe,
	"monitor": runMonitor,
}

// parseCommandFlags parses args into fs, mapping flag errors to errUsage.
func parseCommandFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}
	return nil
}

func runInfo(ctx context.Context, device *sdcard.Device, args []string, output *Output) error {
	if err := parseCommandFlags(flag.NewFlagSet("info", flag.ContinueOnError), args); err != nil {
		return err
	}

	geometry, err := initialize(ctx, device)
	if err != nil {
		return err
	}
	output.Geometry(geometry)

	cid, err := device.ReadCID()
	if err != nil {
		output.Warning("CID unavailable: %v", err)
		return nil
	}
	output.CID(cid)
	return nil
}

type readArgs struct {
	out    string
	sector uint64
	count  uint64
}

func parseReadArgs(args []string) (readArgs, error) {
	var ra readArgs
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.Uint64Var(&ra.sector, "sector", 0, "First sector to read")
	fs.Uint64Var(&ra.count, "count", 1, "Number of sectors to read")
	fs.StringVar(&ra.out, "out", "", "Write raw sector data to this file instead of a hex dump")
	if err := parseCommandFlags(fs, args); err != nil {
		return ra, err
	}
	if ra.count == 0 {
		return ra, fmt.Errorf("%w: -count must be at least 1", errUsage)
	}
	if ra.sector+ra.count > 1<<32 {
		return ra, fmt.Errorf("%w: sectors past 0xFFFFFFFF are not addressable", errUsage)
	}
	return ra, nil
}

func runRead(ctx context.Context, device *sdcard.Device, args []string, output *Output) error {
	ra, err := parseReadArgs(args)
	if err != nil {
		return err
	}
	if _, err := initialize(ctx, device); err != nil {
		return err
	}

	var sink io.Writer
	if ra.out != "" {
		f, err := os.Create(ra.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		sink = f
	}

	buf := make([]byte, sdcard.SectorSize)
	for i := range ra.count {
		sector := uint32(ra.sector + i)
		if err := device.ReadSectorContext(ctx, sector, buf); err != nil {
			return fmt.Errorf("read sector %d: %w", sector, err)
		}
		if sink == nil {
			output.Sector(sector, buf)
			continue
		}
		if _, err := sink.Write(buf); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	}

	if sink != nil {
		output.OK("Saved %d sector(s) to %s", ra.count, ra.out)
	}
	return nil
}

type writeArgs struct {
	in     string
	sector uint64
}

func parseWriteArgs(args []string) (writeArgs, error) {
	var wa writeArgs
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	fs.Uint64Var(&wa.sector, "sector", 0, "First sector to write")
	fs.StringVar(&wa.in, "in", "", "File holding whole sectors to write")
	if err := parseCommandFlags(fs, args); err != nil {
		return wa, err
	}
	if wa.in == "" {
		return wa, fmt.Errorf("%w: -in is required", errUsage)
	}
	if wa.sector > 0xFFFFFFFF {
		return wa, fmt.Errorf("%w: sector %d is not addressable", errUsage, wa.sector)
	}
	return wa, nil
}

func runWrite(ctx context.Context, device *sdcard.Device, args []string, output *Output) error {
	wa, err := parseWriteArgs(args)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(wa.in)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	if len(data) == 0 || len(data)%sdcard.SectorSize != 0 {
		return fmt.Errorf("input is %d bytes, want a non-zero multiple of %d", len(data), sdcard.SectorSize)
	}

	if _, err := initialize(ctx, device); err != nil {
		return err
	}

	blocks := sdcard.NewBlockDevice(device)
	if err := blocks.WriteBlocks(data, int64(wa.sector)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	output.OK("Wrote %d sector(s) starting at %d", len(data)/sdcard.SectorSize, wa.sector)
	return nil
}

func runProbe(ctx context.Context, device *sdcard.Device, args []string, output *Output) error {
	if err := parseCommandFlags(flag.NewFlagSet("probe", flag.ContinueOnError), args); err != nil {
		return err
	}

	geometry, err := initialize(ctx, device)
	if err != nil {
		output.Warning("%v", err)
		return errors.New("no card")
	}
	if !device.IsPresent() {
		return errors.New("card initialized but stopped answering")
	}
	output.OK("Card present: %s, %s addressed", formatSize(geometry.SizeBytes), geometry.AddressMode)
	return nil
}

func runMonitor(ctx context.Context, device *sdcard.Device, args []string, output *Output) error {
	config := polling.DefaultConfig()
	config.AutoReinitialize = true

	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	fs.DurationVar(&config.PollInterval, "interval", polling.DefaultPollInterval, "Delay between presence probes")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}

	monitor := polling.NewMonitor(device, config)
	monitor.OnCardInserted = func(geometry sdcard.CardGeometry) {
		output.Event("inserted: %s, %s addressed", formatSize(geometry.SizeBytes), geometry.AddressMode)
	}
	monitor.OnCardRemoved = func() {
		output.Event("removed")
	}

	output.Info("Monitoring card slot every %s (Ctrl+C to stop)...", config.PollInterval)
	err := monitor.Start(ctx)
	if errors.Is(err, context.Canceled) {
		status := monitor.Status()
		output.Info("Stopped after %d insertion(s) and %d removal(s)", status.Insertions, status.Removals)
		return nil
	}
	return err
}

func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
