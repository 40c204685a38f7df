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

// Command sdtool inspects and edits an SD card attached over SPI.
//
// Usage:
//
//	sdtool [-device path] [-cs pin] [-clock hz] [-debug] <command> [flags]
//
// Commands are info, read, write, probe and monitor. Without -device the
// first detected adapter is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

var errUsage = errors.New("usage error")

type config struct {
	devicePath *string
	chipSelect *string
	debug      *bool
	timeout    *time.Duration
	clockHz    *int64
}

func parseFlags() *config {
	cfg := &config{
		devicePath: flag.String("device", "",
			"SPI bus (e.g., SPI0.0 or /dev/spidev0.0) or serial bridge port. Leave empty for auto-detection."),
		chipSelect: flag.String("cs", "", "GPIO pin driving chip select on an SPI bus (e.g., GPIO25)"),
		debug:      flag.Bool("debug", false, "Enable debug output"),
		timeout:    flag.Duration("timeout", 10*time.Second, "Timeout for adapter detection"),
		clockHz:    flag.Int64("clock", 0, "Bus clock in Hz once the card is ready (0 keeps the init clock)"),
	}
	flag.Usage = usage
	flag.Parse()

	if *cfg.debug {
		sdcard.SetDebugEnabled(true)
	}
	return cfg
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\n", os.Args[0])
	_, _ = fmt.Fprint(out, "Commands:\n")
	_, _ = fmt.Fprint(out, "  info                       show card geometry and identification\n")
	_, _ = fmt.Fprint(out, "  read -sector N [-count C] [-out file]\n")
	_, _ = fmt.Fprint(out, "                             hex dump sectors, or save them raw\n")
	_, _ = fmt.Fprint(out, "  write -sector N -in file   write a file of whole sectors\n")
	_, _ = fmt.Fprint(out, "  probe                      check whether the card answers\n")
	_, _ = fmt.Fprint(out, "  monitor [-interval d]      report insertion and removal\n\n")
	_, _ = fmt.Fprint(out, "Flags:\n")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := parseFlags()
	output := NewOutput(os.Stdout, *cfg.debug)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, ok := commands[args[0]]
	if !ok {
		output.Error("unknown command %q", args[0])
		flag.Usage()
		return 2
	}

	device, err := openDevice(ctx, cfg, output)
	if err != nil {
		output.Error("%v", err)
		return 1
	}
	defer func() { _ = device.Close() }()

	if err := cmd(ctx, device, args[1:], output); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		output.Error("%v", err)
		return 1
	}
	return 0
}
