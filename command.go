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

package sdcard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// exchange shifts one byte and wraps transport failures.
func (d *Device) exchange(out byte) (byte, error) {
	in, err := d.transport.Exchange(out)
	if err != nil {
		return frame.Filler, &TransportError{Op: "exchange", Type: d.transport.Type(), Err: err}
	}
	return in, nil
}

// exchangeBlock clocks w out and fills r, using one bulk transfer when the
// transport supports it.
func (d *Device) exchangeBlock(w, r []byte) error {
	if bulk, ok := d.bulkExchanger(); ok {
		if err := bulk.ExchangeBytes(w, r); err != nil {
			return &TransportError{Op: "bulk exchange", Type: d.transport.Type(), Err: err}
		}
		return nil
	}
	for i := range w {
		in, err := d.exchange(w[i])
		if err != nil {
			return err
		}
		r[i] = in
	}
	return nil
}

func (d *Device) selectCard() error {
	if err := d.transport.Select(); err != nil {
		return &TransportError{Op: "select", Type: d.transport.Type(), Err: err}
	}
	return nil
}

// deselectCard releases chip select and clocks one trailing 0xFF so the
// card lets go of the data-out line.
func (d *Device) deselectCard() error {
	var deselectErr error
	if err := d.transport.Deselect(); err != nil {
		deselectErr = &TransportError{Op: "deselect", Type: d.transport.Type(), Err: err}
	}
	if _, err := d.exchange(frame.Filler); err != nil && deselectErr == nil {
		deselectErr = err
	}
	return deselectErr
}

// sendCommand writes one command frame and polls for R1. It returns the
// 0xFF sentinel when no byte with bit 7 clear arrives within
// MaxResponsePolls exchanges. Chip select is left to the caller.
func (d *Device) sendCommand(index byte, arg uint32) (byte, error) {
	cmd := frame.Encode(index, arg)
	for _, b := range cmd {
		if _, err := d.exchange(b); err != nil {
			return frame.ResponseTimeout, err
		}
	}

	for range frame.MaxResponsePolls {
		r, err := d.exchange(frame.Filler)
		if err != nil {
			return frame.ResponseTimeout, err
		}
		if !frame.IsBusy(r) {
			debugf("CMD%d(0x%08X) -> 0x%02X %s", index, arg, r, frame.DescribeR1(r))
			return r, nil
		}
	}

	debugf("CMD%d(0x%08X) -> no response", index, arg)
	return frame.ResponseTimeout, nil
}

// sendAppCommand sends CMD55 followed by the application command on the
// same chip-select bracket and returns the second R1.
func (d *Device) sendAppCommand(index byte, arg uint32) (byte, error) {
	if _, err := d.sendCommand(frame.CmdAppCmd, 0); err != nil {
		return frame.ResponseTimeout, err
	}
	return d.sendCommand(index, arg)
}

// transact runs fn inside one select / deselect bracket. ctx is consulted
// only before the bracket opens. The card is deselected on every path.
func (d *Device) transact(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := d.selectCard()
	if err == nil {
		err = fn()
	}
	if derr := d.deselectCard(); derr != nil && err == nil {
		err = derr
	}
	return wrapTransport(op, err)
}

// command issues a single command in its own bracket.
func (d *Device) command(ctx context.Context, op string, index byte, arg uint32) (byte, error) {
	r := byte(frame.ResponseTimeout)
	err := d.transact(ctx, op, func() error {
		var err error
		r, err = d.sendCommand(index, arg)
		return err
	})
	return r, err
}

// wrapTransport turns a bare transport failure into a CardError. Errors that
// are already CardErrors or context errors pass through.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var cardErr *CardError
	if errors.As(err, &cardErr) {
		return err
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return newCardError(op, ErrTransportFailed, 0, err)
	}
	return err
}
