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
	"math"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
	transportutil "github.com/ZaparooProject/go-sdcard/internal/transport"
)

// Initialize runs the power-up sequence and returns the card geometry.
func (d *Device) Initialize() (CardGeometry, error) {
	return d.InitializeContext(context.Background())
}

// InitializeContext runs the power-up sequence: bus wake, idle reset,
// interface condition, operating-condition polling, OCR capacity check,
// block length and CSD. ctx is checked between bus transactions only.
//
// Any previous geometry is discarded first. On failure the state is
// StateFailed and the card is left deselected.
func (d *Device) InitializeContext(ctx context.Context) (CardGeometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return CardGeometry{}, ErrDeviceClosed
	}

	d.state = StateUninitialized
	d.geometry = CardGeometry{}

	if d.transport == nil {
		d.state = StateFailed
		return CardGeometry{}, newCardError("initialize", ErrNoCsConfigured, 0, nil)
	}

	d.state = StateInitializing
	geometry, err := d.initialize(ctx)
	if err != nil {
		debugf("initialization failed: %v", err)
		d.state = StateFailed
		return CardGeometry{}, err
	}

	d.geometry = geometry
	d.state = StateReady
	d.raiseClock()

	debugf("card ready: %s addressing, %d bytes", geometry.AddressMode, geometry.SizeBytes)
	return geometry, nil
}

// Reset wakes the bus and puts the card into the idle state without
// completing initialization. The state ends Uninitialized, or Failed if the
// card did not respond.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}

	d.state = StateUninitialized
	d.geometry = CardGeometry{}

	if d.transport == nil {
		d.state = StateFailed
		return newCardError("reset", ErrNoCsConfigured, 0, nil)
	}

	if err := d.wake(ctx); err != nil {
		d.state = StateFailed
		return err
	}
	if err := d.goIdle(ctx); err != nil {
		d.state = StateFailed
		return err
	}
	return nil
}

func (d *Device) initialize(ctx context.Context) (CardGeometry, error) {
	if err := d.wake(ctx); err != nil {
		return CardGeometry{}, err
	}
	if err := d.goIdle(ctx); err != nil {
		return CardGeometry{}, err
	}

	highCapacity, err := d.checkInterfaceCondition(ctx)
	if err != nil {
		return CardGeometry{}, err
	}

	if err := d.waitOperatingCondition(ctx, highCapacity); err != nil {
		return CardGeometry{}, err
	}

	geometry := CardGeometry{AddressMode: ByteAddressed}
	if highCapacity {
		geometry.AddressMode = BlockAddressed
		mode, err := d.capacityFromOCR(ctx)
		if err != nil {
			return CardGeometry{}, err
		}
		if mode != AddressUnknown {
			geometry.AddressMode = mode
		}
	}

	if err := d.setBlockLength(ctx); err != nil {
		return CardGeometry{}, err
	}

	csd, err := d.readRegister(ctx, "read CSD", frame.CmdSendCSD)
	switch {
	case err == nil:
	case errors.Is(err, ErrCommandRejected), errors.Is(err, ErrDataTimeout):
		// The card declined; capacity stays unknown.
		debugf("CSD unavailable, capacity unknown: %v", err)
		return geometry, nil
	default:
		return CardGeometry{}, err
	}
	size, version, err := CapacityFromCSD(csd)
	if err != nil {
		debugf("CSD not decoded: %v", err)
		return geometry, nil
	}
	geometry.SizeBytes = size
	geometry.CSDVersion = version
	geometry.SectorCount = uint32(min(size/frame.SectorSize, math.MaxUint32))

	return geometry, nil
}

// wake releases chip select and clocks at least 74 cycles so the card
// enters its native command state.
func (d *Device) wake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.deselectCard(); err != nil {
		return wrapTransport("wake", err)
	}
	for range d.config.Timing.WakeClocks {
		if _, err := d.exchange(frame.Filler); err != nil {
			return wrapTransport("wake", err)
		}
	}
	return nil
}

func (d *Device) goIdle(ctx context.Context) error {
	r, err := d.command(ctx, "go idle", frame.CmdGoIdleState, 0)
	if err != nil {
		return err
	}
	if r != frame.R1IdleState {
		return newCardError("go idle", ErrIdleResetFailed, r, nil)
	}
	return nil
}

// checkInterfaceCondition sends CMD8. Only an idle R1 marks a v2 card;
// anything else is a legacy card and not an error.
func (d *Device) checkInterfaceCondition(ctx context.Context) (bool, error) {
	r, err := d.command(ctx, "interface condition", frame.CmdSendIfCond, frame.IfCondArgument)
	if err != nil {
		return false, err
	}
	return r == frame.R1IdleState, nil
}

func (d *Device) waitOperatingCondition(ctx context.Context, highCapacity bool) error {
	var arg uint32
	if highCapacity {
		arg = frame.OpCondHighCapacity
	}

	last := byte(frame.ResponseTimeout)
	_, err := transportutil.PollUntil(d.clock, d.config.Timing.InitTimeout, d.config.Timing.OperatingConditionPollDelay,
		func() (byte, bool, error) {
			err := d.transact(ctx, "operating condition", func() error {
				var err error
				last, err = d.sendAppCommand(frame.CmdAppSendOpCond, arg)
				return err
			})
			if err != nil {
				return last, false, err
			}
			return last, last != frame.R1Ready, nil
		})
	if errors.Is(err, transportutil.ErrDeadlineExceeded) {
		return newCardError("operating condition", ErrOperatingConditionTimeout, last, nil)
	}
	return err
}

// capacityFromOCR reads the OCR and reports the address mode from the
// card-capacity bit. AddressUnknown means the OCR could not be trusted.
func (d *Device) capacityFromOCR(ctx context.Context) (AddressMode, error) {
	var ocr [frame.OCRLength]byte
	r := byte(frame.ResponseTimeout)
	err := d.transact(ctx, "read OCR", func() error {
		var err error
		r, err = d.sendCommand(frame.CmdReadOCR, 0)
		if err != nil || r != frame.R1Ready {
			return err
		}
		for i := range ocr {
			if ocr[i], err = d.exchange(frame.Filler); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return AddressUnknown, err
	case err != nil:
		debugf("OCR read failed, keeping CMD8 addressing: %v", err)
		return AddressUnknown, nil
	case r != frame.R1Ready || ocr[0]&frame.OCRPowerUpStatus == 0:
		debugf("OCR not usable (R1 0x%02X, OCR 0x%02X), keeping CMD8 addressing", r, ocr[0])
		return AddressUnknown, nil
	case ocr[0]&frame.OCRCapacityState != 0:
		return BlockAddressed, nil
	default:
		return ByteAddressed, nil
	}
}

func (d *Device) setBlockLength(ctx context.Context) error {
	r, err := d.command(ctx, "set block length", frame.CmdSetBlockLen, frame.SectorSize)
	if err != nil {
		return err
	}
	if r != frame.R1Ready {
		return newCardError("set block length", ErrBlockLengthRejected, r, nil)
	}
	return nil
}

// raiseClock applies the configured fast clock. Failure keeps the card
// usable at the initialization rate.
func (d *Device) raiseClock() {
	if d.config.FastClockHz == 0 {
		return
	}
	setter, ok := d.transport.(ClockRateSetter)
	if !ok {
		debugf("transport %s cannot change clock rate", d.transport.Type())
		return
	}
	if err := setter.SetClockRate(d.config.FastClockHz); err != nil {
		debugf("failed to raise clock to %d Hz: %v", d.config.FastClockHz, err)
	}
}
