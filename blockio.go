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
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
	transportutil "github.com/ZaparooProject/go-sdcard/internal/transport"
)

// SectorSize is the fixed transfer unit in bytes.
const SectorSize = frame.SectorSize

// fillerBlock is clocked out while receiving a data block. Never written.
var fillerBlock = bytes.Repeat([]byte{frame.Filler}, frame.SectorSize)

// ReadSector reads one sector into a new buffer.
func (d *Device) ReadSector(sector uint32) ([]byte, error) {
	buf := make([]byte, SectorSize)
	if err := d.ReadSectorContext(context.Background(), sector, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSectorInto reads one sector into buf, which must hold at least
// SectorSize bytes.
func (d *Device) ReadSectorInto(sector uint32, buf []byte) error {
	return d.ReadSectorContext(context.Background(), sector, buf)
}

// ReadSectorContext is ReadSectorInto with a context checked before the
// transaction starts.
func (d *Device) ReadSectorContext(ctx context.Context, sector uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readSector(ctx, sector, buf)
}

func (d *Device) readSector(ctx context.Context, sector uint32, buf []byte) error {
	const op = "read sector"
	if err := d.requireReady(op); err != nil {
		return withSector(err, sector)
	}
	if len(buf) < SectorSize {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrInvalidParameter, len(buf), SectorSize)
	}
	arg, err := d.geometry.sectorArgument(sector)
	if err != nil {
		return err
	}

	err = d.transact(ctx, op, func() error {
		r, err := d.sendCommand(frame.CmdReadSingleBlock, arg)
		if err != nil {
			return err
		}
		if r != frame.R1Ready {
			return newSectorError(op, sector, ErrCommandRejected, r, nil)
		}
		return d.receiveDataBlock(op, buf[:SectorSize])
	})
	return withSector(err, sector)
}

// WriteSector writes exactly SectorSize bytes to sector.
func (d *Device) WriteSector(sector uint32, data []byte) error {
	return d.WriteSectorContext(context.Background(), sector, data)
}

// WriteSectorContext is WriteSector with a context checked before the
// transaction starts. A nil error means the card accepted the block and
// finished programming it.
func (d *Device) WriteSectorContext(ctx context.Context, sector uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeSector(ctx, sector, data)
}

// patchSector overwrites part of sector with p starting at byte within.
// The read and the write back run under one lock, so concurrent patches to
// disjoint bytes of the same sector cannot lose each other's update.
func (d *Device) patchSector(ctx context.Context, sector uint32, within int, p []byte) error {
	if within < 0 || within+len(p) > SectorSize {
		return fmt.Errorf("%w: patch [%d,%d) outside sector", ErrInvalidParameter, within, within+len(p))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var buf [SectorSize]byte
	if len(p) < SectorSize {
		if err := d.readSector(ctx, sector, buf[:]); err != nil {
			return err
		}
	}
	copy(buf[within:], p)
	return d.writeSector(ctx, sector, buf[:])
}

func (d *Device) writeSector(ctx context.Context, sector uint32, data []byte) error {
	const op = "write sector"
	if err := d.requireReady(op); err != nil {
		return withSector(err, sector)
	}
	if len(data) != SectorSize {
		return fmt.Errorf("%w: write of %d bytes, need exactly %d", ErrInvalidParameter, len(data), SectorSize)
	}
	arg, err := d.geometry.sectorArgument(sector)
	if err != nil {
		return err
	}

	err = d.transact(ctx, op, func() error {
		r, err := d.sendCommand(frame.CmdWriteBlock, arg)
		if err != nil {
			return err
		}
		if r != frame.R1Ready {
			return newSectorError(op, sector, ErrWriteRejected, r, nil)
		}
		return d.sendDataBlock(op, sector, data)
	})
	return withSector(err, sector)
}

// sendDataBlock sends the start token, payload and placeholder CRC, checks
// the data response and waits for programming to finish.
func (d *Device) sendDataBlock(op string, sector uint32, data []byte) error {
	if _, err := d.exchange(frame.TokenStartBlock); err != nil {
		return err
	}
	discard := make([]byte, len(data))
	if err := d.exchangeBlock(data, discard); err != nil {
		return err
	}
	crc := []byte{frame.Filler, frame.Filler}
	if err := d.exchangeBlock(crc, discard[:frame.CRCLength]); err != nil {
		return err
	}

	resp, err := d.exchange(frame.Filler)
	if err != nil {
		return err
	}
	if frame.DataResponse(resp) != frame.DataAccepted {
		debugf("sector %d write refused: 0x%02X %s", sector, resp, frame.DescribeDataResponse(resp))
		e := newSectorError(op, sector, ErrWriteRejected, resp, nil)
		e.dataResponse = true
		return e
	}

	return d.waitReady(op)
}

// receiveDataBlock waits for the start token and reads len(buf) bytes plus
// the two CRC bytes, which are discarded.
func (d *Device) receiveDataBlock(op string, buf []byte) error {
	token, err := transportutil.PollUntil(d.clock, d.config.Timing.DataTokenTimeout, 0,
		func() (byte, bool, error) {
			b, err := d.exchange(frame.Filler)
			if err != nil {
				return b, false, err
			}
			if b == frame.TokenStartBlock || frame.IsDataErrorToken(b) {
				return b, false, nil
			}
			return b, true, nil
		})
	if errors.Is(err, transportutil.ErrDeadlineExceeded) {
		return newCardError(op, ErrDataTimeout, 0, nil)
	}
	if err != nil {
		return err
	}
	if token != frame.TokenStartBlock {
		return newCardError(op, ErrCommandRejected, token, nil)
	}

	if err := d.exchangeBlock(fillerBlock[:len(buf)], buf); err != nil {
		return err
	}
	var crc [frame.CRCLength]byte
	return d.exchangeBlock(fillerBlock[:frame.CRCLength], crc[:])
}

// waitReady polls until the card stops holding the data line low.
func (d *Device) waitReady(op string) error {
	_, err := transportutil.PollUntil(d.clock, d.config.Timing.ReadyTimeout, 0,
		func() (byte, bool, error) {
			b, err := d.exchange(frame.Filler)
			if err != nil {
				return b, false, err
			}
			return b, b != frame.Filler, nil
		})
	if errors.Is(err, transportutil.ErrDeadlineExceeded) {
		return newCardError(op, ErrDataTimeout, 0, nil)
	}
	return err
}

// readRegister reads a 16-byte register sent as a data block.
func (d *Device) readRegister(ctx context.Context, op string, index byte) ([]byte, error) {
	reg := make([]byte, frame.RegisterSize)
	err := d.transact(ctx, op, func() error {
		r, err := d.sendCommand(index, 0)
		if err != nil {
			return err
		}
		if r != frame.R1Ready {
			return newCardError(op, ErrCommandRejected, r, nil)
		}
		return d.receiveDataBlock(op, reg)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ReadCSD returns the raw 16-byte card-specific data register.
func (d *Device) ReadCSD() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireReady("read CSD"); err != nil {
		return nil, err
	}
	return d.readRegister(context.Background(), "read CSD", frame.CmdSendCSD)
}

// ReadCID reads and decodes the card identification register.
func (d *Device) ReadCID() (CID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireReady("read CID"); err != nil {
		return CID{}, err
	}
	raw, err := d.readRegister(context.Background(), "read CID", frame.CmdSendCID)
	if err != nil {
		return CID{}, err
	}
	return ParseCID(raw)
}
