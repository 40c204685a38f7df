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
	"fmt"
	"io"
)

// BlockDevice presents an initialized Device as a flat array of sectors.
// Multi-sector calls are loops of single-sector transfers; each sector is
// its own locked transaction.
type BlockDevice struct {
	dev *Device
}

// NewBlockDevice wraps dev. dev must be initialized before use.
func NewBlockDevice(dev *Device) *BlockDevice {
	return &BlockDevice{dev: dev}
}

// BlockSize returns the sector size in bytes.
func (*BlockDevice) BlockSize() int {
	return SectorSize
}

// BlockCount returns the number of sectors, or 0 when the capacity is unknown.
func (b *BlockDevice) BlockCount() int64 {
	return int64(b.dev.Geometry().SectorCount)
}

// Size returns the card capacity in bytes.
func (b *BlockDevice) Size() int64 {
	return int64(b.dev.Geometry().SizeBytes)
}

// ReadBlocks fills dst, whose length must be a multiple of the block size,
// starting at startBlock.
func (b *BlockDevice) ReadBlocks(dst []byte, startBlock int64) error {
	if err := checkBlockRange(len(dst), startBlock); err != nil {
		return err
	}
	for i := 0; i < len(dst)/SectorSize; i++ {
		sector := uint32(startBlock) + uint32(i)
		if err := b.dev.ReadSectorInto(sector, dst[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteBlocks writes data, whose length must be a multiple of the block
// size, starting at startBlock. It stops at the first rejected sector.
func (b *BlockDevice) WriteBlocks(data []byte, startBlock int64) error {
	if err := checkBlockRange(len(data), startBlock); err != nil {
		return err
	}
	for i := 0; i < len(data)/SectorSize; i++ {
		sector := uint32(startBlock) + uint32(i)
		if err := b.dev.WriteSector(sector, data[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

func checkBlockRange(n int, startBlock int64) error {
	if n%SectorSize != 0 {
		return fmt.Errorf("%w: length %d not a multiple of %d", ErrInvalidParameter, n, SectorSize)
	}
	if startBlock < 0 || startBlock+int64(n/SectorSize) > 1<<32 {
		return fmt.Errorf("%w: block range out of bounds", ErrInvalidParameter)
	}
	return nil
}

// ReadAt implements io.ReaderAt. Unaligned ranges read whole sectors and
// copy out the requested bytes.
func (b *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidParameter)
	}
	if size := b.Size(); size > 0 && off >= size {
		return 0, io.EOF
	}

	var sector [SectorSize]byte
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if size := b.Size(); size > 0 && pos >= size {
			return n, io.EOF
		}
		if err := b.dev.ReadSectorInto(uint32(pos/SectorSize), sector[:]); err != nil {
			return n, err
		}
		n += copy(p[n:], sector[pos%SectorSize:])
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Partial sectors are read, patched and
// written back as one locked transaction pair, so parallel WriteAt calls on
// disjoint ranges are safe.
func (b *BlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidParameter)
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if size := b.Size(); size > 0 && pos >= size {
			return n, fmt.Errorf("%w: offset %d past end of card", io.ErrShortWrite, pos)
		}
		within := int(pos % SectorSize)
		c := min(SectorSize-within, len(p)-n)
		if err := b.dev.patchSector(context.Background(), uint32(pos/SectorSize), within, p[n:n+c]); err != nil {
			return n, err
		}
		n += c
	}
	return n, nil
}
