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

package testing

import (
	"sync"
	"time"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// ExchangeDuration is how far the card's clock moves on every byte exchange.
const ExchangeDuration = 10 * time.Microsecond

// CardKind selects which generation of card the simulator behaves as.
type CardKind int

const (
	// KindHighCapacity is an SDHC/SDXC card: answers CMD8, block addressed.
	KindHighCapacity CardKind = iota
	// KindStandardV2 is a v2 standard capacity card: answers CMD8, byte addressed.
	KindStandardV2
	// KindLegacyV1 is a v1 card: rejects CMD8 as illegal, byte addressed.
	KindLegacyV1
)

// RecordedCommand is a command frame as the card received it.
type RecordedCommand struct {
	Argument uint32
	Index    byte
	Checksum byte
}

type writePhase int

const (
	writeAwaitToken writePhase = iota
	writePayload
	writeChecksum
)

type pendingWrite struct {
	data   []byte
	sector uint32
	crc    int
	phase  writePhase
}

// VirtualCard simulates an SD card in SPI mode at the byte level. It
// implements the exchange / select / deselect half of a transport plus a
// fake clock that advances on every exchange.
type VirtualCard struct {
	exchangeErr   error
	clock         *FakeClock
	pending       *pendingWrite
	sectors       map[uint32][]byte
	cid           []byte
	out           []byte
	cmdBuf        []byte
	commands      []RecordedCommand
	trailing      []int
	capacity      uint64
	opCondPolls   int
	opCondSeen    int
	busyCycles    int
	busy          int // remaining busy bytes, -1 for forever
	deselects     int
	mu            sync.Mutex
	kind          CardKind
	writeResponse byte
	present       bool
	selected      bool
	spiMode       bool
	idle          bool
	appCmd        bool
	idleForever   bool
	rejectGoIdle  bool
	rejectBlkLen  bool
	rejectRegs    bool
	withholdToken bool
	busyForever   bool
	counting      bool
}

// NewVirtualSDHC creates a high capacity card with the default size.
func NewVirtualSDHC() *VirtualCard {
	return newVirtualCard(KindHighCapacity, DefaultHighCapacityBytes)
}

// NewVirtualSDSC creates a v2 standard capacity card.
func NewVirtualSDSC() *VirtualCard {
	return newVirtualCard(KindStandardV2, DefaultStandardCapacityBytes)
}

// NewVirtualSDv1 creates a legacy v1 card.
func NewVirtualSDv1() *VirtualCard {
	return newVirtualCard(KindLegacyV1, DefaultStandardCapacityBytes)
}

func newVirtualCard(kind CardKind, capacity uint64) *VirtualCard {
	return &VirtualCard{
		clock:    NewFakeClock(),
		sectors:  make(map[uint32][]byte),
		cid:      TestCID,
		kind:     kind,
		capacity: capacity,
		present:  true,
	}
}

// Clock returns the card's fake clock.
func (v *VirtualCard) Clock() *FakeClock {
	return v.clock
}

// Millis implements the transport clock.
func (v *VirtualCard) Millis() uint64 {
	return v.clock.Millis()
}

// Sleep implements the transport clock.
func (v *VirtualCard) Sleep(d time.Duration) {
	v.clock.Sleep(d)
}

// Select asserts chip select.
func (v *VirtualCard) Select() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = true
	v.counting = false
	return nil
}

// Deselect releases chip select. Anything the card was still sending is
// dropped, and an unfinished write is abandoned.
func (v *VirtualCard) Deselect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = false
	v.out = nil
	v.cmdBuf = nil
	v.pending = nil
	v.busy = 0
	v.deselects++
	v.trailing = append(v.trailing, 0)
	v.counting = true
	return nil
}

// Exchange clocks one byte in each direction.
func (v *VirtualCard) Exchange(out byte) (byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.clock.Advance(ExchangeDuration)
	if v.exchangeErr != nil {
		return 0, v.exchangeErr
	}
	if v.counting {
		v.trailing[len(v.trailing)-1]++
	}
	if !v.selected || !v.present {
		return frame.Filler, nil
	}

	in := byte(frame.Filler)
	switch {
	case len(v.out) > 0:
		in = v.out[0]
		v.out = v.out[1:]
	case v.busy != 0:
		in = 0x00
		if v.busy > 0 {
			v.busy--
		}
	}

	v.consume(out)
	return in, nil
}

func (v *VirtualCard) consume(b byte) {
	if v.pending != nil {
		v.consumeWrite(b)
		return
	}

	if len(v.cmdBuf) == 0 && !frame.IsCommandStart(b) {
		return
	}
	v.cmdBuf = append(v.cmdBuf, b)
	if len(v.cmdBuf) < frame.CommandLength {
		return
	}

	index, arg, checksum, _ := frame.Decode(v.cmdBuf)
	v.cmdBuf = nil
	v.commands = append(v.commands, RecordedCommand{Index: index, Argument: arg, Checksum: checksum})
	v.out = nil
	v.execute(index, arg, checksum)
}

func (v *VirtualCard) consumeWrite(b byte) {
	w := v.pending
	switch w.phase {
	case writeAwaitToken:
		if b == frame.TokenStartBlock {
			w.phase = writePayload
		}
	case writePayload:
		w.data = append(w.data, b)
		if len(w.data) == frame.SectorSize {
			w.phase = writeChecksum
		}
	case writeChecksum:
		w.crc++
		if w.crc < frame.CRCLength {
			return
		}
		v.pending = nil
		resp := byte(0xE0 | frame.DataAccepted)
		if v.writeResponse != 0 {
			resp = v.writeResponse
		}
		if frame.DataResponse(resp) == frame.DataAccepted {
			v.sectors[w.sector] = w.data
		}
		v.out = append(v.out, resp)
		v.busy = v.busyCycles
		if v.busyForever {
			v.busy = -1
		}
	}
}

func (v *VirtualCard) idleBit() byte {
	if v.idle {
		return frame.R1IdleState
	}
	return frame.R1Ready
}

func (v *VirtualCard) respond(b ...byte) {
	// one byte of Ncr before the response
	v.out = append(v.out, frame.Filler)
	v.out = append(v.out, b...)
}

func (v *VirtualCard) execute(index byte, arg uint32, checksum byte) {
	app := v.appCmd
	v.appCmd = false

	if index == frame.CmdGoIdleState {
		v.goIdle(checksum)
		return
	}
	if !v.spiMode {
		return
	}

	switch {
	case index == frame.CmdSendIfCond:
		v.sendIfCond(arg, checksum)
	case index == frame.CmdAppCmd:
		v.appCmd = true
		v.respond(v.idleBit())
	case index == frame.CmdAppSendOpCond && app:
		v.sendOpCond(arg)
	case index == frame.CmdReadOCR:
		v.readOCR()
	case index == frame.CmdSetBlockLen:
		v.setBlockLen(arg)
	case index == frame.CmdSendCSD:
		v.sendRegister(v.csd())
	case index == frame.CmdSendCID:
		v.sendRegister(v.cid)
	case index == frame.CmdReadSingleBlock:
		v.readBlock(arg)
	case index == frame.CmdWriteBlock:
		v.writeBlock(arg)
	default:
		v.respond(v.idleBit() | frame.R1IllegalCommand)
	}
}

func (v *VirtualCard) goIdle(checksum byte) {
	if v.rejectGoIdle {
		return
	}
	// CRC is still checked until the card is in SPI mode
	if !v.spiMode && checksum != frame.ChecksumGoIdle {
		return
	}
	v.spiMode = true
	v.idle = true
	v.opCondSeen = 0
	v.respond(frame.R1IdleState)
}

func (v *VirtualCard) sendIfCond(arg uint32, checksum byte) {
	if v.kind == KindLegacyV1 {
		v.respond(v.idleBit() | frame.R1IllegalCommand)
		return
	}
	if checksum != frame.ChecksumSendIfCond {
		v.respond(v.idleBit() | frame.R1CRCError)
		return
	}
	v.respond(v.idleBit(), 0x00, 0x00, byte(arg>>8)&0x0F, byte(arg))
}

func (v *VirtualCard) sendOpCond(arg uint32) {
	if !v.idle {
		v.respond(frame.R1Ready)
		return
	}
	hcs := arg&frame.OpCondHighCapacity != 0
	if v.idleForever || (v.kind == KindHighCapacity && !hcs) {
		v.respond(frame.R1IdleState)
		return
	}
	if v.opCondSeen < v.opCondPolls {
		v.opCondSeen++
		v.respond(frame.R1IdleState)
		return
	}
	v.idle = false
	v.respond(frame.R1Ready)
}

func (v *VirtualCard) readOCR() {
	ocr0 := byte(0)
	if !v.idle {
		ocr0 |= frame.OCRPowerUpStatus
		if v.kind == KindHighCapacity {
			ocr0 |= frame.OCRCapacityState
		}
	}
	v.respond(v.idleBit(), ocr0, 0xFF, 0x80, 0x00)
}

func (v *VirtualCard) setBlockLen(arg uint32) {
	if v.rejectBlkLen || arg != frame.SectorSize {
		v.respond(v.idleBit() | frame.R1ParameterError)
		return
	}
	v.respond(v.idleBit())
}

func (v *VirtualCard) sendRegister(reg []byte) {
	if v.idle || v.rejectRegs {
		v.respond(frame.R1IdleState | frame.R1IllegalCommand)
		return
	}
	v.respond(frame.R1Ready, frame.Filler, frame.TokenStartBlock)
	v.out = append(v.out, reg...)
	v.out = append(v.out, 0x00, 0x00)
}

// sectorFor maps a command argument to a sector the way the card's
// addressing mode does.
func (v *VirtualCard) sectorFor(arg uint32) (uint32, bool) {
	sector := arg
	if v.kind != KindHighCapacity {
		if arg%frame.SectorSize != 0 {
			return 0, false
		}
		sector = arg / frame.SectorSize
	}
	if uint64(sector) >= v.capacity/frame.SectorSize {
		return 0, false
	}
	return sector, true
}

func (v *VirtualCard) readBlock(arg uint32) {
	if v.idle {
		v.respond(frame.R1IdleState | frame.R1IllegalCommand)
		return
	}
	sector, ok := v.sectorFor(arg)
	if !ok {
		v.respond(frame.R1AddressError)
		return
	}
	v.respond(frame.R1Ready)
	if v.withholdToken {
		return
	}
	v.out = append(v.out, frame.Filler, frame.Filler, frame.TokenStartBlock)
	v.out = append(v.out, v.sectorData(sector)...)
	v.out = append(v.out, 0x00, 0x00)
}

func (v *VirtualCard) writeBlock(arg uint32) {
	if v.idle {
		v.respond(frame.R1IdleState | frame.R1IllegalCommand)
		return
	}
	sector, ok := v.sectorFor(arg)
	if !ok {
		v.respond(frame.R1AddressError)
		return
	}
	v.respond(frame.R1Ready)
	v.pending = &pendingWrite{sector: sector, data: make([]byte, 0, frame.SectorSize)}
}

func (v *VirtualCard) sectorData(sector uint32) []byte {
	data := make([]byte, frame.SectorSize)
	copy(data, v.sectors[sector])
	return data
}

func (v *VirtualCard) csd() []byte {
	if v.kind == KindHighCapacity {
		return BuildCSDv2(uint32(v.capacity/(512*1024)) - 1)
	}
	// READ_BL_LEN 9, C_SIZE_MULT 7: 256 KiB per C_SIZE unit
	return BuildCSDv1(uint16(v.capacity/(256*1024))-1, 7, 9)
}

// SetPresent simulates inserting or removing the card. A removed card loses
// power, so it must be taken through CMD0 again after reinsertion.
func (v *VirtualCard) SetPresent(present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !present {
		v.spiMode = false
		v.idle = false
		v.out = nil
		v.pending = nil
	}
	v.present = present
}

// SetIdleForever makes ACMD41 never report leaving the idle state.
func (v *VirtualCard) SetIdleForever(idle bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idleForever = idle
}

// SetOperatingConditionPolls sets how many ACMD41 attempts report idle before
// initialization completes.
func (v *VirtualCard) SetOperatingConditionPolls(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.opCondPolls = n
}

// SetRejectGoIdle makes the card ignore CMD0, as if nothing is on the bus.
func (v *VirtualCard) SetRejectGoIdle(reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectGoIdle = reject
}

// SetRejectBlockLength makes CMD16 fail with a parameter error.
func (v *VirtualCard) SetRejectBlockLength(reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectBlkLen = reject
}

// SetRejectRegisters makes CMD9 and CMD10 answer "illegal command".
func (v *VirtualCard) SetRejectRegisters(reject bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectRegs = reject
}

// SetWithholdDataToken makes CMD17 succeed without ever sending data.
func (v *VirtualCard) SetWithholdDataToken(withhold bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.withholdToken = withhold
}

// SetWriteResponse overrides the data-response token sent after a write.
// Zero restores the default "accepted" token.
func (v *VirtualCard) SetWriteResponse(resp byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writeResponse = resp
}

// SetBusyCycles sets how many 0x00 busy bytes follow an accepted write.
// A negative value keeps the card busy forever.
func (v *VirtualCard) SetBusyCycles(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busyForever = n < 0
	v.busyCycles = max(n, 0)
}

// SetExchangeError makes every exchange fail with err; nil clears it.
func (v *VirtualCard) SetExchangeError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.exchangeErr = err
}

// SetSector stores data (padded to a sector) at the given sector index.
func (v *VirtualCard) SetSector(sector uint32, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	buf := make([]byte, frame.SectorSize)
	copy(buf, data)
	v.sectors[sector] = buf
}

// Sector returns a copy of a stored sector (zeros if never written).
func (v *VirtualCard) Sector(sector uint32) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sectorData(sector)
}

// Capacity returns the simulated card size in bytes.
func (v *VirtualCard) Capacity() uint64 {
	return v.capacity
}

// Commands returns every command frame received so far.
func (v *VirtualCard) Commands() []RecordedCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]RecordedCommand(nil), v.commands...)
}

// TrailingExchanges returns, per deselect, how many exchanges happened
// before the next select (or until now for the last one).
func (v *VirtualCard) TrailingExchanges() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.trailing...)
}

// Selected reports whether chip select is currently asserted.
func (v *VirtualCard) Selected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// Deselects returns how many times chip select was released.
func (v *VirtualCard) Deselects() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deselects
}

// ResetLog clears the recorded commands and deselect bookkeeping.
func (v *VirtualCard) ResetLog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commands = nil
	v.trailing = nil
	v.counting = false
	v.deselects = 0
}
