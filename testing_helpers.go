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
	"errors"
	"sync"

	testutil "github.com/ZaparooProject/go-sdcard/internal/testing"
)

// MockTransport drives a simulated card. The embedded VirtualCard supplies
// Exchange, Select, Deselect and a fake Clock that advances with every
// exchanged byte, so bounded waits run instantly in tests.
type MockTransport struct {
	*testutil.VirtualCard
	mu     sync.Mutex
	closed bool
}

// NewMockTransport creates a transport wired to a fresh high capacity card.
func NewMockTransport() *MockTransport {
	return NewMockTransportWithCard(testutil.NewVirtualSDHC())
}

// NewMockTransportWithCard creates a transport wired to card.
func NewMockTransportWithCard(card *testutil.VirtualCard) *MockTransport {
	return &MockTransport{VirtualCard: card}
}

// Type returns the transport type
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// BulkMockTransport adds the optional bulk and clock-rate capabilities.
type BulkMockTransport struct {
	*MockTransport
	clockErr  error
	bulkCalls int
	clockRate int64
}

// NewBulkMockTransport creates a capability-rich transport on card.
func NewBulkMockTransport(card *testutil.VirtualCard) *BulkMockTransport {
	return &BulkMockTransport{MockTransport: NewMockTransportWithCard(card)}
}

// ExchangeBytes exchanges w byte by byte against the card.
func (b *BulkMockTransport) ExchangeBytes(w, r []byte) error {
	if len(w) != len(r) {
		return errors.New("mismatched bulk buffers")
	}
	b.mu.Lock()
	b.bulkCalls++
	b.mu.Unlock()

	for i := range w {
		in, err := b.Exchange(w[i])
		if err != nil {
			return err
		}
		r[i] = in
	}
	return nil
}

// SetClockRate records the requested rate.
func (b *BulkMockTransport) SetClockRate(hz int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clockErr != nil {
		return b.clockErr
	}
	b.clockRate = hz
	return nil
}

// SetClockError makes SetClockRate fail.
func (b *BulkMockTransport) SetClockError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockErr = err
}

// BulkCalls returns how many ExchangeBytes calls were made.
func (b *BulkMockTransport) BulkCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bulkCalls
}

// ClockRate returns the last rate set.
func (b *BulkMockTransport) ClockRate() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clockRate
}
