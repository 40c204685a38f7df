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

package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	sdcard "github.com/ZaparooProject/go-sdcard"
)

// ErrMonitorRunning is returned when Start is called on a running monitor.
var ErrMonitorRunning = errors.New("monitor is already running")

// Card is the part of *sdcard.Device the monitor drives.
type Card interface {
	State() sdcard.CardState
	Geometry() sdcard.CardGeometry
	IsPresent() bool
	InitializeContext(ctx context.Context) (sdcard.CardGeometry, error)
}

// Monitor periodically probes a card and reports insertion and removal.
// Callbacks run on the polling goroutine and must be set before Start.
type Monitor struct {
	card           Card
	config         *Config
	OnCardInserted func(geometry sdcard.CardGeometry)
	OnCardRemoved  func()
	now            func() time.Time
	status         Status
	mu             sync.Mutex
	running        atomic.Bool
	isPaused       atomic.Bool
}

// NewMonitor creates a monitor for card. A nil config uses DefaultConfig.
func NewMonitor(card Card, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		card:   card,
		config: config,
		now:    time.Now,
	}
}

// Start polls until ctx is done and returns ctx.Err(). The first probe
// runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrMonitorRunning
	}
	defer m.running.Store(false)

	ticker := time.NewTicker(m.config.interval())
	defer ticker.Stop()

	for {
		m.Poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs a single monitoring step. A ready card is probed for presence;
// otherwise, with AutoReinitialize set, initialization is attempted.
func (m *Monitor) Poll(ctx context.Context) {
	if m.isPaused.Load() || ctx.Err() != nil {
		return
	}

	if m.card.State() == sdcard.StateReady {
		if m.card.IsPresent() {
			m.markInserted(m.card.Geometry())
		} else {
			m.markRemoved()
		}
		return
	}

	// The card may have been dropped by a failed block transfer rather
	// than by a probe.
	if m.card.State() == sdcard.StateRemoved {
		m.markRemoved()
	}

	if !m.config.AutoReinitialize {
		return
	}

	geometry, err := m.card.InitializeContext(ctx)
	if err != nil {
		m.markAbsent()
		return
	}
	m.markInserted(geometry)
}

// Status returns a snapshot of the monitor's state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Pause suspends probing until Resume is called.
func (m *Monitor) Pause() {
	m.isPaused.Store(true)
}

// Resume re-enables probing.
func (m *Monitor) Resume() {
	m.isPaused.Store(false)
}

// Running reports whether Start is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) markInserted(geometry sdcard.CardGeometry) {
	m.mu.Lock()
	if m.status.State == PresenceInserted {
		m.mu.Unlock()
		return
	}
	m.status.toInserted(geometry, m.now())
	m.mu.Unlock()

	if m.OnCardInserted != nil {
		m.OnCardInserted(geometry)
	}
}

func (m *Monitor) markRemoved() {
	m.mu.Lock()
	if m.status.State != PresenceInserted {
		m.mu.Unlock()
		return
	}
	m.status.toRemoved(m.now())
	m.mu.Unlock()

	if m.OnCardRemoved != nil {
		m.OnCardRemoved()
	}
}

// markAbsent records a failed initialization on a slot that was never
// seen populated.
func (m *Monitor) markAbsent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == PresenceUnknown {
		m.status.State = PresenceRemoved
		m.status.LastChange = m.now()
	}
}
