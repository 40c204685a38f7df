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

// Package transport provides the bounded polling and retry loops shared by
// the card driver and the transport backends.
package transport

import (
	"errors"
	"time"
)

var (
	// ErrDeadlineExceeded is returned by PollUntil when the deadline elapses.
	ErrDeadlineExceeded = errors.New("poll deadline exceeded")
	// ErrRetriesExhausted is returned by WithRetry when every attempt asked for a retry.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Clock is the monotonic time source that PollUntil measures deadlines against.
type Clock interface {
	Millis() uint64
	Sleep(d time.Duration)
}

// RetryOperation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: any permanent error that should stop retries
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	OnRetry       func() error
	OnRetryFailed func() error
	Description   string
	MaxRetries    int
	RetryDelay    time.Duration
}

// WithRetry executes an operation with count-based retry logic
func WithRetry[T any](config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if attempt >= config.MaxRetries {
			break
		}

		if err := executeRetryCallback(config); err != nil {
			return zero, err
		}

		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}

	return handleRetriesExhausted[T](config)
}

// executeRetryCallback executes the retry callback if provided
func executeRetryCallback(config RetryConfig) error {
	if config.OnRetry != nil {
		return config.OnRetry()
	}
	return nil
}

// handleRetriesExhausted handles the case when all retries are exhausted
func handleRetriesExhausted[T any](config RetryConfig) (T, error) {
	var zero T

	if config.OnRetryFailed != nil {
		if failErr := config.OnRetryFailed(); failErr != nil {
			return zero, failErr
		}
	}

	return zero, ErrRetriesExhausted
}

// PollUntil runs operation until it stops asking for a retry, returns an
// error, or timeout elapses on clock. The deadline is measured from entry and
// re-checked after every attempt, so the operation always runs at least once.
// interval, when positive, is slept between attempts.
func PollUntil[T any](clock Clock, timeout, interval time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	start := clock.Millis()
	limit := uint64(timeout.Milliseconds())

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if clock.Millis()-start >= limit {
			return zero, ErrDeadlineExceeded
		}

		if interval > 0 {
			clock.Sleep(interval)
		}
	}
}
