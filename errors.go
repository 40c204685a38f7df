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
	"fmt"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// Initialization errors
var (
	ErrNoCsConfigured            = errors.New("no chip-select transport configured")
	ErrIdleResetFailed           = errors.New("card did not enter idle state")
	ErrOperatingConditionTimeout = errors.New("card did not leave idle state in time")
	ErrBlockLengthRejected       = errors.New("card rejected 512-byte block length")
)

// Block I/O errors
var (
	ErrNotInitialized  = errors.New("card not initialized")
	ErrCommandRejected = errors.New("card rejected command")
	ErrDataTimeout     = errors.New("timed out waiting for card data")
	ErrWriteRejected   = errors.New("card rejected write")
)

// Transport-level errors
var (
	// ErrTransportTimeout marks a command that got no R1 within the poll budget.
	ErrTransportTimeout = errors.New("no response within poll budget")
	ErrTransportFailed  = errors.New("transport failure")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ErrorType classifies failures for retry decisions.
type ErrorType int

const (
	// ErrorTypePermanent failures will not go away by retrying the same operation.
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient failures may succeed on a retry.
	ErrorTypeTransient
	// ErrorTypeTimeout failures hit a bounded wait.
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// CardError describes a failed card operation. Err is one of the package
// sentinels; Cause, when set, is the lower-level reason (a transport error or
// ErrTransportTimeout).
type CardError struct {
	Err       error
	Cause     error
	Op        string
	Sector    uint32
	Type      ErrorType
	Response  byte
	HasSector bool
	Retryable bool
	// dataResponse marks Response as a write data-response token, not R1.
	dataResponse bool
}

func (e *CardError) Error() string {
	msg := e.Op
	if e.HasSector {
		msg = fmt.Sprintf("%s %d", msg, e.Sector)
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Err)
	switch {
	case e.dataResponse:
		msg = fmt.Sprintf("%s (data response 0x%02X %s)", msg, e.Response, frame.DescribeDataResponse(e.Response))
	case e.Response != 0:
		msg = fmt.Sprintf("%s (response 0x%02X %s)", msg, e.Response, frame.DescribeR1(e.Response))
	}
	if e.Cause != nil && !errors.Is(e.Err, e.Cause) {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *CardError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// newCardError builds a CardError and classifies it.
func newCardError(op string, sentinel error, response byte, cause error) *CardError {
	if cause == nil && response == frame.ResponseTimeout {
		cause = ErrTransportTimeout
	}
	e := &CardError{
		Op:       op,
		Err:      sentinel,
		Cause:    cause,
		Response: response,
	}
	e.Type = classify(e)
	e.Retryable = e.Type != ErrorTypePermanent
	return e
}

// newSectorError is newCardError for block I/O on a specific sector.
func newSectorError(op string, sector uint32, sentinel error, response byte, cause error) *CardError {
	e := newCardError(op, sentinel, response, cause)
	e.Sector = sector
	e.HasSector = true
	return e
}

// withSector attaches sector to a CardError that was built without one.
func withSector(err error, sector uint32) error {
	var cardErr *CardError
	if errors.As(err, &cardErr) && !cardErr.HasSector {
		cardErr.Sector = sector
		cardErr.HasSector = true
	}
	return err
}

func classify(e *CardError) ErrorType {
	switch {
	case errors.Is(e.Err, ErrOperatingConditionTimeout),
		errors.Is(e.Err, ErrDataTimeout),
		errors.Is(e.Cause, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(e.Err, ErrTransportFailed),
		errors.Is(e.Err, ErrWriteRejected):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// IsRetryable reports whether retrying the failed operation could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var cardErr *CardError
	if errors.As(err, &cardErr) {
		return cardErr.Retryable
	}

	return GetErrorType(err) != ErrorTypePermanent
}

// GetErrorType returns the classification of err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var cardErr *CardError
	if errors.As(err, &cardErr) {
		return cardErr.Type
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrDataTimeout),
		errors.Is(err, ErrOperatingConditionTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportFailed),
		errors.Is(err, ErrWriteRejected):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
