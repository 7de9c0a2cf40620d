// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "errors"

// Framing errors
var (
	ErrIncompleteFrame  = errors.New("incomplete frame")
	ErrMissingMarker    = errors.New("frame does not start with marker byte")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrPayloadTooLong   = errors.New("payload too long")
)

// ErrPayloadTooShort is returned by the message parsers
var ErrPayloadTooShort = errors.New("payload too short")

// Stream errors returned by Scanner.Next
var (
	ErrNoData     = errors.New("no data available")
	ErrShortFrame = errors.New("frame truncated by read timeout")
)
