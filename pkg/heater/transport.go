// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heater

import (
	"fmt"
	"io"
	"time"
)

// Transport is the byte link to the heater controller.
//
// Read may return (0, nil) when no byte arrived within the read timeout; the
// serial port and the WebSocket bridge in cmd both behave that way.
type Transport interface {
	io.ReadWriteCloser
}

// ReadTimeoutSetter is implemented by transports whose reads can time out
type ReadTimeoutSetter interface {
	SetReadTimeout(t time.Duration) error
}

// TransportError is an I/O failure on the underlying link
type TransportError struct {
	Op  string // "read", "write", "configure" or "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
