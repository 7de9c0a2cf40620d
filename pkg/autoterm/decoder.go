// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// Decode validates a raw frame and returns its contents.
//
// Unknown message types and ids are not an error; they are carried in the
// returned Frame as their raw byte values.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrIncompleteFrame, len(raw), HeaderSize)
	}
	if raw[0] != Marker {
		return Frame{}, fmt.Errorf("%w: got 0x%02X", ErrMissingMarker, raw[0])
	}

	length := int(raw[2])
	total := HeaderSize + length + CRCSize
	if len(raw) < total {
		return Frame{}, fmt.Errorf("%w: %d bytes, need %d", ErrIncompleteFrame, len(raw), total)
	}

	body := raw[:HeaderSize+length]
	received := uint16(raw[HeaderSize+length])<<8 | uint16(raw[HeaderSize+length+1])
	calculated := Checksum(body)
	if received != calculated {
		return Frame{}, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksumMismatch, calculated, received)
	}

	payload := make([]byte, length)
	copy(payload, raw[HeaderSize:HeaderSize+length])

	return Frame{
		Type:     MsgType(raw[1]),
		ID:       MessageID(raw[4]),
		Payload:  payload,
		Checksum: received,
	}, nil
}
