// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// Encode creates a complete wire-formatted frame.
// Returns the frame bytes ready for transmission, including the checksum.
func Encode(t MsgType, id MessageID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLong, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, HeaderSize+len(payload)+CRCSize)
	frame = append(frame, Marker, byte(t), uint8(len(payload)), 0x00, byte(id))
	frame = append(frame, payload...)

	return AppendChecksum(frame, Checksum(frame)), nil
}

// EncodeRequest encodes an outbound request frame
func EncodeRequest(id MessageID, payload []byte) ([]byte, error) {
	return Encode(MsgTypeRequest, id, payload)
}

// MustEncode encodes a frame and panics on error.
// Only use it with payloads known to fit, such as the command builders'.
func MustEncode(f Frame) []byte {
	data, err := f.Bytes()
	if err != nil {
		panic(fmt.Sprintf("autoterm: encode error: %v", err))
	}
	return data
}
