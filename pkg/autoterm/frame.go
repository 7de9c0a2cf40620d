// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// Frame is a validated protocol frame
type Frame struct {
	Type     MsgType
	ID       MessageID
	Payload  []byte
	Checksum uint16
}

// NewFrame creates a frame and computes its checksum.
// The payload is used as-is and must not exceed MaxPayloadSize.
func NewFrame(t MsgType, id MessageID, payload []byte) Frame {
	f := Frame{Type: t, ID: id, Payload: payload}
	f.Checksum = Checksum(append(f.header(), payload...))
	return f
}

// Known returns true if t is one of the documented message types
func (t MsgType) Known() bool {
	_, ok := msgTypeNames[t]
	return ok
}

// String returns the short name of the message type
func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(t))
}

// Known returns true if the frame's message id is in the table for its type
func (f Frame) Known() bool {
	_, ok := idTable(f.Type)[f.ID]
	return ok && f.Type.Known()
}

// IDName returns the name of the message id, resolved in the namespace of the
// frame's type.
func (f Frame) IDName() string {
	return FormatMessageID(f.Type, f.ID)
}

// Is reports whether the frame has the given type and id
func (f Frame) Is(t MsgType, id MessageID) bool {
	return f.Type == t && f.ID == id
}

// Bytes returns the wire encoding of the frame
func (f Frame) Bytes() ([]byte, error) {
	return Encode(f.Type, f.ID, f.Payload)
}

// String implements fmt.Stringer
func (f Frame) String() string {
	return fmt.Sprintf("%s %s (%x)", f.Type, f.IDName(), f.Payload)
}

func (f Frame) header() []byte {
	return []byte{Marker, byte(f.Type), uint8(len(f.Payload)), 0x00, byte(f.ID)}
}

// idTable returns the id name table for a message type. Diagnostic frames use
// their own namespace, everything else shares the request/response table.
func idTable(t MsgType) map[MessageID]string {
	if t == MsgTypeDiagnostic {
		return diagIDNames
	}
	return messageIDNames
}

// FormatMessageID returns the human-readable name for a message id
func FormatMessageID(t MsgType, id MessageID) string {
	if !t.Known() {
		return fmt.Sprintf("unknown(0x%02X)", uint8(id))
	}
	if name, ok := idTable(t)[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(id))
}

// LookupMessageID returns the request/response id registered under name
func LookupMessageID(name string) (MessageID, bool) {
	for id, n := range messageIDNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}
