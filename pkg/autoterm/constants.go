// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package autoterm implements the serial protocol spoken by Autoterm (Planar)
// diesel air heaters.
//
// Every frame on the wire is laid out as
//
//	[0xAA][type][length][0x00][message id][payload ...][crc hi][crc lo]
//
// This package provides frame encoding/decoding, checksum validation, a stream
// scanner that resynchronizes after corrupted bytes, parsers for the response
// payloads and builders for the outbound commands.
package autoterm

// Protocol framing
const (
	Marker     = 0xAA
	HeaderSize = 5 // marker, type, length, reserved, id
	CRCSize    = 2

	MaxPayloadSize = 255
	MaxFrameSize   = HeaderSize + MaxPayloadSize + CRCSize
)

// MsgType is the second byte of a frame.
type MsgType uint8

// Message types
const (
	MsgTypeDiagnostic MsgType = 0x02
	MsgTypeRequest    MsgType = 0x03
	MsgTypeResponse   MsgType = 0x04
)

// MessageID identifies the message inside its type namespace.
type MessageID uint8

// Message IDs - request/response namespace
const (
	MsgHeat        MessageID = 0x01
	MsgSettings    MessageID = 0x02
	MsgOff         MessageID = 0x03
	MsgSerialNum   MessageID = 0x04
	MsgVersion     MessageID = 0x06
	MsgDiagControl MessageID = 0x07
	MsgFanSpeed    MessageID = 0x08
	MsgReport      MessageID = 0x0B
	MsgUnlock      MessageID = 0x0D
	MsgStatus      MessageID = 0x0F
	MsgTemperature MessageID = 0x11
	MsgFuelPump    MessageID = 0x13
	MsgStart       MessageID = 0x1C
	MsgMisc3       MessageID = 0x1E
	MsgFanOnly     MessageID = 0x23
)

// Message IDs - diagnostic namespace
const (
	DiagConnect MessageID = 0x00
	DiagHeater  MessageID = 0x01
)

// Minimum payload lengths accepted by the parsers
const (
	versionPayloadSize     = 5
	statusPayloadSize      = 15
	settingsPayloadSize    = 6
	temperaturePayloadSize = 1
)

// SettingsBlockSize is the size of the settings block echoed on every write.
const SettingsBlockSize = 6

// WorkTimeDisabled is the work time sentinel meaning "run without timer".
const WorkTimeDisabled = 0xFFFF

// Level bounds. Power is (level+1)*10 percent.
const (
	MinLevel = 0
	MaxLevel = 9
)

var msgTypeNames = map[MsgType]string{
	MsgTypeDiagnostic: "diag",
	MsgTypeRequest:    "request",
	MsgTypeResponse:   "response",
}

var messageIDNames = map[MessageID]string{
	MsgHeat:        "heat",
	MsgSettings:    "settings",
	MsgOff:         "off",
	MsgSerialNum:   "serialnum",
	MsgVersion:     "version",
	MsgDiagControl: "diag_control",
	MsgFanSpeed:    "fan_speed",
	MsgReport:      "report",
	MsgUnlock:      "unlock",
	MsgStatus:      "status",
	MsgTemperature: "temperature",
	MsgFuelPump:    "fuel_pump",
	MsgStart:       "start",
	MsgMisc3:       "misc_3",
	MsgFanOnly:     "fan_only",
}

var diagIDNames = map[MessageID]string{
	DiagConnect: "connect",
	DiagHeater:  "heater",
}
