// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

// Command builder functions create request frames ready for encoding.
// Settings-bearing commands take a whole SettingsBlock because the heater
// expects the complete block on every write.

// NewRequest creates a request with an empty payload. Sending one for
// MsgStatus, MsgSettings or MsgVersion makes the heater answer with the
// corresponding response.
func NewRequest(id MessageID) Frame {
	return NewFrame(MsgTypeRequest, id, nil)
}

// NewOffCommand creates an "off" command
func NewOffCommand() Frame {
	return NewRequest(MsgOff)
}

// NewHeatCommand creates a "heat" command. The heater starts with the given
// settings.
func NewHeatCommand(block SettingsBlock) Frame {
	return NewFrame(MsgTypeRequest, MsgHeat, block[:])
}

// NewFanOnlyCommand creates a "fan_only" command running the fan at level.
func NewFanOnlyCommand(level uint8) Frame {
	return NewFrame(MsgTypeRequest, MsgFanOnly, []byte{0x00, 0x00, level, 0xFF})
}

// NewSettingsCommand creates a "settings" write
func NewSettingsCommand(block SettingsBlock) Frame {
	return NewFrame(MsgTypeRequest, MsgSettings, block[:])
}

// NewTemperatureReport creates a "temperature" message carrying the room
// temperature measured outside the heater. Used with SensorPanel.
func NewTemperatureReport(celsius uint8) Frame {
	return NewFrame(MsgTypeRequest, MsgTemperature, []byte{celsius})
}
