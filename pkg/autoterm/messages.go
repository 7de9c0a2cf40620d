// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is a parsed response payload
type Message interface {
	MessageID() MessageID
}

// VersionInfo is the payload of a version response
type VersionInfo struct {
	Version string
}

// MessageID implements Message
func (VersionInfo) MessageID() MessageID { return MsgVersion }

// StatusSnapshot is the payload of a status response.
// Raw byte values are kept; the accessors apply the scaling.
type StatusSnapshot struct {
	StatusMajor      uint8
	StatusMinor      uint8
	ErrorCode        uint8
	BoardTempRaw     uint8
	ExternalTemp     int8
	VoltageRaw       uint8
	FlameTemperature uint16
	FanSpecifiedRaw  uint8
	FanActualRaw     uint8
	FuelPumpRaw      uint8

	// Bytes 5, 9, 10 and 13 are not understood and kept verbatim.
	Opaque [4]byte
}

// MessageID implements Message
func (StatusSnapshot) MessageID() MessageID { return MsgStatus }

// StatusCode returns the status as "major.minor"
func (s StatusSnapshot) StatusCode() string {
	return fmt.Sprintf("%d.%d", s.StatusMajor, s.StatusMinor)
}

// StatusText returns the description of the status code
func (s StatusSnapshot) StatusText() string {
	return StatusText(s.StatusCode())
}

// BoardTemperature returns the board temperature in °C.
// The raw byte is two's complement.
func (s StatusSnapshot) BoardTemperature() int {
	return int(int8(s.BoardTempRaw))
}

// Voltage returns the supply voltage in volts
func (s StatusSnapshot) Voltage() float64 {
	return float64(s.VoltageRaw) / 10
}

// FanRPMSpecified returns the commanded fan speed
func (s StatusSnapshot) FanRPMSpecified() int {
	return int(s.FanSpecifiedRaw) * 60
}

// FanRPMActual returns the measured fan speed
func (s StatusSnapshot) FanRPMActual() int {
	return int(s.FanActualRaw) * 60
}

// FuelPumpFrequency returns the fuel pump frequency in Hz
func (s StatusSnapshot) FuelPumpFrequency() float64 {
	return float64(s.FuelPumpRaw) / 100
}

// SettingsBlock is the raw settings structure. The heater only accepts the
// complete block, so writes copy the last received block and change one field.
type SettingsBlock [SettingsBlockSize]byte

// WorkTime returns the raw work time in minutes (WorkTimeDisabled = no timer)
func (b SettingsBlock) WorkTime() uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// TimerDisabled returns true if the heater runs without a timer
func (b SettingsBlock) TimerDisabled() bool {
	return b.WorkTime() == WorkTimeDisabled
}

// Sensor returns the selected temperature sensor
func (b SettingsBlock) Sensor() Sensor { return Sensor(b[2]) }

// TargetTemperature returns the target temperature in °C
func (b SettingsBlock) TargetTemperature() uint8 { return b[3] }

// Mode returns the regulation mode
func (b SettingsBlock) Mode() Mode { return Mode(b[4]) }

// Level returns the power level (0-9)
func (b SettingsBlock) Level() uint8 { return b[5] }

// Power returns the power level as percent
func (b SettingsBlock) Power() int { return LevelToPower(b[5]) }

// WithWorkTime returns a copy with the work time set.
// Zero minutes disables the timer.
func (b SettingsBlock) WithWorkTime(minutes uint16) SettingsBlock {
	if minutes == 0 {
		minutes = WorkTimeDisabled
	}
	b[0] = byte(minutes >> 8)
	b[1] = byte(minutes)
	return b
}

// WithSensor returns a copy with the sensor set
func (b SettingsBlock) WithSensor(s Sensor) SettingsBlock {
	b[2] = byte(s)
	return b
}

// WithTargetTemperature returns a copy with the target temperature set
func (b SettingsBlock) WithTargetTemperature(celsius uint8) SettingsBlock {
	b[3] = celsius
	return b
}

// WithMode returns a copy with the mode set
func (b SettingsBlock) WithMode(m Mode) SettingsBlock {
	b[4] = byte(m)
	return b
}

// WithLevel returns a copy with the power level set
func (b SettingsBlock) WithLevel(level uint8) SettingsBlock {
	b[5] = level
	return b
}

// SettingsSnapshot is the payload of a settings response
type SettingsSnapshot struct {
	SettingsBlock
}

// MessageID implements Message
func (SettingsSnapshot) MessageID() MessageID { return MsgSettings }

// PanelTemperature is the payload of a temperature response
type PanelTemperature struct {
	Raw uint8
}

// MessageID implements Message
func (PanelTemperature) MessageID() MessageID { return MsgTemperature }

// ParseVersion parses a version payload into "a.b.c.d"
func ParseVersion(payload []byte) (VersionInfo, error) {
	if len(payload) < versionPayloadSize {
		return VersionInfo{}, shortPayload("version", payload, versionPayloadSize)
	}
	parts := make([]string, 4)
	for i := range parts {
		parts[i] = strconv.Itoa(int(payload[i]))
	}
	return VersionInfo{Version: strings.Join(parts, ".")}, nil
}

// ParseStatus parses a status payload
func ParseStatus(payload []byte) (StatusSnapshot, error) {
	if len(payload) < statusPayloadSize {
		return StatusSnapshot{}, shortPayload("status", payload, statusPayloadSize)
	}
	return StatusSnapshot{
		StatusMajor:      payload[0],
		StatusMinor:      payload[1],
		ErrorCode:        payload[2],
		BoardTempRaw:     payload[3],
		ExternalTemp:     int8(payload[4]),
		VoltageRaw:       payload[6],
		FlameTemperature: uint16(payload[7])<<8 | uint16(payload[8]),
		FanSpecifiedRaw:  payload[11],
		FanActualRaw:     payload[12],
		FuelPumpRaw:      payload[14],
		Opaque:           [4]byte{payload[5], payload[9], payload[10], payload[13]},
	}, nil
}

// ParseSettings parses a settings payload. The block is kept verbatim.
func ParseSettings(payload []byte) (SettingsSnapshot, error) {
	if len(payload) < settingsPayloadSize {
		return SettingsSnapshot{}, shortPayload("settings", payload, settingsPayloadSize)
	}
	var s SettingsSnapshot
	copy(s.SettingsBlock[:], payload[:SettingsBlockSize])
	return s, nil
}

// ParseTemperature parses a control panel temperature payload
func ParseTemperature(payload []byte) (PanelTemperature, error) {
	if len(payload) < temperaturePayloadSize {
		return PanelTemperature{}, shortPayload("temperature", payload, temperaturePayloadSize)
	}
	return PanelTemperature{Raw: payload[0]}, nil
}

// ParseResponse parses the payload of a response frame.
// Returns nil, nil for frames that carry no state (requests, diagnostics,
// response ids without a parser).
func ParseResponse(f Frame) (Message, error) {
	if f.Type != MsgTypeResponse {
		return nil, nil
	}

	switch f.ID {
	case MsgVersion:
		return ParseVersion(f.Payload)
	case MsgStatus:
		return ParseStatus(f.Payload)
	case MsgSettings:
		return ParseSettings(f.Payload)
	case MsgTemperature:
		return ParseTemperature(f.Payload)
	}
	return nil, nil
}

func shortPayload(name string, payload []byte, want int) error {
	return fmt.Errorf("%s: %w (%d bytes, need %d)", name, ErrPayloadTooShort, len(payload), want)
}
