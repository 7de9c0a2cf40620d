// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f Frame, ts time.Time) string {
	timestamp := ts.Format("15:04:05.000")

	name := f.IDName()
	if f.Known() {
		name = strings.ToUpper(name)
	}

	result := fmt.Sprintf("[%s] %s %s (0x%02X) len=%d\n",
		timestamp, FormatMessageType(f.Type), name, uint8(f.ID), len(f.Payload))

	if len(f.Payload) > 0 {
		result += FormatPayload(f)
	}

	return result
}

// FormatMessageType returns the upper case name of a message type
func FormatMessageType(t MsgType) string {
	if !t.Known() {
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
	return strings.ToUpper(t.String())
}

// FormatPayload returns the decoded payload of a frame, or a hex dump when the
// payload has no parser or does not parse.
func FormatPayload(f Frame) string {
	switch {
	case f.Type == MsgTypeResponse:
		msg, err := ParseResponse(f)
		if err == nil && msg != nil {
			return FormatMessage(msg)
		}
	case f.Is(MsgTypeRequest, MsgSettings), f.Is(MsgTypeRequest, MsgHeat):
		if s, err := ParseSettings(f.Payload); err == nil {
			return FormatMessage(s)
		}
	case f.Is(MsgTypeRequest, MsgFanOnly):
		if len(f.Payload) >= 3 {
			return fmt.Sprintf("  Level: %d (%s)\n", f.Payload[2], LevelLabel(f.Payload[2]))
		}
	case f.Is(MsgTypeRequest, MsgTemperature):
		if len(f.Payload) >= 1 {
			return fmt.Sprintf("  Temperature: %d°C\n", f.Payload[0])
		}
	}

	return formatHex(f.Payload)
}

// FormatMessage formats a parsed response payload
func FormatMessage(msg Message) string {
	switch m := msg.(type) {
	case VersionInfo:
		return fmt.Sprintf("  Version: %s\n", m.Version)

	case StatusSnapshot:
		var s strings.Builder
		s.WriteString(fmt.Sprintf("  Status: %s (%s), Error: %d\n", m.StatusCode(), m.StatusText(), m.ErrorCode))
		s.WriteString(fmt.Sprintf("  Board: %d°C, External: %d°C, Flame: %d, Voltage: %.1fV\n",
			m.BoardTemperature(), m.ExternalTemp, m.FlameTemperature, m.Voltage()))
		s.WriteString(fmt.Sprintf("  Fan: %d/%d rpm, Pump: %.2fHz, Opaque: % X\n",
			m.FanRPMActual(), m.FanRPMSpecified(), m.FuelPumpFrequency(), m.Opaque[:]))
		return s.String()

	case SettingsSnapshot:
		workTime := "off"
		if !m.TimerDisabled() {
			workTime = fmt.Sprintf("%d min", m.WorkTime())
		}
		return fmt.Sprintf("  Timer: %s, Sensor: %s, Target: %d°C, Mode: %s, Level: %d (%s)\n",
			workTime, m.Sensor(), m.TargetTemperature(), m.Mode(), m.Level(), LevelLabel(m.Level()))

	case PanelTemperature:
		return fmt.Sprintf("  Panel temperature: %d°C\n", m.Raw)
	}

	return ""
}

func formatHex(payload []byte) string {
	var s strings.Builder
	s.WriteString("  Payload: ")
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n           ")
		}
		s.WriteString(fmt.Sprintf("%02X ", b))
	}
	s.WriteString("\n")
	return s.String()
}
