// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/Thermoquad/autoterm/pkg/heater"
)

// fieldSource is the read side of the device state.
type fieldSource interface {
	Get(field heater.Field) (any, bool)
}

// statusReport is the heater state printed by the status command. Unknown
// fields are left out of the encoded forms.
type statusReport struct {
	Available       bool     `json:"available" cbor:"available"`
	Control         string   `json:"control,omitempty" cbor:"control,omitempty"`
	StatusCode      *string  `json:"status_code,omitempty" cbor:"status_code,omitempty"`
	Status          *string  `json:"status,omitempty" cbor:"status,omitempty"`
	ErrorCode       *int     `json:"error_code,omitempty" cbor:"error_code,omitempty"`
	BoardTemp       *int     `json:"board_temp,omitempty" cbor:"board_temp,omitempty"`
	ExternalTemp    *int     `json:"external_temp,omitempty" cbor:"external_temp,omitempty"`
	Voltage         *float64 `json:"voltage,omitempty" cbor:"voltage,omitempty"`
	FlameTemp       *int     `json:"flame_temperature,omitempty" cbor:"flame_temperature,omitempty"`
	FanRPMSpecified *int     `json:"fan_rpm_specified,omitempty" cbor:"fan_rpm_specified,omitempty"`
	FanRPMActual    *int     `json:"fan_rpm_actual,omitempty" cbor:"fan_rpm_actual,omitempty"`
	FuelPumpHz      *float64 `json:"frequency_fuel_pump,omitempty" cbor:"frequency_fuel_pump,omitempty"`
	WorkTime        *int     `json:"work_time,omitempty" cbor:"work_time,omitempty"`
	TimerDisabled   *bool    `json:"timer_disabled,omitempty" cbor:"timer_disabled,omitempty"`
	Sensor          *int     `json:"sensor,omitempty" cbor:"sensor,omitempty"`
	TargetTemp      *int     `json:"temperature_target,omitempty" cbor:"temperature_target,omitempty"`
	Mode            *int     `json:"mode,omitempty" cbor:"mode,omitempty"`
	Level           *int     `json:"level,omitempty" cbor:"level,omitempty"`
	Power           *int     `json:"power,omitempty" cbor:"power,omitempty"`
	PanelTemp       *int     `json:"temperature_panel,omitempty" cbor:"temperature_panel,omitempty"`
	ControllerTemp  *int     `json:"controller_temp,omitempty" cbor:"controller_temp,omitempty"`
	Firmware        *string  `json:"blackbox_version,omitempty" cbor:"blackbox_version,omitempty"`
	ExternalSensor  *string  `json:"external_temperature_sensor,omitempty" cbor:"external_temperature_sensor,omitempty"`
}

func lookup[T any](src fieldSource, field heater.Field) *T {
	v, ok := src.Get(field)
	if !ok {
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return nil
	}
	return &t
}

func newStatusReport(src fieldSource) statusReport {
	r := statusReport{
		StatusCode:      lookup[string](src, heater.FieldStatusCode),
		Status:          lookup[string](src, heater.FieldStatus),
		ErrorCode:       lookup[int](src, heater.FieldErrorCode),
		BoardTemp:       lookup[int](src, heater.FieldBoardTemp),
		ExternalTemp:    lookup[int](src, heater.FieldExternalTemp),
		Voltage:         lookup[float64](src, heater.FieldVoltage),
		FlameTemp:       lookup[int](src, heater.FieldFlameTemperature),
		FanRPMSpecified: lookup[int](src, heater.FieldFanRPMSpecified),
		FanRPMActual:    lookup[int](src, heater.FieldFanRPMActual),
		FuelPumpHz:      lookup[float64](src, heater.FieldFuelPumpFrequency),
		WorkTime:        lookup[int](src, heater.FieldWorkTime),
		TimerDisabled:   lookup[bool](src, heater.FieldTimerDisabled),
		Sensor:          lookup[int](src, heater.FieldSensor),
		TargetTemp:      lookup[int](src, heater.FieldTemperatureTarget),
		Mode:            lookup[int](src, heater.FieldMode),
		Level:           lookup[int](src, heater.FieldLevel),
		Power:           lookup[int](src, heater.FieldPower),
		PanelTemp:       lookup[int](src, heater.FieldTemperaturePanel),
		ControllerTemp:  lookup[int](src, heater.FieldControllerTemp),
		Firmware:        lookup[string](src, heater.FieldBlackboxVersion),
		ExternalSensor:  lookup[string](src, heater.FieldExternalTemperatureSensor),
	}
	if up := lookup[bool](src, heater.FieldAvailable); up != nil {
		r.Available = *up
	}
	if c := lookup[heater.Control](src, heater.FieldControl); c != nil {
		r.Control = string(*c)
	}
	return r
}

// writeText prints the report as aligned name/value lines.
func (r statusReport) writeText(w io.Writer) error {
	var b strings.Builder

	line := func(name, value string) {
		fmt.Fprintf(&b, "  %-22s %s\n", name+":", value)
	}

	b.WriteString("Heater\n")
	line("Available", fmt.Sprintf("%t", r.Available))
	line("Firmware", orUnknown(r.Firmware, func(v string) string { return v }))
	control := r.Control
	if control == "" {
		control = "unknown"
	}
	line("Control", control)
	line("Status", orUnknown(r.StatusCode, func(code string) string {
		return fmt.Sprintf("%s (%s)", code, autoterm.StatusText(code))
	}))
	line("Error code", orUnknown(r.ErrorCode, itoa))

	b.WriteString("\nTelemetry\n")
	line("Board temperature", orUnknown(r.BoardTemp, celsius))
	line("External temperature", orUnknown(r.ExternalTemp, celsius))
	line("Panel temperature", orUnknown(r.PanelTemp, celsius))
	line("Controller temp", orUnknown(r.ControllerTemp, celsius))
	line("Flame temperature", orUnknown(r.FlameTemp, celsius))
	line("Voltage", orUnknown(r.Voltage, func(v float64) string { return fmt.Sprintf("%.1f V", v) }))
	line("Fan RPM", orUnknown(r.FanRPMActual, func(actual int) string {
		if r.FanRPMSpecified == nil {
			return itoa(actual)
		}
		return fmt.Sprintf("%d (specified %d)", actual, *r.FanRPMSpecified)
	}))
	line("Fuel pump", orUnknown(r.FuelPumpHz, func(v float64) string { return fmt.Sprintf("%.2f Hz", v) }))

	b.WriteString("\nSettings\n")
	line("Mode", orUnknown(r.Mode, func(v int) string { return autoterm.Mode(v).String() }))
	line("Sensor", orUnknown(r.Sensor, func(v int) string { return autoterm.Sensor(v).String() }))
	line("Target temperature", orUnknown(r.TargetTemp, celsius))
	line("Level", orUnknown(r.Level, func(v int) string {
		return fmt.Sprintf("%d (%s)", v, autoterm.LevelLabel(uint8(v)))
	}))
	line("Power", orUnknown(r.Power, func(v int) string { return fmt.Sprintf("%d%%", v) }))
	line("Work time", orUnknown(r.WorkTime, func(v int) string {
		if r.TimerDisabled != nil && *r.TimerDisabled {
			return "disabled"
		}
		return fmt.Sprintf("%d min", v)
	}))
	if r.ExternalSensor != nil {
		line("External sensor", *r.ExternalSensor)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func orUnknown[T any](v *T, format func(T) string) string {
	if v == nil {
		return "unknown"
	}
	return format(*v)
}

func itoa(v int) string { return fmt.Sprintf("%d", v) }

func celsius(v int) string { return fmt.Sprintf("%d °C", v) }
