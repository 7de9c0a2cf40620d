// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heater

import "github.com/Thermoquad/autoterm/pkg/autoterm"

// Field names a value readable through Device.Get and observable through
// Device.Subscribe
type Field string

// Status fields
const (
	FieldStatusCode        Field = "status_code"
	FieldStatus            Field = "status"
	FieldErrorCode         Field = "error_code"
	FieldBoardTemp         Field = "board_temp"
	FieldExternalTemp      Field = "external_temp"
	FieldVoltage           Field = "voltage"
	FieldFlameTemperature  Field = "flame_temperature"
	FieldFanRPMSpecified   Field = "fan_rpm_specified"
	FieldFanRPMActual      Field = "fan_rpm_actual"
	FieldFuelPumpFrequency Field = "frequency_fuel_pump"
	FieldOpaque5           Field = "opaque_5"
	FieldOpaque9           Field = "opaque_9"
	FieldOpaque10          Field = "opaque_10"
	FieldOpaque13          Field = "opaque_13"
)

// Settings fields
const (
	FieldWorkTime          Field = "work_time"
	FieldTimerDisabled     Field = "timer_disabled"
	FieldSensor            Field = "sensor"
	FieldTemperatureTarget Field = "temperature_target"
	FieldMode              Field = "mode"
	FieldLevel             Field = "level"
	FieldPower             Field = "power"
)

// Other stored and derived fields
const (
	FieldTemperaturePanel          Field = "temperature_panel"
	FieldBlackboxVersion           Field = "blackbox_version"
	FieldExternalTemperatureSensor Field = "external_temperature_sensor"
	FieldControllerTemp            Field = "controller_temp"
	FieldControl                   Field = "control"
	FieldAvailable                 Field = "available"
)

// Fields lists every field in resolution order. Notifications are delivered
// in this order.
var Fields = []Field{
	FieldStatusCode,
	FieldStatus,
	FieldErrorCode,
	FieldBoardTemp,
	FieldExternalTemp,
	FieldVoltage,
	FieldFlameTemperature,
	FieldFanRPMSpecified,
	FieldFanRPMActual,
	FieldFuelPumpFrequency,
	FieldOpaque5,
	FieldOpaque9,
	FieldOpaque10,
	FieldOpaque13,
	FieldWorkTime,
	FieldTimerDisabled,
	FieldSensor,
	FieldTemperatureTarget,
	FieldMode,
	FieldLevel,
	FieldPower,
	FieldTemperaturePanel,
	FieldBlackboxVersion,
	FieldExternalTemperatureSensor,
	FieldControllerTemp,
	FieldControl,
	FieldAvailable,
}

// ParseField returns the field with the given name
func ParseField(name string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Control is the coarse operating state of the heater
type Control string

// Control states
const (
	ControlOff     Control = "off"
	ControlHeat    Control = "heat"
	ControlFanOnly Control = "fan_only"
)

// Valid returns true for the three control states
func (c Control) Valid() bool {
	switch c {
	case ControlOff, ControlHeat, ControlFanOnly:
		return true
	}
	return false
}

// ControlFromStatus maps a status code to the control state it represents.
// Standby is off, the fan-only state is fan_only, every other code is heat.
func ControlFromStatus(code string) Control {
	switch code {
	case autoterm.StatusCodeStandby:
		return ControlOff
	case autoterm.StatusCodeFanOnly:
		return ControlFanOnly
	}
	return ControlHeat
}
