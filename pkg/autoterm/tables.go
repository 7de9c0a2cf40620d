// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// StatusUnknown is the status text for codes not in the table
const StatusUnknown = "unknown"

// Status codes with a fixed meaning for the control mode
const (
	StatusCodeStandby = "0.1"
	StatusCodeFanOnly = "3.35"
)

var statusTexts = map[string]string{
	"0.1":  "Standby",
	"1.0":  "Cooling flame sensor",
	"1.1":  "Ventilation",
	"2.0":  "Glow plug warm-up",
	"2.1":  "Ignition preparation",
	"2.2":  "Ignition",
	"2.3":  "Ignition 2",
	"2.4":  "Heating combustion chamber",
	"3.0":  "Heating",
	"3.35": "Fan only",
	"3.4":  "Cooling down",
	"3.5":  "Temperature monitoring",
	"4.0":  "Shutting down",
}

// StatusText returns the description of a "major.minor" status code
func StatusText(code string) string {
	if text, ok := statusTexts[code]; ok {
		return text
	}
	return StatusUnknown
}

// Sensor selects the temperature source the heater regulates on
type Sensor uint8

// Sensor values accepted by the heater
const (
	SensorHeater Sensor = 0x01 // sensor inside the heater
	SensorPanel  Sensor = 0x02 // control panel, fed through the temperature message
	SensorManual Sensor = 0x04 // no sensor, runs on the power level
)

var sensorNames = map[Sensor]string{
	SensorHeater: "heater",
	SensorPanel:  "panel",
	SensorManual: "manual",
}

// Valid returns true if the heater accepts s
func (s Sensor) Valid() bool {
	_, ok := sensorNames[s]
	return ok
}

func (s Sensor) String() string {
	if name, ok := sensorNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Mode is the heater's regulation mode
type Mode uint8

// Mode values
const (
	ModeMaintainTemperature Mode = 0x00 // reduce power without switching off
	ModeHeatVentilation     Mode = 0x01 // thermostat, fan keeps running
	ModePowerLevel          Mode = 0x02 // constant power level
	ModeThermostat          Mode = 0x03 // switch on and off around the target
)

var modeNames = map[Mode]string{
	ModeMaintainTemperature: "maintain_temperature",
	ModeHeatVentilation:     "heat_ventilation",
	ModePowerLevel:          "power_level",
	ModeThermostat:          "thermostat",
}

// Valid returns true if the heater accepts m
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(m))
}

// ParseSensor looks up a sensor by name
func ParseSensor(name string) (Sensor, bool) {
	for s, n := range sensorNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// ParseMode looks up a mode by name
func ParseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// LevelLabel returns the power percentage label for a level, e.g. "50%"
func LevelLabel(level uint8) string {
	if level > MaxLevel {
		return StatusUnknown
	}
	return fmt.Sprintf("%d%%", LevelToPower(level))
}

// LevelToPower converts a level (0-9) to power percent (10-100)
func LevelToPower(level uint8) int {
	return (int(level) + 1) * 10
}
