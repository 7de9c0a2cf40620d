// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "fmt"

// AnomalyType represents different kinds of implausible values
type AnomalyType int

const (
	AnomalyUnknownStatus AnomalyType = iota
	AnomalyVoltage
	AnomalyInvalidTemp
	AnomalyHighRPM
	AnomalyInvalidValue
)

// Plausibility limits for a 12/24 V heater
const (
	MinSupplyVoltage = 8.0
	MinBoardTemp     = -50
	MaxBoardTemp     = 125
	MaxFlameTemp     = 1000
	MaxFanRPM        = 8000
)

// ValidationError describes one implausible value in a well-formed frame
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a parsed response for values the heater should
// never report. It returns an empty slice for plausible messages.
func ValidateMessage(msg Message) []ValidationError {
	switch m := msg.(type) {
	case StatusSnapshot:
		return validateStatus(m)
	case SettingsSnapshot:
		return validateSettings(m.SettingsBlock)
	}
	return []ValidationError{}
}

func validateStatus(s StatusSnapshot) []ValidationError {
	errors := []ValidationError{}

	if s.StatusText() == StatusUnknown {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownStatus,
			Message: fmt.Sprintf("Unknown status code %s", s.StatusCode()),
			Details: map[string]interface{}{"status_code": s.StatusCode()},
		})
	}

	if v := s.Voltage(); v < MinSupplyVoltage {
		errors = append(errors, ValidationError{
			Type:    AnomalyVoltage,
			Message: fmt.Sprintf("Supply voltage too low (%.1fV, min %.0fV)", v, MinSupplyVoltage),
			Details: map[string]interface{}{"voltage": v, "min": MinSupplyVoltage},
		})
	}

	if t := s.BoardTemperature(); t < MinBoardTemp || t > MaxBoardTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Board temperature out of range (%d°C, valid: %d to %d°C)", t, MinBoardTemp, MaxBoardTemp),
			Details: map[string]interface{}{"value": t, "min": MinBoardTemp, "max": MaxBoardTemp},
		})
	}

	if s.FlameTemperature > MaxFlameTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Flame temperature out of range (%d°C, max %d°C)", s.FlameTemperature, MaxFlameTemp),
			Details: map[string]interface{}{"value": s.FlameTemperature, "max": MaxFlameTemp},
		})
	}

	if rpm, target := s.FanRPMActual(), s.FanRPMSpecified(); rpm > MaxFanRPM || target > MaxFanRPM {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighRPM,
			Message: fmt.Sprintf("High fan RPM (rpm=%d, specified=%d, max %d)", rpm, target, MaxFanRPM),
			Details: map[string]interface{}{"rpm": rpm, "specified_rpm": target, "max": MaxFanRPM},
		})
	}

	return errors
}

func validateSettings(b SettingsBlock) []ValidationError {
	errors := []ValidationError{}

	if !b.Sensor().Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid sensor=%d", uint8(b.Sensor())),
			Details: map[string]interface{}{"sensor": uint8(b.Sensor())},
		})
	}

	if !b.Mode().Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid mode=%d", uint8(b.Mode())),
			Details: map[string]interface{}{"mode": uint8(b.Mode())},
		})
	}

	if b.Level() > MaxLevel {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid level=%d (max %d)", b.Level(), MaxLevel),
			Details: map[string]interface{}{"level": b.Level(), "max": MaxLevel},
		})
	}

	return errors
}
