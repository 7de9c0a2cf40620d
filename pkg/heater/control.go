// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heater

import (
	"context"
	"fmt"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"go.uber.org/zap"
)

// SetControl switches the heater off, to heating or to fan-only operation.
// Heating and fan-only reuse the cached settings block.
func (d *Device) SetControl(ctx context.Context, c Control) error {
	if !c.Valid() {
		return fmt.Errorf("control %q: %w", c, ErrValueOutOfRange)
	}

	d.writeMu.Lock()
	var err error
	switch c {
	case ControlOff:
		err = d.writeLocked(ctx, autoterm.NewOffCommand())
	case ControlHeat, ControlFanOnly:
		block, _, ok := d.state.Block()
		if !ok {
			err = ErrStateNotReady
			break
		}
		if c == ControlHeat {
			err = d.writeLocked(ctx, autoterm.NewHeatCommand(block))
		} else {
			err = d.writeLocked(ctx, autoterm.NewFanOnlyCommand(block.Level()))
		}
	}
	d.writeMu.Unlock()

	if err != nil {
		return err
	}
	d.log.Info("control set", zap.String("control", string(c)))
	return d.repoll(ctx)
}

// SetTemperatureTarget sets the target temperature in °C
func (d *Device) SetTemperatureTarget(ctx context.Context, celsius int) error {
	if celsius < 0 || celsius > 0xFF {
		return fmt.Errorf("target temperature %d: %w", celsius, ErrValueOutOfRange)
	}
	return d.updateSettings(ctx, "temperature_target", func(b autoterm.SettingsBlock) autoterm.SettingsBlock {
		return b.WithTargetTemperature(uint8(celsius))
	})
}

// SetWorkTime sets the run time in minutes. Zero disables the timer.
func (d *Device) SetWorkTime(ctx context.Context, minutes int) error {
	if minutes < 0 || minutes >= autoterm.WorkTimeDisabled {
		return fmt.Errorf("work time %d: %w", minutes, ErrValueOutOfRange)
	}
	return d.updateSettings(ctx, "work_time", func(b autoterm.SettingsBlock) autoterm.SettingsBlock {
		return b.WithWorkTime(uint16(minutes))
	})
}

// SetSensor selects the temperature sensor the heater regulates on
func (d *Device) SetSensor(ctx context.Context, s autoterm.Sensor) error {
	if !s.Valid() {
		return fmt.Errorf("sensor %d: %w", s, ErrValueOutOfRange)
	}
	return d.updateSettings(ctx, "sensor", func(b autoterm.SettingsBlock) autoterm.SettingsBlock {
		return b.WithSensor(s)
	})
}

// SetMode selects the regulation mode
func (d *Device) SetMode(ctx context.Context, m autoterm.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("mode %d: %w", m, ErrValueOutOfRange)
	}
	return d.updateSettings(ctx, "mode", func(b autoterm.SettingsBlock) autoterm.SettingsBlock {
		return b.WithMode(m)
	})
}

// SetLevel sets the power level, 0 to 9
func (d *Device) SetLevel(ctx context.Context, level int) error {
	if level < autoterm.MinLevel || level > autoterm.MaxLevel {
		return fmt.Errorf("level %d: %w", level, ErrValueOutOfRange)
	}
	return d.updateSettings(ctx, "level", func(b autoterm.SettingsBlock) autoterm.SettingsBlock {
		return b.WithLevel(uint8(level))
	})
}

// SetPower sets the power in percent, 10 to 100 in steps of 10
func (d *Device) SetPower(ctx context.Context, percent int) error {
	if percent%10 != 0 || percent < 10 || percent > 100 {
		return fmt.Errorf("power %d%%: %w", percent, ErrValueOutOfRange)
	}
	return d.SetLevel(ctx, percent/10-1)
}

// SetTemperatureCurrent forwards a room temperature reading to the heater.
// The heater regulates on it when the panel sensor is selected.
func (d *Device) SetTemperatureCurrent(ctx context.Context, celsius int) error {
	if celsius < 0 || celsius > 0xFF {
		return fmt.Errorf("temperature %d: %w", celsius, ErrValueOutOfRange)
	}
	return d.Send(ctx, autoterm.NewTemperatureReport(uint8(celsius)))
}

// SetExternalTemperatureSensor records which external sensor feeds
// SetTemperatureCurrent. An empty id means none. Nothing is sent.
func (d *Device) SetExternalTemperatureSensor(id string) {
	d.state.SetExternalTemperatureSensor(id)
}

// updateSettings writes a copy of the cached settings block with one field
// changed, then asks for the status to learn whether the heater took it
func (d *Device) updateSettings(ctx context.Context, field string, mutate func(autoterm.SettingsBlock) autoterm.SettingsBlock) error {
	d.writeMu.Lock()
	block, rev, ok := d.state.Block()
	if !ok {
		d.writeMu.Unlock()
		return ErrStateNotReady
	}

	next := mutate(block)
	err := d.writeLocked(ctx, autoterm.NewSettingsCommand(next))
	if err == nil {
		d.state.CommitBlock(next, rev)
	}
	d.writeMu.Unlock()

	if err != nil {
		return err
	}
	d.log.Info("settings written", zap.String("field", field), zap.Binary("block", next[:]))
	return d.repoll(ctx)
}

// repoll requests the status after the re-poll delay. The heater does not
// push updates on its own.
func (d *Device) repoll(ctx context.Context) error {
	if err := d.sleep(ctx, d.opts.RepollDelay); err != nil {
		return err
	}
	return d.Send(ctx, autoterm.NewRequest(autoterm.MsgStatus))
}
