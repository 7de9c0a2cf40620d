// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var setConfirmTimeout time.Duration

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a heater setting or its operating state",
	Long: `Connect to the heater, wait for its current settings and change one value.

Settings writes carry the whole settings block, so the heater must have
answered the initial settings request first. The heater is polled again after
every write and the confirmed value is printed.

Exit codes:
  0 - Value written
  1 - Value rejected or heater did not answer
  2 - Connection error`,
}

// setting describes one "set" subcommand. field is the value the heater
// reports back after the write; it is empty when nothing is echoed.
type setting struct {
	use   string
	short string
	field heater.Field
	apply func(ctx context.Context, d *heater.Device, arg string) error
}

var settings = []setting{
	{
		use:   "control <off|heat|fan_only>",
		short: "Switch the heater off, start heating or run the fan only",
		field: heater.FieldControl,
		apply: func(ctx context.Context, d *heater.Device, arg string) error {
			return d.SetControl(ctx, heater.Control(arg))
		},
	},
	{
		use:   "temperature <celsius>",
		short: "Set the target temperature",
		field: heater.FieldTemperatureTarget,
		apply: intSetting((*heater.Device).SetTemperatureTarget),
	},
	{
		use:   "work-time <minutes>",
		short: "Set the run timer, 0 disables it",
		field: heater.FieldWorkTime,
		apply: intSetting((*heater.Device).SetWorkTime),
	},
	{
		use:   "sensor <heater|panel|manual>",
		short: "Select the temperature sensor the heater regulates on",
		field: heater.FieldSensor,
		apply: func(ctx context.Context, d *heater.Device, arg string) error {
			s, ok := autoterm.ParseSensor(arg)
			if !ok {
				return fmt.Errorf("unknown sensor %q", arg)
			}
			return d.SetSensor(ctx, s)
		},
	},
	{
		use:   "mode <maintain_temperature|heat_ventilation|power_level|thermostat>",
		short: "Select the regulation mode",
		field: heater.FieldMode,
		apply: func(ctx context.Context, d *heater.Device, arg string) error {
			m, ok := autoterm.ParseMode(arg)
			if !ok {
				return fmt.Errorf("unknown mode %q", arg)
			}
			return d.SetMode(ctx, m)
		},
	},
	{
		use:   "level <0-9>",
		short: "Set the power level",
		field: heater.FieldLevel,
		apply: intSetting((*heater.Device).SetLevel),
	},
	{
		use:   "power <10-100>",
		short: "Set the power in percent, in steps of 10",
		field: heater.FieldPower,
		apply: intSetting((*heater.Device).SetPower),
	},
	{
		use:   "current-temperature <celsius>",
		short: "Report a room temperature to the heater",
		apply: intSetting((*heater.Device).SetTemperatureCurrent),
	},
}

// name is the subcommand name
func (s setting) name() string {
	name, _, _ := strings.Cut(s.use, " ")
	return name
}

func intSetting(fn func(*heater.Device, context.Context, int) error) func(context.Context, *heater.Device, string) error {
	return func(ctx context.Context, d *heater.Device, arg string) error {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid number %q", arg)
		}
		return fn(d, ctx, n)
	}
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.PersistentFlags().DurationVar(&syncTimeout, "sync-timeout", 5*time.Second, "Time to wait for the initial responses")
	setCmd.PersistentFlags().DurationVar(&setConfirmTimeout, "confirm-timeout", 2*time.Second, "Time to wait for the heater to confirm the change")

	for _, s := range settings {
		setCmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSet(cmd, s, args[0])
			},
		})
	}
}

func runSet(cmd *cobra.Command, s setting, arg string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	d, connInfo, err := connectSynced(ctx)
	if err != nil {
		return connectExit(err)
	}
	defer d.Close()

	fmt.Printf("Connection: %s\n", connInfo)

	if s.field == "" {
		if err := s.apply(ctx, d, arg); err != nil {
			return exitWith(1, err)
		}
		fmt.Printf("%s: sent\n", s.name())
		return nil
	}

	before, _ := d.Get(s.field)

	changed := make(chan any, 1)
	unsubscribe := d.Subscribe(s.field, func(_ heater.Field, v any) {
		select {
		case changed <- v:
		default:
		}
	})
	defer unsubscribe()

	if err := s.apply(ctx, d, arg); err != nil {
		logger.Debug("Set failed", zap.String("field", string(s.field)), zap.Error(err))
		return exitWith(1, err)
	}

	select {
	case v := <-changed:
		fmt.Printf("%s: %v -> %v\n", s.field, displayValue(before), displayValue(v))
	case <-time.After(setConfirmTimeout):
		now, _ := d.Get(s.field)
		fmt.Printf("%s: %v (unchanged)\n", s.field, displayValue(now))
	}
	return nil
}

func displayValue(v any) any {
	if v == nil {
		return "unknown"
	}
	return v
}
