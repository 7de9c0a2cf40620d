// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/autoterm/pkg/heater"
	"go.uber.org/zap"
)

var syncTimeout time.Duration

// errNoAnswer is returned when the link opened but the heater stayed silent.
var errNoAnswer = errors.New("heater did not answer")

// syncFields are the fields every initial response fills in.
var syncFields = []heater.Field{
	heater.FieldStatusCode,
	heater.FieldLevel,
	heater.FieldBlackboxVersion,
}

// connectDevice opens the configured connection and starts a device on it.
// A nil observer is allowed.
func connectDevice(ctx context.Context, observer heater.Observer) (*heater.Device, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	opts := cfg.DeviceOptions(logger)
	opts.Observer = observer

	// Connect closes conn when it fails
	d, err := heater.Connect(ctx, conn, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start device: %w", err)
	}
	logger.Debug("Device connected", zap.String("connection", connInfo))
	return d, connInfo, nil
}

// connectSynced connects and waits until the first status, settings and
// version responses have been applied.
func connectSynced(ctx context.Context) (*heater.Device, string, error) {
	d, connInfo, err := connectDevice(ctx, nil)
	if err != nil {
		return nil, "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := d.WaitFor(waitCtx, syncFields...); err != nil {
		d.Close()
		return nil, "", fmt.Errorf("%w on %s: %v", errNoAnswer, connInfo, err)
	}
	return d, connInfo, nil
}
