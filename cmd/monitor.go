// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/autoterm/pkg/heater"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for monitoring and controlling the heater",
	Long: `Monitor and control the heater via an interactive terminal UI.

The heater is connected directly (UART) or through a WebSocket serial bridge.

Features:
  - Live status, telemetry and settings
  - Switching off, heating and fan only
  - Changing target temperature, level, power, mode, sensor and timer
  - Link statistics
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the action list, the value input and the apply button.
Arrow keys navigate the action list.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cfg.Serial.Port == "" && cfg.Bridge.URL == "" {
		return fmt.Errorf("either --port or --url must be specified")
	}

	// Log lines would tear the alt screen; keep only the file sink if any
	logger = zap.NewNop()
	if l, err := cfg.NewFileLogger(); err == nil {
		logger = l
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mgr := &deviceManager{}
	m := initialMonitorModel(mgr)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	mgr.onConnect = func(d *heater.Device, connInfo string) func() {
		p.Send(connectedMsg{connInfo: connInfo})
		return forwardFields(d, p.Send)
	}
	mgr.onLost = func(string) {
		p.Send(connectionLostMsg{})
	}
	mgr.onRetry = func(err error, backoff time.Duration) {
		p.Send(retryMsg{err: err, backoff: backoff})
	}

	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		mgr.run(ctx)
	}()

	// Run TUI
	_, err := p.Run()
	cancel() // Signal the manager to stop
	<-managerDone
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// forwardFields sends the current value of every field and every later
// change as fieldMsg. The returned function unsubscribes.
func forwardFields(d *heater.Device, send func(tea.Msg)) func() {
	cancels := make([]func(), 0, len(heater.Fields))
	for _, field := range heater.Fields {
		cancels = append(cancels, d.Subscribe(field, func(f heater.Field, v any) {
			send(fieldMsg{field: f, value: v})
		}))
		if v, ok := d.Get(field); ok {
			send(fieldMsg{field: field, value: v})
		}
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
