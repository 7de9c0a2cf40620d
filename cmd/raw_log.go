// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rawLogPoll bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Autoterm protocol frames as they arrive.

Shows each frame with timestamp, message type and decoded payload. Frames
failing the checksum are reported and the stream is resynchronized on the next
marker byte.

The heater only answers requests. When listening next to a control panel the
panel's own traffic is shown; on a direct link use --poll to request the status
every few seconds.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogPoll, "poll", false, "Request status every 5 seconds")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Autoterm - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if rawLogPoll {
		go func() {
			request := autoterm.MustEncode(autoterm.NewRequest(autoterm.MsgStatus))
			for {
				if _, err := conn.Write(request); err != nil {
					logger.Warn("status request failed", zap.Error(err))
					return
				}
				time.Sleep(5 * time.Second)
			}
		}()
	}

	scanner := autoterm.NewScanner(conn)
	for {
		raw, err := scanner.Next()
		switch {
		case err == nil:
		case errors.Is(err, autoterm.ErrNoData):
			continue
		case errors.Is(err, autoterm.ErrShortFrame):
			fmt.Printf("[ERROR] %v\n", err)
			continue
		case errors.Is(err, ErrConnectionClosed):
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			logger.Info("connection closed")
			return nil
		default:
			logger.Warn("read error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		f, err := autoterm.Decode(raw)
		if err != nil {
			fmt.Printf("[ERROR] %v (% X)\n", err, raw)
			continue
		}
		fmt.Print(autoterm.FormatFrame(f, time.Now()))
	}
}
