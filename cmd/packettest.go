// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
	packetTestListen  bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Autoterm frame",
	Long: `Wait for a valid Autoterm frame on the connection until timeout.

This command connects to a serial port or WebSocket, sends a status request
and waits for any valid frame. It ignores invalid bytes and waits for a
complete frame passing the checksum. Use --listen to only listen, for example
next to a control panel that polls the heater itself.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to the heater or the WebSocket bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestListen, "listen", false, "Do not send a status request")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return exitWith(2, nil)
	}
	defer conn.Close()

	fmt.Printf("Autoterm - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	if !packetTestListen {
		if _, err := conn.Write(autoterm.MustEncode(autoterm.NewRequest(autoterm.MsgStatus))); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			return exitWith(2, nil)
		}
	}
	fmt.Printf("Waiting for valid frame...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	scanner := autoterm.NewScanner(conn)
	f, err := waitForFrame(ctx, scanner, func(autoterm.Frame) bool { return true })
	switch {
	case err == nil:
		if skipped := scanner.Skipped(); skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", autoterm.FormatMessageType(f.Type), uint8(f.Type))
		fmt.Printf("  Message: %s (0x%02X)\n", f.IDName(), uint8(f.ID))
		fmt.Printf("  Length: %d bytes\n", len(f.Payload))
		fmt.Printf("  Checksum: 0x%04X\n", f.Checksum)
		return nil

	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		return exitWith(1, nil)

	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		return exitWith(2, nil)
	}
}

// waitForFrame reads until a valid frame accepted by match arrives or ctx is
// done. Invalid frames are skipped. The reader must time out on its own for
// ctx to be noticed.
func waitForFrame(ctx context.Context, scanner *autoterm.Scanner, match func(autoterm.Frame) bool) (autoterm.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return autoterm.Frame{}, err
		}

		raw, err := scanner.Next()
		switch {
		case err == nil:
		case errors.Is(err, autoterm.ErrNoData), errors.Is(err, autoterm.ErrShortFrame):
			continue
		case errors.Is(err, io.EOF):
			return autoterm.Frame{}, ErrConnectionClosed
		default:
			return autoterm.Frame{}, err
		}

		f, err := autoterm.Decode(raw)
		if err != nil {
			continue
		}
		if match(f) {
			return f, nil
		}
	}
}
