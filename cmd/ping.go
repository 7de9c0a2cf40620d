// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending status requests to the heater",
	Long: `Send status requests to the heater and wait for the status response.

This command tests bidirectional communication with the heater, directly or
through the WebSocket bridge, and reports the round trip time and the heater
status of every answer.

This is useful for verifying:
  - The serial port or WebSocket connection is established
  - HTTP Basic authentication works (WebSocket)
  - The heater answers requests
  - Frames pass the checksum in both directions

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return exitWith(2, nil)
	}
	defer conn.Close()

	fmt.Printf("Autoterm - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	scanner := autoterm.NewScanner(conn)
	request := autoterm.MustEncode(autoterm.NewRequest(autoterm.MsgStatus))
	isStatus := func(f autoterm.Frame) bool {
		return f.Is(autoterm.MsgTypeResponse, autoterm.MsgStatus)
	}

	successCount := 0
	failCount := 0
	var totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if _, err := conn.Write(request); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(pingTimeout)*time.Second)
		f, err := waitForFrame(ctx, scanner, isStatus)
		cancel()

		switch {
		case err == nil:
			rtt := time.Since(startTime)
			totalRTT += rtt
			status := "unparsed"
			if s, err := autoterm.ParseStatus(f.Payload); err == nil {
				status = fmt.Sprintf("%s (%s)", s.StatusCode(), s.StatusText())
			}
			fmt.Printf("status %s, rtt=%v\n", status, rtt.Round(time.Millisecond))
			successCount++

		case errors.Is(err, context.DeadlineExceeded):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++

		default:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (totalRTT / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		return exitWith(1, nil)
	}
	return nil
}
