// SPDX-License-Identifier: Apache-2.0
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

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data and unknown messages with statistics.

This command checks each frame and detects:
  - Checksum mismatches and truncated frames
  - Payloads too short for their message
  - Message types and ids missing from the protocol tables
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are checked in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// frameResult is one candidate frame read from the link
type frameResult struct {
	raw       []byte
	frame     *autoterm.Frame
	err       error
	anomalies []autoterm.ValidationError
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Autoterm - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := autoterm.NewStatistics()
	scanner := autoterm.NewScanner(conn)

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	results := make(chan frameResult, 10)
	go func() {
		defer close(results)
		for {
			raw, err := scanner.Next()
			switch {
			case errors.Is(err, autoterm.ErrNoData):
				continue
			case errors.Is(err, ErrConnectionClosed):
				return
			case err != nil && !errors.Is(err, autoterm.ErrShortFrame):
				logger.Warn("read error", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			results <- checkFrame(raw, err)
		}
	}()

	synchronized := false
	for {
		select {
		case res, ok := <-results:
			if !ok {
				fmt.Println("Connection closed")
				fmt.Print(stats.String())
				return nil
			}

			// Ignore errors until the first valid frame
			if !synchronized {
				if res.err != nil {
					continue
				}
				synchronized = true
				fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", scanner.Skipped())
			}

			stats.Record(res.frame, res.err)
			stats.RecordAnomalies(res.anomalies)
			switch {
			case res.err != nil:
				printFrameError(res)
			case len(res.anomalies) > 0:
				printAnomalies(res)
			case !res.frame.Known():
				printUnknownFrame(*res.frame)
			case showAll:
				fmt.Print(autoterm.FormatFrame(*res.frame, time.Now()))
			}

		case <-statsTicker.C:
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// checkFrame decodes a candidate frame and parses its payload
func checkFrame(raw []byte, readErr error) frameResult {
	res := frameResult{raw: raw, err: readErr}
	if readErr != nil {
		return res
	}

	f, err := autoterm.Decode(raw)
	if err != nil {
		res.err = err
		return res
	}
	res.frame = &f
	msg, err := autoterm.ParseResponse(f)
	if err != nil {
		res.err = err
		return res
	}
	if msg != nil {
		res.anomalies = autoterm.ValidateMessage(msg)
	}
	return res
}

// printFrameError prints a rejected frame in highlighted format
func printFrameError(res frameResult) {
	timestamp := time.Now().Format("15:04:05.000")

	switch {
	case errors.Is(res.err, autoterm.ErrPayloadTooShort):
		fmt.Printf("[%s] \033[1;33mPAYLOAD ERROR:\033[0m %s\n", timestamp, autoterm.FormatMessageID(res.frame.Type, res.frame.ID))
		fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
		fmt.Printf("  Issue: %v\n", res.err)
		fmt.Printf("  Payload: % X\n", res.frame.Payload)
		fmt.Printf("  >>> SNAPSHOT KEPT <<<\n\n")
	default:
		fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %v\n", timestamp, res.err)
		if len(res.raw) > 0 {
			fmt.Printf("  Raw: % X\n", res.raw)
		}
		fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
	}
}

// printUnknownFrame prints a valid frame missing from the protocol tables
func printUnknownFrame(f autoterm.Frame) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;36mUNKNOWN MESSAGE:\033[0m type=0x%02X id=0x%02X\n", timestamp, uint8(f.Type), uint8(f.ID))
	fmt.Print(autoterm.FormatPayload(f))
	fmt.Println()
}

// printAnomalies prints a valid frame carrying implausible values
func printAnomalies(res frameResult) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, autoterm.FormatMessageID(res.frame.Type, res.frame.ID))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
	for _, a := range res.anomalies {
		fmt.Printf("  Issue: %s\n", a.Message)
	}
	fmt.Printf("  Payload: % X\n\n", res.frame.Payload)
}
