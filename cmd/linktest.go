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

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test connection stability and framing",
	Long: `Listen on the link to the heater or the WebSocket bridge without sending
anything and report how well the byte stream frames.

Every candidate frame the scanner finds is checked. The report counts valid,
rejected and partial frames, bytes skipped while hunting for a marker and the
longest silence between valid frames. A control panel keeps the heater talking,
so a healthy link shows a steady stream of valid frames.

Exit codes:
  0 - Link stayed up for the whole duration
  1 - Link failed during the test
  2 - Connection error`,
	RunE: runLinkTest,
}

var linkTestDuration int

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

// linkCounters tallies what the scanner delivered
type linkCounters struct {
	started    time.Time
	lastValid  time.Time
	longestGap time.Duration

	candidates int
	valid      int
	rejected   int
	partial    int
}

func newLinkCounters(now time.Time) *linkCounters {
	return &linkCounters{started: now, lastValid: now}
}

// observe records one scanner result. It returns the frame and true for a
// candidate that decoded.
func (c *linkCounters) observe(raw []byte, err error, now time.Time) (autoterm.Frame, bool) {
	if err != nil {
		if errors.Is(err, autoterm.ErrShortFrame) {
			c.partial++
		}
		return autoterm.Frame{}, false
	}

	c.candidates++
	f, err := autoterm.Decode(raw)
	if err != nil {
		c.rejected++
		return autoterm.Frame{}, false
	}

	c.valid++
	c.noteGap(now)
	c.lastValid = now
	return f, true
}

func (c *linkCounters) noteGap(now time.Time) {
	c.longestGap = max(c.longestGap, now.Sub(c.lastValid))
}

// summary prints the counters; skipped is the scanner's discarded byte count
func (c *linkCounters) summary(skipped uint64, now time.Time) string {
	c.noteGap(now)
	return fmt.Sprintf("Duration: %v\n"+
		"Candidate frames: %d\n"+
		"Valid frames: %d\n"+
		"Rejected frames: %d\n"+
		"Partial frames: %d\n"+
		"Skipped bytes: %d\n"+
		"Longest silence: %v\n",
		now.Sub(c.started).Round(time.Millisecond),
		c.candidates, c.valid, c.rejected, c.partial, skipped,
		c.longestGap.Round(time.Millisecond))
}

type scanResult struct {
	raw []byte
	err error
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return exitWith(2, nil)
	}
	defer conn.Close()

	fmt.Printf("Autoterm - Link Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(linkTestDuration)*time.Second)
	defer cancel()

	scanner := autoterm.NewScanner(conn)
	results := make(chan scanResult, 16)
	skipped := make(chan uint64, 1)
	go func() {
		defer func() { skipped <- scanner.Skipped() }()
		for {
			raw, err := scanner.Next()
			if errors.Is(err, autoterm.ErrNoData) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			select {
			case results <- scanResult{raw: raw, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !errors.Is(err, autoterm.ErrShortFrame) {
				return
			}
		}
	}()

	counters := newLinkCounters(time.Now())
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	fmt.Printf("Listening...\n\n")

	for {
		select {
		case r := <-results:
			now := time.Now()
			if r.err != nil && !errors.Is(r.err, autoterm.ErrShortFrame) {
				fmt.Printf("\n[%s] Connection error: %v\n", now.Format("15:04:05.000"), r.err)
				fmt.Printf("\n--- Test Results ---\n")
				fmt.Print(counters.summary(<-skipped, now))
				fmt.Printf("Result: FAILED (connection error)\n")
				return exitWith(1, nil)
			}
			if f, ok := counters.observe(r.raw, r.err, now); ok {
				fmt.Print(autoterm.FormatFrame(f, now))
			} else if r.err == nil {
				fmt.Printf("[%s] Rejected candidate: % X\n", now.Format("15:04:05.000"), r.raw)
			}

		case <-heartbeat.C:
			deadline, _ := ctx.Deadline()
			fmt.Printf("[%s] %d valid, %d rejected (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), counters.valid, counters.rejected,
				time.Until(deadline).Seconds())

		case <-ctx.Done():
			// The scanner stops at its next read timeout
			n := <-skipped
			fmt.Printf("\n--- Test Results ---\n")
			fmt.Print(counters.summary(n, time.Now()))
			fmt.Printf("Result: PASSED (connection stable)\n")
			return nil
		}
	}
}
