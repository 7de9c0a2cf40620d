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
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Find heaters on serial ports or behind a WebSocket bridge",
	Long: `Send a version request and report the firmware version of the heater that
answers.

Modes:
  Explicit (--port or --url): Probe the given serial port or bridge only.

  Scan (no connection flags): Enumerate the serial ports of this machine and
                              probe each one with the configured baud rate.

Examples:
  # Probe a known port
  autoterm probe --port /dev/ttyUSB0

  # Scan every serial port
  autoterm probe

  # Probe through a WebSocket bridge
  autoterm probe --url ws://bridge.local/autoterm

Exit codes:
  0 - At least one heater found
  1 - No heater answered
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 2, "Timeout in seconds per port")
}

type probeResult struct {
	target  string
	version string
}

func runProbe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Autoterm - Heater Probe\n")
	fmt.Printf("Timeout: %d seconds per target\n\n", probeTimeout)

	var found []probeResult

	if cfg.Bridge.URL != "" || cfg.Serial.Port != "" {
		conn, connInfo, err := OpenConnection()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			return exitWith(2, nil)
		}
		version, err := probeVersion(conn)
		conn.Close()
		if err != nil {
			fmt.Printf("%s: %v\n", connInfo, err)
		} else {
			fmt.Printf("%s: heater firmware %s\n", connInfo, version)
			found = append(found, probeResult{target: connInfo, version: version})
		}
	} else {
		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
			return exitWith(2, nil)
		}
		if len(ports) == 0 {
			fmt.Printf("No serial ports found\n")
		}

		for _, port := range ports {
			label := port.Name
			if port.IsUSB {
				label = fmt.Sprintf("%s (USB %s:%s %s)", port.Name, port.VID, port.PID, port.Product)
			}
			logger.Debug("Probing serial port", zap.String("port", port.Name))

			conn, err := OpenSerialConnection(port.Name, cfg.Serial.Baud)
			if err != nil {
				fmt.Printf("%s: %v\n", label, err)
				continue
			}
			if err := conn.SetReadTimeout(cfg.Serial.ReadTimeout); err != nil {
				conn.Close()
				fmt.Printf("%s: %v\n", label, err)
				continue
			}

			version, err := probeVersion(conn)
			conn.Close()
			if err != nil {
				fmt.Printf("%s: %v\n", label, err)
				continue
			}
			fmt.Printf("%s: heater firmware %s\n", label, version)
			found = append(found, probeResult{target: port.Name, version: version})
		}
	}

	// Summary
	fmt.Printf("\n--- Probe summary ---\n")
	fmt.Printf("Heaters found: %d\n", len(found))
	for _, r := range found {
		fmt.Printf("  %s  firmware %s\n", r.target, r.version)
	}

	if len(found) == 0 {
		fmt.Printf("No heater answered. Check wiring, baud rate and heater power.\n")
		return exitWith(1, nil)
	}
	return nil
}

// probeVersion sends a version request and waits for the answer.
func probeVersion(conn Connection) (string, error) {
	if _, err := conn.Write(autoterm.MustEncode(autoterm.NewRequest(autoterm.MsgVersion))); err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	f, err := waitForFrame(ctx, autoterm.NewScanner(conn), func(f autoterm.Frame) bool {
		return f.Is(autoterm.MsgTypeResponse, autoterm.MsgVersion)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("no answer")
	}
	if err != nil {
		return "", err
	}

	v, err := autoterm.ParseVersion(f.Payload)
	if err != nil {
		return "", err
	}
	return v.Version, nil
}
