// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Autoterm - Autoterm Air Heater Tool
//
// A CLI tool for monitoring, decoding and controlling Autoterm diesel air
// heaters over their serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/autoterm/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
