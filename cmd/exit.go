// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
)

// exitError ends a command with a specific exit code. A nil err means the
// command already reported the failure.
type exitError struct {
	code int
	err  error
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode reports err on w and returns the process exit code for it
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(w, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

// connectExit maps a connectSynced failure to an exit code: 1 when the heater
// stayed silent, 2 when the link could not be opened
func connectExit(err error) error {
	if errors.Is(err, errNoAnswer) {
		return exitWith(1, err)
	}
	return exitWith(2, err)
}
