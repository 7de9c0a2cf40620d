// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleReader reports an idle line forever, like a serial port with a read
// timeout and nothing connected
type idleReader struct{}

func (idleReader) Read([]byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func isStatusResponse(f autoterm.Frame) bool {
	return f.Is(autoterm.MsgTypeResponse, autoterm.MsgStatus)
}

func TestWaitForFrame_SkipsUntilMatch(t *testing.T) {
	status := autoterm.MustEncode(autoterm.NewFrame(autoterm.MsgTypeResponse, autoterm.MsgStatus,
		[]byte{0, 1, 0, 20, 0, 0, 135, 0, 10, 0, 0, 0, 0, 0, 0}))
	corrupt := append([]byte(nil), status...)
	corrupt[len(corrupt)-1] ^= 0xFF

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, 0x37})
	stream.Write(autoterm.MustEncode(autoterm.NewFrame(autoterm.MsgTypeResponse, autoterm.MsgVersion, []byte{1, 2, 3, 4, 5})))
	stream.Write(corrupt)
	stream.Write(status)

	f, err := waitForFrame(context.Background(), autoterm.NewScanner(&stream), isStatusResponse)
	require.NoError(t, err)
	assert.Equal(t, autoterm.MsgStatus, f.ID)
	assert.Len(t, f.Payload, 15)
}

func TestWaitForFrame_ConnectionClosed(t *testing.T) {
	stream := bytes.NewReader([]byte{0x01, 0x02})
	_, err := waitForFrame(context.Background(), autoterm.NewScanner(stream), isStatusResponse)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWaitForFrame_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waitForFrame(ctx, autoterm.NewScanner(idleReader{}), isStatusResponse)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
