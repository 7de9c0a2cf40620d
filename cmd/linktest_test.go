// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkCounters(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newLinkCounters(start)

	good := autoterm.MustEncode(autoterm.NewRequest(autoterm.MsgStatus))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF

	f, ok := c.observe(good, nil, start.Add(100*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, autoterm.MsgStatus, f.ID)

	_, ok = c.observe(bad, nil, start.Add(200*time.Millisecond))
	assert.False(t, ok)

	_, ok = c.observe(nil, autoterm.ErrShortFrame, start.Add(300*time.Millisecond))
	assert.False(t, ok)

	_, ok = c.observe(good, nil, start.Add(1100*time.Millisecond))
	require.True(t, ok)

	assert.Equal(t, 3, c.candidates)
	assert.Equal(t, 2, c.valid)
	assert.Equal(t, 1, c.rejected)
	assert.Equal(t, 1, c.partial)
	assert.Equal(t, time.Second, c.longestGap)

	out := c.summary(7, start.Add(3*time.Second))
	assert.Contains(t, out, "Duration: 3s")
	assert.Contains(t, out, "Valid frames: 2")
	assert.Contains(t, out, "Rejected frames: 1")
	assert.Contains(t, out, "Partial frames: 1")
	assert.Contains(t, out, "Skipped bytes: 7")
	// Silence after the last frame counts too
	assert.Contains(t, out, "Longest silence: 1.9s")
}
