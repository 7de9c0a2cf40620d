// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statusPayload = []byte{0, 1, 0, 20, 0xFE, 0, 135, 0, 10, 0, 0, 2, 2, 0, 50}

func TestLinkMetrics_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLinkMetrics(reg)

	m.FrameSent(autoterm.NewRequest(autoterm.MsgStatus))
	m.FrameSent(autoterm.NewRequest(autoterm.MsgStatus))
	m.FrameReceived(autoterm.NewFrame(autoterm.MsgTypeResponse, autoterm.MsgSettings, make([]byte, 6)))
	m.FrameRejected(fmt.Errorf("decode: %w", autoterm.ErrChecksumMismatch))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("settings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected.WithLabelValues("checksum")))
}

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{autoterm.ErrChecksumMismatch, "checksum"},
		{autoterm.ErrIncompleteFrame, "incomplete"},
		{autoterm.ErrShortFrame, "short_read"},
		{fmt.Errorf("status: %w", autoterm.ErrPayloadTooShort), "payload_too_short"},
		{autoterm.ErrMissingMarker, "missing_marker"},
		{io.ErrUnexpectedEOF, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, RejectReason(tt.err))
		})
	}
}

func TestDeviceMetrics_Watch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeviceMetrics(reg)
	state := heater.NewState()

	status, err := autoterm.ParseStatus(statusPayload)
	require.NoError(t, err)
	state.ApplyStatus(status)

	cancel := m.Watch(state)
	defer cancel()

	// Known before Watch
	assert.Equal(t, 13.5, testutil.ToFloat64(m.Values.WithLabelValues("voltage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("0.1", "Standby")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Available))

	settings, err := autoterm.ParseSettings([]byte{0, 120, 1, 22, 3, 4})
	require.NoError(t, err)
	state.ApplySettings(settings)
	state.SetAvailable(true)

	assert.Equal(t, 50.0, testutil.ToFloat64(m.Values.WithLabelValues("power")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.Values.WithLabelValues("controller_temp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Available))

	// A new status code replaces the old series
	heating := append([]byte(nil), statusPayload...)
	heating[0], heating[1] = 3, 0
	status, err = autoterm.ParseStatus(heating)
	require.NoError(t, err)
	state.ApplyStatus(status)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Status))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("3.0", "Heating")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewLinkMetrics(reg)
	m.Reconnects.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, "autoterm_reconnects_total 1"), body)
	assert.Contains(t, body, "go_goroutines")
}
