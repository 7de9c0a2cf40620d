// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes the heater link and device state to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoterm"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics counts frames on the heater link. It implements
// heater.Observer.
type LinkMetrics struct {
	FramesReceived *prometheus.CounterVec // labels: message
	FramesRejected *prometheus.CounterVec // labels: reason
	FramesSent     *prometheus.CounterVec // labels: message
	Reconnects     prometheus.Counter
}

var _ heater.Observer = (*LinkMetrics)(nil)

// NewLinkMetrics registers and returns the link counters
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Valid frames received from the heater.",
		}, []string{"message"}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Frames dropped by the decoder or a payload parser.",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the heater.",
		}, []string{"message"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Times the link was reopened after a failure.",
		}),
	}
	reg.MustRegister(m.FramesReceived, m.FramesRejected, m.FramesSent, m.Reconnects)
	return m
}

// FrameReceived implements heater.Observer
func (m *LinkMetrics) FrameReceived(f autoterm.Frame) {
	m.FramesReceived.WithLabelValues(f.IDName()).Inc()
}

// FrameRejected implements heater.Observer
func (m *LinkMetrics) FrameRejected(err error) {
	m.FramesRejected.WithLabelValues(RejectReason(err)).Inc()
}

// FrameSent implements heater.Observer
func (m *LinkMetrics) FrameSent(f autoterm.Frame) {
	m.FramesSent.WithLabelValues(f.IDName()).Inc()
}

// RejectReason maps a frame error to a metric label
func RejectReason(err error) string {
	switch {
	case errors.Is(err, autoterm.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, autoterm.ErrIncompleteFrame):
		return "incomplete"
	case errors.Is(err, autoterm.ErrShortFrame):
		return "short_read"
	case errors.Is(err, autoterm.ErrPayloadTooShort):
		return "payload_too_short"
	case errors.Is(err, autoterm.ErrMissingMarker):
		return "missing_marker"
	}
	return "other"
}

// DeviceMetrics mirrors numeric device fields as gauges
type DeviceMetrics struct {
	Values    *prometheus.GaugeVec // labels: field
	Available prometheus.Gauge
	Status    *prometheus.GaugeVec // labels: code, text
}

// gaugeFields are the device fields exported as autoterm_device_value
var gaugeFields = []heater.Field{
	heater.FieldErrorCode,
	heater.FieldBoardTemp,
	heater.FieldExternalTemp,
	heater.FieldVoltage,
	heater.FieldFlameTemperature,
	heater.FieldFanRPMSpecified,
	heater.FieldFanRPMActual,
	heater.FieldFuelPumpFrequency,
	heater.FieldWorkTime,
	heater.FieldTemperatureTarget,
	heater.FieldLevel,
	heater.FieldPower,
	heater.FieldTemperaturePanel,
	heater.FieldControllerTemp,
}

// NewDeviceMetrics registers and returns the device gauges
func NewDeviceMetrics(reg prometheus.Registerer) *DeviceMetrics {
	m := &DeviceMetrics{
		Values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_value",
			Help:      "Latest numeric value reported by the heater, by field.",
		}, []string{"field"}),
		Available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_available",
			Help:      "1 while the heater link delivers frames.",
		}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_status",
			Help:      "1 for the current heater status code.",
		}, []string{"code", "text"}),
	}
	reg.MustRegister(m.Values, m.Available, m.Status)
	return m
}

// Source is the device state the gauges follow. Both *heater.Device and
// *heater.State implement it.
type Source interface {
	Get(field heater.Field) (any, bool)
	Subscribe(field heater.Field, h heater.Handler) (cancel func())
}

// Watch sets the gauges from the current state of src and keeps them
// updated. The returned function unsubscribes.
func (m *DeviceMetrics) Watch(src Source) (cancel func()) {
	fields := append(append([]heater.Field(nil), gaugeFields...), heater.FieldAvailable, heater.FieldStatusCode)

	var cancels []func()
	for _, field := range fields {
		cancels = append(cancels, src.Subscribe(field, m.set))
		if v, ok := src.Get(field); ok {
			m.set(field, v)
		}
	}

	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (m *DeviceMetrics) set(field heater.Field, v any) {
	switch field {
	case heater.FieldAvailable:
		if up, _ := v.(bool); up {
			m.Available.Set(1)
		} else {
			m.Available.Set(0)
		}
	case heater.FieldStatusCode:
		code, _ := v.(string)
		m.Status.Reset()
		m.Status.WithLabelValues(code, autoterm.StatusText(code)).Set(1)
	default:
		if n, ok := toFloat(v); ok {
			m.Values.WithLabelValues(string(field)).Set(n)
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
