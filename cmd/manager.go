// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/autoterm/pkg/heater"
	"go.uber.org/zap"
)

const (
	reconnectBackoff    = 1 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

// deviceManager keeps a device connected, reconnecting with exponential
// backoff when the link is lost. Callbacks run on the manager goroutine.
type deviceManager struct {
	observer heater.Observer

	// onConnect is called for every new device; the returned function is
	// called before that device is closed
	onConnect func(d *heater.Device, connInfo string) (release func())
	// onLost is called after a connected device has been closed because
	// its link went down
	onLost func(connInfo string)
	// onRetry is called after a failed connection attempt
	onRetry func(err error, backoff time.Duration)

	mu       sync.RWMutex
	dev      *heater.Device
	connInfo string
}

// device returns the connected device, or nil while reconnecting
func (m *deviceManager) device() *heater.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dev
}

func (m *deviceManager) setDevice(d *heater.Device, connInfo string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dev = d
	m.connInfo = connInfo
}

// run connects and reconnects until ctx is done
func (m *deviceManager) run(ctx context.Context) {
	backoff := reconnectBackoff

	for ctx.Err() == nil {
		d, connInfo, err := connectDevice(ctx, m.observer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Connection failed", zap.Error(err), zap.Duration("retry", backoff))
			if m.onRetry != nil {
				m.onRetry(err, backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			// Exponential backoff
			backoff = min(backoff*2, maxReconnectBackoff)
			continue
		}
		backoff = reconnectBackoff

		m.setDevice(d, connInfo)
		release := func() {}
		if m.onConnect != nil {
			release = m.onConnect(d, connInfo)
		}

		m.watch(ctx, d)

		release()
		m.setDevice(nil, "")
		d.Close()

		if ctx.Err() != nil {
			return
		}
		logger.Warn("Link lost, reconnecting", zap.String("connection", connInfo))
		if m.onLost != nil {
			m.onLost(connInfo)
		}
	}
}

// watch blocks until the device reports its link down or ctx is done
func (m *deviceManager) watch(ctx context.Context, d *heater.Device) {
	lost := make(chan struct{}, 1)
	cancel := d.Subscribe(heater.FieldAvailable, func(_ heater.Field, v any) {
		if up, _ := v.(bool); !up {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	select {
	case <-ctx.Done():
	case <-lost:
	case <-d.Done():
	}
}
