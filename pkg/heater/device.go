// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package heater drives an Autoterm heater controller over a Transport. A
// Device owns the link: it runs the reader goroutine that keeps the State up
// to date and serializes every outbound frame.
package heater

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned for writes after Close
	ErrNotConnected = errors.New("device not connected")
	// ErrStateNotReady is returned by settings writes before the first
	// settings response arrived
	ErrStateNotReady = errors.New("settings not received yet")
	// ErrValueOutOfRange is returned for command arguments the heater does
	// not accept
	ErrValueOutOfRange = errors.New("value out of range")
)

// Observer is told about every frame on the link
type Observer interface {
	FrameReceived(f autoterm.Frame)
	FrameRejected(err error)
	FrameSent(f autoterm.Frame)
}

// Options tunes the link timing
type Options struct {
	Logger   *zap.Logger
	Observer Observer

	// Pause after every written frame before the next write may start
	SettleDelay time.Duration
	// Wait before the status request that follows a command. Also spaces
	// the initial requests sent by Connect.
	RepollDelay time.Duration
	// Pause when a read returned no data
	IdleBackoff time.Duration
	// Read timeout applied to transports implementing ReadTimeoutSetter
	ReadTimeout time.Duration
	// First pause after a read failure, doubled up to MaxErrorBackoff
	ErrorBackoff    time.Duration
	MaxErrorBackoff time.Duration
	// Consecutive read failures after which the device is unavailable
	UnavailableThreshold int
	// How long Close waits for the reader before closing the transport
	// under it
	CloseGrace time.Duration
}

// DefaultOptions returns the timing the heater firmware is known to work with
func DefaultOptions() Options {
	return Options{
		SettleDelay:          100 * time.Millisecond,
		RepollDelay:          500 * time.Millisecond,
		IdleBackoff:          10 * time.Millisecond,
		ReadTimeout:          100 * time.Millisecond,
		ErrorBackoff:         1 * time.Second,
		MaxErrorBackoff:      30 * time.Second,
		UnavailableThreshold: 3,
		CloseGrace:           500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = d.SettleDelay
	}
	if o.RepollDelay <= 0 {
		o.RepollDelay = d.RepollDelay
	}
	if o.IdleBackoff <= 0 {
		o.IdleBackoff = d.IdleBackoff
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = d.ErrorBackoff
	}
	if o.MaxErrorBackoff < o.ErrorBackoff {
		o.MaxErrorBackoff = max(d.MaxErrorBackoff, o.ErrorBackoff)
	}
	if o.UnavailableThreshold <= 0 {
		o.UnavailableThreshold = d.UnavailableThreshold
	}
	if o.CloseGrace <= 0 {
		o.CloseGrace = d.CloseGrace
	}
	return o
}

type nopObserver struct{}

func (nopObserver) FrameReceived(autoterm.Frame) {}
func (nopObserver) FrameRejected(error)          {}
func (nopObserver) FrameSent(autoterm.Frame)     {}

// Device is a connected heater
type Device struct {
	transport Transport
	opts      Options
	log       *zap.Logger
	state     *State

	statsMu sync.Mutex
	stats   *autoterm.Statistics

	// writeMu serializes frames on the link and guards closed
	writeMu sync.Mutex
	closed  bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Connect starts talking to the heater on t and requests version, status and
// settings. The device owns t from here on, also when Connect fails; Close
// releases it. ctx only bounds the initial requests.
func Connect(ctx context.Context, t Transport, opts Options) (*Device, error) {
	opts = opts.withDefaults()

	if rt, ok := t.(ReadTimeoutSetter); ok {
		if err := rt.SetReadTimeout(opts.ReadTimeout); err != nil {
			t.Close()
			return nil, &TransportError{Op: "configure", Err: err}
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	d := &Device{
		transport: t,
		opts:      opts,
		log:       opts.Logger,
		state:     NewState(),
		stats:     autoterm.NewStatistics(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go d.readLoop(readCtx)

	requests := []autoterm.MessageID{autoterm.MsgVersion, autoterm.MsgStatus, autoterm.MsgSettings}
	for i, id := range requests {
		if i > 0 {
			if err := d.sleep(ctx, opts.RepollDelay); err != nil {
				d.Close()
				return nil, err
			}
		}
		if err := d.Send(ctx, autoterm.NewRequest(id)); err != nil {
			d.Close()
			return nil, err
		}
	}

	d.log.Info("connected to heater")
	return d, nil
}

// Close stops the reader, waits for an in-flight write and releases the
// transport. It is safe to call more than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()

		select {
		case <-d.done:
		case <-time.After(d.opts.CloseGrace):
			d.log.Debug("reader still blocked, closing transport under it")
		}

		d.writeMu.Lock()
		d.closed = true
		if err := d.transport.Close(); err != nil {
			d.closeErr = &TransportError{Op: "close", Err: err}
		}
		d.writeMu.Unlock()

		<-d.done
		d.state.SetAvailable(false)
		d.log.Info("disconnected from heater")
	})
	return d.closeErr
}

// Done is closed once the reader goroutine has exited
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// State returns the device's state store
func (d *Device) State() *State {
	return d.state
}

// Get returns the current value of a field; ok is false while it is unknown
func (d *Device) Get(field Field) (any, bool) {
	return d.state.Get(field)
}

// Subscribe registers h for changes of field. Responses that repeat the
// current value notify nothing.
func (d *Device) Subscribe(field Field, h Handler) (cancel func()) {
	return d.state.Subscribe(field, h)
}

// Status returns the last status snapshot
func (d *Device) Status() (autoterm.StatusSnapshot, bool) {
	return d.state.Status()
}

// Settings returns the last settings snapshot
func (d *Device) Settings() (autoterm.SettingsSnapshot, bool) {
	return d.state.Settings()
}

// FirmwareVersion returns the version reported by the heater
func (d *Device) FirmwareVersion() (string, bool) {
	v, ok := d.state.Get(FieldBlackboxVersion)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Available reports whether the link is currently delivering frames
func (d *Device) Available() bool {
	v, _ := d.state.Get(FieldAvailable)
	return v.(bool)
}

// Statistics returns a copy of the link statistics
func (d *Device) Statistics() autoterm.Statistics {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := *d.stats
	s.CalculateRates()
	return s
}

// WaitFor blocks until every field is known or ctx is done
func (d *Device) WaitFor(ctx context.Context, fields ...Field) error {
	signal := make(chan struct{}, 1)
	for _, f := range fields {
		cancel := d.state.Subscribe(f, func(Field, any) {
			select {
			case signal <- struct{}{}:
			default:
			}
		})
		defer cancel()
	}

	for {
		missing := false
		for _, f := range fields {
			if _, ok := d.state.Get(f); !ok {
				missing = true
				break
			}
		}
		if !missing {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return ErrNotConnected
		case <-signal:
		}
	}
}

// Poll requests a fresh status and settings snapshot
func (d *Device) Poll(ctx context.Context) error {
	if err := d.Send(ctx, autoterm.NewRequest(autoterm.MsgStatus)); err != nil {
		return err
	}
	return d.Send(ctx, autoterm.NewRequest(autoterm.MsgSettings))
}

// Send writes one frame. Writes are serialized and each is followed by the
// settle delay before the next may start.
func (d *Device) Send(ctx context.Context, f autoterm.Frame) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.writeLocked(ctx, f)
}

// writeLocked writes f; the caller holds writeMu
func (d *Device) writeLocked(ctx context.Context, f autoterm.Frame) error {
	if d.closed {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := f.Bytes()
	if err != nil {
		return err
	}
	if _, err := d.transport.Write(data); err != nil {
		d.log.Warn("write failed", zap.Stringer("frame", f), zap.Error(err))
		return &TransportError{Op: "write", Err: err}
	}
	d.opts.Observer.FrameSent(f)
	d.log.Debug("frame sent", zap.Stringer("frame", f))

	// The settle delay is not cut short by ctx so a following write never
	// reaches the heater early
	time.Sleep(d.opts.SettleDelay)
	return nil
}

// sleep waits for dur, returning early if ctx is done or the device closes
func (d *Device) sleep(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrNotConnected
	}
}

// readLoop feeds frames from the transport into the state until ctx is
// cancelled
func (d *Device) readLoop(ctx context.Context) {
	defer close(d.done)

	scanner := autoterm.NewScanner(d.transport)
	backoff := d.opts.ErrorBackoff
	failures := 0

	for ctx.Err() == nil {
		raw, err := scanner.Next()

		switch {
		case err == nil:
			failures = 0
			backoff = d.opts.ErrorBackoff
			d.handleFrame(raw)

		case errors.Is(err, autoterm.ErrNoData):
			wait(ctx, d.opts.IdleBackoff)

		case errors.Is(err, autoterm.ErrShortFrame):
			d.record(nil, err)
			d.opts.Observer.FrameRejected(err)
			d.log.Debug("partial frame dropped", zap.Error(err))

		default:
			if ctx.Err() != nil {
				return
			}
			failures++
			d.log.Warn("read failed",
				zap.Error(&TransportError{Op: "read", Err: err}),
				zap.Int("failures", failures),
				zap.Duration("backoff", backoff))
			if failures >= d.opts.UnavailableThreshold {
				d.state.SetAvailable(false)
			}
			wait(ctx, backoff)
			backoff = min(backoff*2, d.opts.MaxErrorBackoff)
		}
	}
}

// handleFrame validates and parses one candidate frame
func (d *Device) handleFrame(raw []byte) {
	f, err := autoterm.Decode(raw)
	if err != nil {
		d.record(nil, err)
		d.opts.Observer.FrameRejected(err)
		d.log.Debug("frame rejected", zap.Binary("raw", raw), zap.Error(err))
		return
	}

	msg, err := autoterm.ParseResponse(f)
	d.record(&f, err)
	if err != nil {
		d.opts.Observer.FrameRejected(err)
		d.log.Warn("payload rejected", zap.Stringer("frame", f), zap.Error(err))
		return
	}

	d.opts.Observer.FrameReceived(f)
	d.log.Debug("frame received", zap.Stringer("frame", f))
	d.state.SetAvailable(true)
	if msg == nil {
		return
	}

	if anomalies := autoterm.ValidateMessage(msg); len(anomalies) > 0 {
		d.statsMu.Lock()
		d.stats.RecordAnomalies(anomalies)
		d.statsMu.Unlock()
		for _, a := range anomalies {
			d.log.Warn("implausible value", zap.Stringer("frame", f), zap.String("anomaly", a.Message))
		}
	}
	d.state.Apply(msg)
}

func (d *Device) record(f *autoterm.Frame, err error) {
	d.statsMu.Lock()
	d.stats.Record(f, err)
	d.statsMu.Unlock()
}

func wait(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
