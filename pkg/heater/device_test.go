// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heater

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const eventually = 2 * time.Second

func testOptions(t *testing.T) Options {
	return Options{
		Logger:               zaptest.NewLogger(t),
		SettleDelay:          time.Millisecond,
		RepollDelay:          2 * time.Millisecond,
		IdleBackoff:          time.Millisecond,
		ReadTimeout:          5 * time.Millisecond,
		ErrorBackoff:         2 * time.Millisecond,
		MaxErrorBackoff:      10 * time.Millisecond,
		UnavailableThreshold: 3,
		CloseGrace:           50 * time.Millisecond,
	}
}

func connect(t *testing.T, opts Options) (*Device, *loopback) {
	t.Helper()
	l := newLoopback()
	d, err := Connect(context.Background(), l, opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, l
}

// connectSynced connects and feeds the status and settings test vectors
func connectSynced(t *testing.T) (*Device, *loopback) {
	t.Helper()
	return connectSyncedWith(t, testOptions(t))
}

func connectSyncedWith(t *testing.T, opts Options) (*Device, *loopback) {
	t.Helper()
	d, l := connect(t, opts)
	l.respond(autoterm.MsgStatus, statusPayload)
	l.respond(autoterm.MsgSettings, settingsPayload)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, d.WaitFor(ctx, FieldStatusCode, FieldLevel))
	return d, l
}

// sentAfter returns the frames written after the first n
func sentAfter(t *testing.T, l *loopback, n int) []autoterm.Frame {
	t.Helper()
	frames := l.frames(t)
	require.GreaterOrEqual(t, len(frames), n)
	return frames[n:]
}

func TestConnect_SendsInitialRequests(t *testing.T) {
	_, l := connect(t, testOptions(t))

	frames := l.frames(t)
	require.Len(t, frames, 3)
	for i, id := range []autoterm.MessageID{autoterm.MsgVersion, autoterm.MsgStatus, autoterm.MsgSettings} {
		assert.Equal(t, autoterm.MsgTypeRequest, frames[i].Type)
		assert.Equal(t, id, frames[i].ID)
		assert.Empty(t, frames[i].Payload)
	}
}

func TestConnect_ConfiguresReadTimeout(t *testing.T) {
	opts := testOptions(t)
	opts.ReadTimeout = 7 * time.Millisecond
	_, l := connect(t, opts)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, 7*time.Millisecond, l.timeout)
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newLoopback()
	_, err := Connect(ctx, l, testOptions(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.closeCalled)
}

func TestConnect_ConfigureFailureClosesTransport(t *testing.T) {
	l := newLoopback()
	l.timeoutErr = errors.New("inappropriate ioctl for device")

	_, err := Connect(context.Background(), l, testOptions(t))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "configure", te.Op)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, 1, l.closeCalled)
	assert.Empty(t, l.written)
}

func TestDevice_ParsesResponses(t *testing.T) {
	d, l := connectSynced(t)
	l.respond(autoterm.MsgVersion, []byte{1, 2, 3, 4, 0})

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, d.WaitFor(ctx, FieldBlackboxVersion))

	version, ok := d.FirmwareVersion()
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", version)

	v, _ := d.Get(FieldControl)
	assert.Equal(t, ControlOff, v)
	v, _ = d.Get(FieldVoltage)
	assert.Equal(t, 13.5, v)
	v, _ = d.Get(FieldPower)
	assert.Equal(t, 50, v)

	status, ok := d.Status()
	require.True(t, ok)
	assert.Equal(t, "Standby", status.StatusText())

	settings, ok := d.Settings()
	require.True(t, ok)
	assert.Equal(t, uint16(120), settings.WorkTime())

	assert.True(t, d.Available())
}

func TestDevice_ImplausibleValuesAreCountedAndApplied(t *testing.T) {
	d, l := connectSynced(t)

	// 5.0 V supply
	payload := append([]byte(nil), statusPayload...)
	payload[6] = 50
	l.respond(autoterm.MsgStatus, payload)

	require.Eventually(t, func() bool {
		v, _ := d.Get(FieldVoltage)
		return v == 5.0
	}, eventually, time.Millisecond)
	assert.Equal(t, uint64(1), d.Statistics().AnomalousValues)
}

func TestDevice_CorruptedFrameDoesNotMutateState(t *testing.T) {
	d, l := connect(t, testOptions(t))

	bad := autoterm.MustEncode(autoterm.NewFrame(autoterm.MsgTypeResponse, autoterm.MsgStatus, statusPayload))
	bad[len(bad)-1] ^= 0xFF
	l.deliver(bad)
	l.respond(autoterm.MsgSettings, settingsPayload)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, d.WaitFor(ctx, FieldLevel))

	_, ok := d.Get(FieldStatusCode)
	assert.False(t, ok)

	stats := d.Statistics()
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(1), stats.ValidFrames)
}

func TestDevice_ShortPayloadKeepsSnapshot(t *testing.T) {
	d, l := connectSynced(t)

	l.respond(autoterm.MsgStatus, []byte{3, 0, 0})
	l.respond(autoterm.MsgTemperature, []byte{19})

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, d.WaitFor(ctx, FieldTemperaturePanel))

	v, _ := d.Get(FieldStatusCode)
	assert.Equal(t, "0.1", v)
	assert.Equal(t, uint64(1), d.Statistics().ParseErrors)

	// Sensor 2 is the panel
	v, _ = d.Get(FieldControllerTemp)
	assert.Equal(t, 19, v)
}

func TestDevice_SettingsWriteBeforeSync(t *testing.T) {
	d, l := connect(t, testOptions(t))
	ctx := context.Background()

	require.ErrorIs(t, d.SetTemperatureTarget(ctx, 22), ErrStateNotReady)
	require.ErrorIs(t, d.SetLevel(ctx, 3), ErrStateNotReady)
	require.ErrorIs(t, d.SetControl(ctx, ControlHeat), ErrStateNotReady)
	require.ErrorIs(t, d.SetControl(ctx, ControlFanOnly), ErrStateNotReady)

	assert.Empty(t, sentAfter(t, l, 3))
}

func TestDevice_SetLevelThenFanOnly(t *testing.T) {
	d, l := connectSynced(t)
	ctx := context.Background()

	require.NoError(t, d.SetLevel(ctx, 9))
	require.NoError(t, d.SetControl(ctx, ControlFanOnly))

	sent := sentAfter(t, l, 3)
	require.Len(t, sent, 4)

	assert.Equal(t, autoterm.MsgSettings, sent[0].ID)
	assert.Equal(t, []byte{0, 120, 2, 22, 3, 9}, sent[0].Payload)
	assert.Equal(t, autoterm.MsgStatus, sent[1].ID)

	assert.Equal(t, autoterm.MsgFanOnly, sent[2].ID)
	assert.Equal(t, []byte{0x00, 0x00, 0x09, 0xFF}, sent[2].Payload)
	assert.Equal(t, autoterm.MsgStatus, sent[3].ID)
}

func TestDevice_SettingsWrites(t *testing.T) {
	tests := []struct {
		name string
		call func(d *Device) error
		want []byte
	}{
		{
			name: "work time zero disables timer",
			call: func(d *Device) error { return d.SetWorkTime(context.Background(), 0) },
			want: []byte{0xFF, 0xFF, 2, 22, 3, 4},
		},
		{
			name: "work time",
			call: func(d *Device) error { return d.SetWorkTime(context.Background(), 300) },
			want: []byte{0x01, 0x2C, 2, 22, 3, 4},
		},
		{
			name: "target temperature",
			call: func(d *Device) error { return d.SetTemperatureTarget(context.Background(), 25) },
			want: []byte{0, 120, 2, 25, 3, 4},
		},
		{
			name: "sensor",
			call: func(d *Device) error { return d.SetSensor(context.Background(), autoterm.SensorHeater) },
			want: []byte{0, 120, 1, 22, 3, 4},
		},
		{
			name: "mode",
			call: func(d *Device) error { return d.SetMode(context.Background(), autoterm.ModePowerLevel) },
			want: []byte{0, 120, 2, 22, 2, 4},
		},
		{
			name: "power",
			call: func(d *Device) error { return d.SetPower(context.Background(), 100) },
			want: []byte{0, 120, 2, 22, 3, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, l := connectSynced(t)
			require.NoError(t, tt.call(d))

			sent := sentAfter(t, l, 3)
			require.Len(t, sent, 2)
			assert.Equal(t, autoterm.MsgSettings, sent[0].ID)
			assert.Equal(t, tt.want, sent[0].Payload)
			assert.Equal(t, autoterm.MsgStatus, sent[1].ID)
		})
	}
}

func TestDevice_RejectsOutOfRange(t *testing.T) {
	d, l := connectSynced(t)
	ctx := context.Background()

	calls := map[string]func() error{
		"level -1":        func() error { return d.SetLevel(ctx, -1) },
		"level 10":        func() error { return d.SetLevel(ctx, 10) },
		"power 0":         func() error { return d.SetPower(ctx, 0) },
		"power 55":        func() error { return d.SetPower(ctx, 55) },
		"power 110":       func() error { return d.SetPower(ctx, 110) },
		"sensor 3":        func() error { return d.SetSensor(ctx, autoterm.Sensor(3)) },
		"mode 7":          func() error { return d.SetMode(ctx, autoterm.Mode(7)) },
		"work time -1":    func() error { return d.SetWorkTime(ctx, -1) },
		"work time 65535": func() error { return d.SetWorkTime(ctx, 0xFFFF) },
		"target 300":      func() error { return d.SetTemperatureTarget(ctx, 300) },
		"current -5":      func() error { return d.SetTemperatureCurrent(ctx, -5) },
		"control bogus":   func() error { return d.SetControl(ctx, Control("bogus")) },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), ErrValueOutOfRange)
		})
	}
	assert.Empty(t, sentAfter(t, l, 3))
}

func TestDevice_ControlCommands(t *testing.T) {
	d, l := connectSynced(t)
	ctx := context.Background()

	require.NoError(t, d.SetControl(ctx, ControlHeat))
	require.NoError(t, d.SetControl(ctx, ControlOff))

	sent := sentAfter(t, l, 3)
	require.Len(t, sent, 4)
	assert.Equal(t, autoterm.MsgHeat, sent[0].ID)
	assert.Equal(t, settingsPayload, sent[0].Payload)
	assert.Equal(t, autoterm.MsgOff, sent[2].ID)
	assert.Empty(t, sent[2].Payload)
}

func TestDevice_TemperatureCurrent(t *testing.T) {
	d, l := connect(t, testOptions(t))

	// No settings needed and no follow-up status request
	require.NoError(t, d.SetTemperatureCurrent(context.Background(), 21))

	sent := sentAfter(t, l, 3)
	require.Len(t, sent, 1)
	assert.Equal(t, autoterm.MsgTemperature, sent[0].ID)
	assert.Equal(t, []byte{21}, sent[0].Payload)
}

func TestDevice_ExternalTemperatureSensor(t *testing.T) {
	d, l := connect(t, testOptions(t))

	d.SetExternalTemperatureSensor("sensor.cabin")
	v, ok := d.Get(FieldExternalTemperatureSensor)
	require.True(t, ok)
	assert.Equal(t, "sensor.cabin", v)
	assert.Empty(t, sentAfter(t, l, 3))
}

func TestDevice_Poll(t *testing.T) {
	d, l := connect(t, testOptions(t))
	require.NoError(t, d.Poll(context.Background()))

	sent := sentAfter(t, l, 3)
	require.Len(t, sent, 2)
	assert.Equal(t, autoterm.MsgStatus, sent[0].ID)
	assert.Equal(t, autoterm.MsgSettings, sent[1].ID)
}

func TestDevice_WriteError(t *testing.T) {
	d, l := connectSynced(t)
	cause := errors.New("port gone")
	l.failWrites(cause)

	err := d.SetLevel(context.Background(), 2)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "write", te.Op)
	assert.ErrorIs(t, err, cause)

	// The block is only committed after a successful write
	block, _, _ := d.State().Block()
	assert.Equal(t, settingsPayload, block[:])
}

func TestDevice_UnavailableAfterReadFailures(t *testing.T) {
	d, l := connectSynced(t)
	require.True(t, d.Available())

	l.failReads(errors.New("input/output error"))
	assert.Eventually(t, func() bool { return !d.Available() }, eventually, time.Millisecond)

	l.failReads(nil)
	l.respond(autoterm.MsgStatus, statusPayload)
	assert.Eventually(t, d.Available, eventually, time.Millisecond)
}

func TestDevice_SubscribeReceivesUpdates(t *testing.T) {
	d, l := connect(t, testOptions(t))

	var mu sync.Mutex
	var got []any
	d.Subscribe(FieldTemperatureTarget, func(_ Field, v any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	})

	l.respond(autoterm.MsgSettings, settingsPayload)
	l.respond(autoterm.MsgSettings, settingsPayload)
	l.respond(autoterm.MsgSettings, []byte{0, 120, 2, 24, 3, 4})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, eventually, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{22, 24}, got)
}

func TestDevice_Close(t *testing.T) {
	d, l := connectSynced(t)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, l.closeCalled)

	select {
	case <-d.Done():
	default:
		t.Fatal("reader still running after Close")
	}

	assert.False(t, d.Available())
	require.ErrorIs(t, d.Poll(context.Background()), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.ErrorIs(t, d.WaitFor(ctx, FieldBlackboxVersion), ErrNotConnected)
}

func TestDevice_WritesSerialized(t *testing.T) {
	opts := testOptions(t)
	opts.SettleDelay = 30 * time.Millisecond
	d, l := connectSyncedWith(t, opts)
	ctx := context.Background()

	const writers = 3
	var wg sync.WaitGroup
	for range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.SetLevel(ctx, 9))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, d.SetTemperatureTarget(ctx, 25))
		}()
	}
	wg.Wait()

	// Initial requests plus a settings write and a status request per call
	times := l.writeTimes()
	require.Len(t, times, 3+4*writers)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), opts.SettleDelay, "write %d", i)
	}

	// Every write started from the block the previous one committed
	block, _, ok := d.State().Block()
	require.True(t, ok)
	assert.Equal(t, []byte{0, 120, 2, 25, 3, 9}, block[:])

	var last []byte
	for _, f := range sentAfter(t, l, 3) {
		if f.ID == autoterm.MsgSettings {
			last = f.Payload
		}
	}
	assert.Equal(t, block[:], last)
}

func TestDevice_CloseWaitsForWrite(t *testing.T) {
	opts := testOptions(t)
	opts.SettleDelay = 50 * time.Millisecond
	d, l := connect(t, opts)

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- d.Send(context.Background(), autoterm.NewRequest(autoterm.MsgStatus))
	}()
	require.Eventually(t, func() bool { return len(l.writeTimes()) == 4 }, eventually, time.Millisecond)

	require.NoError(t, d.Close())
	require.NoError(t, <-sendErr)

	l.mu.Lock()
	closedAt, writtenAt, closeCalled := l.closedAt, l.writtenAt[3], l.closeCalled
	l.mu.Unlock()
	assert.Equal(t, 1, closeCalled)
	assert.GreaterOrEqual(t, closedAt.Sub(writtenAt), opts.SettleDelay)

	frames := l.frames(t)
	require.Len(t, frames, 4)
	assert.Equal(t, autoterm.MsgStatus, frames[3].ID)
	assert.Equal(t, autoterm.MsgTypeRequest, frames[3].Type)
}

func TestDevice_WaitForTimeout(t *testing.T) {
	d, _ := connect(t, testOptions(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.WaitFor(ctx, FieldStatusCode), context.DeadlineExceeded)
}

func TestDevice_Observer(t *testing.T) {
	obs := &countingObserver{}
	opts := testOptions(t)
	opts.Observer = obs
	d, l := connect(t, opts)

	bad := autoterm.MustEncode(autoterm.NewFrame(autoterm.MsgTypeResponse, autoterm.MsgStatus, statusPayload))
	bad[6] ^= 0x01
	l.deliver(bad)
	l.respond(autoterm.MsgSettings, settingsPayload)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, d.WaitFor(ctx, FieldLevel))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.sent)
	assert.Equal(t, 1, obs.received)
	assert.Equal(t, 1, obs.rejected)
}

type countingObserver struct {
	mu                       sync.Mutex
	sent, received, rejected int
}

func (o *countingObserver) FrameReceived(autoterm.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received++
}

func (o *countingObserver) FrameRejected(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected++
}

func (o *countingObserver) FrameSent(autoterm.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent++
}
