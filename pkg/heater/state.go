// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heater

import (
	"sync"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
)

// Handler receives the new value of a subscribed field
type Handler func(field Field, value any)

type subscription struct {
	id      uint64
	handler Handler
}

type change struct {
	field Field
	value any
}

// State holds the latest snapshots received from the heater.
//
// Snapshots are replaced wholesale. The settings block used for outbound
// writes is kept separately with a version that increases on every change,
// so a write can tell whether the device reported new settings while it was
// in flight.
type State struct {
	mu sync.RWMutex

	status     *autoterm.StatusSnapshot
	settings   *autoterm.SettingsSnapshot
	panel      *autoterm.PanelTemperature
	version    string
	extSensor  string
	available  bool
	block      autoterm.SettingsBlock
	hasBlock   bool
	blockRev   uint64
	lastValues map[Field]any

	subs   map[Field][]subscription
	nextID uint64
}

// NewState creates an empty state. Every field except available is unknown.
func NewState() *State {
	return &State{
		lastValues: map[Field]any{FieldAvailable: false},
		subs:       make(map[Field][]subscription),
	}
}

// Get returns the current value of a field. ok is false while the value is
// unknown.
func (s *State) Get(field Field) (value any, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(field)
}

// Status returns the last status snapshot
func (s *State) Status() (autoterm.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == nil {
		return autoterm.StatusSnapshot{}, false
	}
	return *s.status, true
}

// Settings returns the last settings snapshot
func (s *State) Settings() (autoterm.SettingsSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return autoterm.SettingsSnapshot{}, false
	}
	return *s.settings, true
}

// Subscribe registers h for changes of field. The returned function removes
// the subscription. h is called only when the resolved value differs from the
// last one delivered, so a repeated identical snapshot notifies nothing.
// Handlers run on the goroutine that applied the update, outside the state
// lock, in field order and then registration order.
func (s *State) Subscribe(field Field, h Handler) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[field] = append(s.subs[field], subscription{id: id, handler: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[field]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[field] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// ApplyStatus replaces the status snapshot
func (s *State) ApplyStatus(st autoterm.StatusSnapshot) {
	s.update(func() { s.status = &st })
}

// ApplySettings replaces the settings snapshot and the outbound block
func (s *State) ApplySettings(st autoterm.SettingsSnapshot) {
	s.update(func() {
		s.settings = &st
		s.block = st.SettingsBlock
		s.hasBlock = true
		s.blockRev++
	})
}

// ApplyPanelTemperature replaces the control panel reading
func (s *State) ApplyPanelTemperature(p autoterm.PanelTemperature) {
	s.update(func() { s.panel = &p })
}

// ApplyVersion stores the firmware version
func (s *State) ApplyVersion(v autoterm.VersionInfo) {
	s.update(func() { s.version = v.Version })
}

// Apply stores a parsed response message
func (s *State) Apply(msg autoterm.Message) {
	switch m := msg.(type) {
	case autoterm.StatusSnapshot:
		s.ApplyStatus(m)
	case autoterm.SettingsSnapshot:
		s.ApplySettings(m)
	case autoterm.PanelTemperature:
		s.ApplyPanelTemperature(m)
	case autoterm.VersionInfo:
		s.ApplyVersion(m)
	}
}

// SetExternalTemperatureSensor stores the identifier of the sensor whose
// readings are forwarded to the heater. An empty id clears it.
func (s *State) SetExternalTemperatureSensor(id string) {
	s.update(func() { s.extSensor = id })
}

// SetAvailable records whether the link is delivering frames
func (s *State) SetAvailable(available bool) {
	s.update(func() { s.available = available })
}

// Block returns the outbound settings block and its revision. ok is false
// until the first settings response.
func (s *State) Block() (block autoterm.SettingsBlock, rev uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block, s.blockRev, s.hasBlock
}

// CommitBlock stores a block that was written to the heater. It is dropped
// if the block changed since rev was read, since the device reported newer
// settings in the meantime.
func (s *State) CommitBlock(block autoterm.SettingsBlock, rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasBlock || s.blockRev != rev {
		return false
	}
	s.block = block
	s.blockRev++
	return true
}

// update applies fn under the lock and notifies subscribers of every field
// whose resolved value changed. A field that became unknown is notified with
// a nil value.
func (s *State) update(fn func()) {
	s.mu.Lock()
	fn()

	var changes []change
	for _, field := range Fields {
		value, ok := s.resolve(field)
		if !ok {
			// Only the sensor id can become unknown again
			if _, seen := s.lastValues[field]; seen {
				delete(s.lastValues, field)
				changes = append(changes, change{field: field})
			}
			continue
		}
		if last, seen := s.lastValues[field]; seen && last == value {
			continue
		}
		s.lastValues[field] = value
		changes = append(changes, change{field: field, value: value})
	}

	var calls []func()
	for _, c := range changes {
		for _, sub := range s.subs[c.field] {
			calls = append(calls, func() { sub.handler(c.field, c.value) })
		}
	}
	s.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

// resolve looks up a field; the caller holds the lock
func (s *State) resolve(field Field) (any, bool) {
	if v, ok := s.resolveStatus(field); ok {
		return v, true
	}
	if v, ok := s.resolveSettings(field); ok {
		return v, true
	}

	switch field {
	case FieldTemperaturePanel:
		if s.panel != nil {
			return int(s.panel.Raw), true
		}
	case FieldBlackboxVersion:
		if s.version != "" {
			return s.version, true
		}
	case FieldExternalTemperatureSensor:
		if s.extSensor != "" {
			return s.extSensor, true
		}
	case FieldControllerTemp:
		if s.settings == nil {
			return nil, false
		}
		if s.settings.Sensor() == autoterm.SensorHeater {
			if s.status != nil {
				return s.status.BoardTemperature(), true
			}
		} else if s.panel != nil {
			return int(s.panel.Raw), true
		}
	case FieldControl:
		if s.status != nil {
			return ControlFromStatus(s.status.StatusCode()), true
		}
	case FieldAvailable:
		return s.available, true
	}
	return nil, false
}

func (s *State) resolveStatus(field Field) (any, bool) {
	st := s.status
	if st == nil {
		return nil, false
	}
	switch field {
	case FieldStatusCode:
		return st.StatusCode(), true
	case FieldStatus:
		return st.StatusText(), true
	case FieldErrorCode:
		return int(st.ErrorCode), true
	case FieldBoardTemp:
		return st.BoardTemperature(), true
	case FieldExternalTemp:
		return int(st.ExternalTemp), true
	case FieldVoltage:
		return st.Voltage(), true
	case FieldFlameTemperature:
		return int(st.FlameTemperature), true
	case FieldFanRPMSpecified:
		return st.FanRPMSpecified(), true
	case FieldFanRPMActual:
		return st.FanRPMActual(), true
	case FieldFuelPumpFrequency:
		return st.FuelPumpFrequency(), true
	case FieldOpaque5:
		return int(st.Opaque[0]), true
	case FieldOpaque9:
		return int(st.Opaque[1]), true
	case FieldOpaque10:
		return int(st.Opaque[2]), true
	case FieldOpaque13:
		return int(st.Opaque[3]), true
	}
	return nil, false
}

func (s *State) resolveSettings(field Field) (any, bool) {
	st := s.settings
	if st == nil {
		return nil, false
	}
	switch field {
	case FieldWorkTime:
		if st.TimerDisabled() {
			return 0, true
		}
		return int(st.WorkTime()), true
	case FieldTimerDisabled:
		return st.TimerDisabled(), true
	case FieldSensor:
		return int(st.Sensor()), true
	case FieldTemperatureTarget:
		return int(st.TargetTemperature()), true
	case FieldMode:
		return int(st.Mode()), true
	case FieldLevel:
		return int(st.Level()), true
	case FieldPower:
		return st.Power(), true
	}
	return nil, false
}
