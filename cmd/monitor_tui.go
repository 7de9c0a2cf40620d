// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/autoterm/pkg/autoterm"
	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const maxLogEntries = 100

// Focus states
const (
	focusActionList = iota
	focusValueInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// action is one entry of the action list
type action struct {
	title       string
	desc        string
	arg         string // fixed argument; empty when the user types one
	placeholder string
	apply       func(ctx context.Context, d *heater.Device, arg string) error
}

// Implement list.Item interface
func (a action) Title() string       { return a.title }
func (a action) Description() string { return a.desc }
func (a action) FilterValue() string { return a.title }

func (a action) needsValue() bool { return a.arg == "" && a.placeholder != "" }

// monitorActions builds the action list from the set subcommands
func monitorActions() []action {
	control := settings[0].apply
	actions := []action{
		{title: "Off", desc: "Switch the heater off", arg: string(heater.ControlOff), apply: control},
		{title: "Heat", desc: "Start heating", arg: string(heater.ControlHeat), apply: control},
		{title: "Fan only", desc: "Run the fan without burning", arg: string(heater.ControlFanOnly), apply: control},
	}
	for _, s := range settings[1:] {
		name, arg, _ := strings.Cut(s.use, " ")
		actions = append(actions, action{
			title:       name,
			desc:        s.short,
			placeholder: strings.Trim(arg, "<>"),
			apply:       s.apply,
		})
	}
	return append(actions, action{
		title: "poll",
		desc:  "Request status and settings now",
		arg:   "-",
		apply: func(ctx context.Context, d *heater.Device, _ string) error { return d.Poll(ctx) },
	})
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	// Device manager (for sending commands)
	mgr      *deviceManager
	connInfo string

	// Heater state, fed by field notifications
	values map[heater.Field]any

	// Link statistics, copied from the device every tick
	stats    autoterm.Statistics
	hasStats bool

	// Control
	actions      []action
	actionList   list.Model
	valueInput   textinput.Model
	focusedField int
	busy         bool

	errorLog []logEntry

	// UI state
	width          int
	height         int
	quitting       bool
	connected      bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type fieldMsg struct {
	field heater.Field
	value any
}

type connectedMsg struct {
	connInfo string
}

type connectionLostMsg struct{}

type retryMsg struct {
	err     error
	backoff time.Duration
}

type commandDoneMsg struct {
	label string
	err   error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(mgr *deviceManager) monitorModel {
	ti := textinput.New()
	ti.CharLimit = 24
	ti.Width = 24

	actions := monitorActions()
	items := make([]list.Item, len(actions))
	for i, a := range actions {
		items[i] = a
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetHeight(1)
	delegate.SetSpacing(0)
	actionList := list.New(items, delegate, 26, len(items)+2)
	actionList.Title = "Actions"
	actionList.SetShowStatusBar(false)
	actionList.SetShowHelp(false)
	actionList.SetFilteringEnabled(false)

	m := monitorModel{
		mgr:          mgr,
		connInfo:     "connecting...",
		values:       make(map[heater.Field]any),
		actions:      actions,
		actionList:   actionList,
		valueInput:   ti,
		focusedField: focusActionList,
		errorLog:     make([]logEntry, 0),
		width:        80,
		height:       24,
	}
	m.syncPlaceholder()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		m.actionList, _ = m.actionList.Update(msg)
		m.syncPlaceholder()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		if m.mgr != nil {
			if d := m.mgr.device(); d != nil {
				m.stats = d.Statistics()
				m.hasStats = true
			}
		}
		return m, monitorTickCmd()

	case fieldMsg:
		m.applyField(msg.field, msg.value)

	case connectedMsg:
		m.connected = true
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.values = make(map[heater.Field]any)
		m.addLogEntry(fmt.Sprintf("Connected: %s", msg.connInfo), false)

	case connectionLostMsg:
		m.connected = false
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case retryMsg:
		m.addLogEntry(fmt.Sprintf("Connect failed: %v (retry in %v)", msg.err, msg.backoff), true)

	case commandDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.label, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s done", msg.label), false)
		}
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusValueInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focusedField == focusActionList {
			m.actionList, _ = m.actionList.Update(msg)
			m.syncPlaceholder()
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focusedField == focusValueInput {
		var cmd tea.Cmd
		m.valueInput, cmd = m.valueInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) cycleFocus(delta int) {
	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// Skip the value input for actions without a value
	if m.focusedField == focusValueInput {
		if a := m.selectedAction(); a == nil || !a.needsValue() {
			m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)
		}
	}

	if m.focusedField == focusValueInput {
		m.valueInput.Focus()
	} else {
		m.valueInput.Blur()
	}
}

func (m monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	a := m.selectedAction()
	if a == nil {
		return m, nil
	}

	// Enter on the list moves to the value input first
	if m.focusedField == focusActionList && a.needsValue() {
		m.focusedField = focusValueInput
		m.valueInput.Focus()
		return m, nil
	}

	arg := a.arg
	if a.needsValue() {
		arg = strings.TrimSpace(m.valueInput.Value())
		if arg == "" {
			m.addLogEntry(fmt.Sprintf("%s needs a value (%s)", a.title, a.placeholder), true)
			return m, nil
		}
	}
	return m, m.runAction(*a, arg)
}

// runAction applies a in the background; the result arrives as commandDoneMsg
func (m *monitorModel) runAction(a action, arg string) tea.Cmd {
	if m.busy {
		m.addLogEntry("Previous command still running", true)
		return nil
	}

	var d *heater.Device
	if m.mgr != nil {
		d = m.mgr.device()
	}
	if d == nil {
		m.addLogEntry("Cannot send command: not connected", true)
		return nil
	}

	label := a.title
	if a.needsValue() {
		label = fmt.Sprintf("%s %s", a.title, arg)
	}
	m.busy = true
	m.addLogEntry(fmt.Sprintf("Sending %s", label), false)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		return commandDoneMsg{label: label, err: a.apply(ctx, d, arg)}
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("AUTOTERM MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=apply", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (actions) | right panel (control)
	leftWidth := 28
	rightWidth := max(m.width-leftWidth-6, 30)

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusActionList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	actionPanel := listStyle.Render(m.actionList.View())

	controlPanel := boxStyle.Width(rightWidth).Render(
		m.renderControlPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, actionPanel, " ", controlPanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderTelemetry(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderControlPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	fmt.Fprintf(&s, "%s %s\n", labelStyle.Render("Control:"), valueStyle.Render(m.text(heater.FieldControl)))
	fmt.Fprintf(&s, "%s %s (%s)\n\n", labelStyle.Render("Status:"),
		valueStyle.Render(m.text(heater.FieldStatus)), m.text(heater.FieldStatusCode))

	a := m.selectedAction()
	if a == nil {
		s.WriteString(headerStyle.Render("No action selected"))
		return s.String()
	}
	s.WriteString(headerStyle.Render(a.desc))
	s.WriteString("\n\n")

	if a.needsValue() {
		s.WriteString(labelStyle.Render("Value: "))
		if m.focusedField == focusValueInput {
			s.WriteString(m.valueInput.View())
		} else {
			val := m.valueInput.Value()
			if val == "" {
				val = m.valueInput.Placeholder
			}
			fmt.Fprintf(&s, "[%s]", val)
		}
		s.WriteString("\n\n")
	}

	btnText := fmt.Sprintf("[ %s ]", a.title)
	if m.busy {
		btnText = "[ sending... ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	if !m.hasStats {
		return boxStyle.Width(m.width - 4).Render(labelStyle.Render("LINK") + " | no statistics yet")
	}

	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frm/s", m.stats.FrameRate)),
		labelStyle.Render("Up:"), valueStyle.Render(formatUptime(uint64(time.Since(m.stats.StartTime).Milliseconds()))),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderTelemetry(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder

	pair := func(label, value string) {
		fmt.Fprintf(&content, "%s %s  ", labelStyle.Render(label), valueStyle.Render(value))
	}

	content.WriteString(labelStyle.Render("TELEMETRY"))
	content.WriteString(" | ")
	pair("Voltage:", m.text(heater.FieldVoltage))
	pair("Board:", m.text(heater.FieldBoardTemp))
	pair("External:", m.text(heater.FieldExternalTemp))
	pair("Flame:", m.text(heater.FieldFlameTemperature))
	pair("Fan:", fmt.Sprintf("%s/%s rpm", m.text(heater.FieldFanRPMActual), m.text(heater.FieldFanRPMSpecified)))
	pair("Pump:", m.text(heater.FieldFuelPumpFrequency)+" Hz")
	if code, ok := m.values[heater.FieldErrorCode].(int); ok && code != 0 {
		content.WriteString(errorStyle.Render(fmt.Sprintf("Error %d", code)))
	}

	content.WriteString("\n")
	content.WriteString(labelStyle.Render("SETTINGS "))
	content.WriteString(" | ")
	pair("Mode:", m.text(heater.FieldMode))
	pair("Sensor:", m.text(heater.FieldSensor))
	pair("Target:", m.text(heater.FieldTemperatureTarget))
	pair("Level:", fmt.Sprintf("%s (%s%%)", m.text(heater.FieldLevel), m.text(heater.FieldPower)))
	pair("Timer:", m.text(heater.FieldWorkTime))
	pair("Controller:", m.text(heater.FieldControllerTemp))
	pair("Firmware:", m.text(heater.FieldBlackboxVersion))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(8, len(m.errorLog))
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.errorLog[startIdx:] {
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		fmt.Fprintf(&s, "%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message)
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// applyField stores a notified value and logs the changes worth seeing
func (m *monitorModel) applyField(field heater.Field, value any) {
	old, had := m.values[field]
	if value == nil {
		delete(m.values, field)
	} else {
		m.values[field] = value
	}

	switch field {
	case heater.FieldStatus:
		if had {
			m.addLogEntry(fmt.Sprintf("Status: %v -> %v", old, value), false)
		}
	case heater.FieldErrorCode:
		if code, _ := value.(int); code != 0 {
			m.addLogEntry(fmt.Sprintf("Heater error code %d", code), true)
		}
	case heater.FieldAvailable:
		if up, _ := value.(bool); up && !had {
			m.addLogEntry("Heater answering", false)
		}
	}
}

// text renders a field for display; unknown fields read "--"
func (m monitorModel) text(field heater.Field) string {
	v, ok := m.values[field]
	if !ok {
		return "--"
	}

	switch field {
	case heater.FieldSensor:
		return autoterm.Sensor(v.(int)).String()
	case heater.FieldMode:
		return autoterm.Mode(v.(int)).String()
	case heater.FieldVoltage:
		return fmt.Sprintf("%.1fV", v)
	case heater.FieldFuelPumpFrequency:
		return fmt.Sprintf("%.2f", v)
	case heater.FieldBoardTemp, heater.FieldExternalTemp, heater.FieldFlameTemperature,
		heater.FieldTemperatureTarget, heater.FieldControllerTemp, heater.FieldTemperaturePanel:
		return fmt.Sprintf("%dC", v)
	case heater.FieldWorkTime:
		if m.values[heater.FieldTimerDisabled] == true {
			return "off"
		}
		return fmt.Sprintf("%dmin", v)
	}
	return fmt.Sprintf("%v", v)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.errorLog) > maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-maxLogEntries:]
	}
}

func (m monitorModel) selectedAction() *action {
	idx := m.actionList.Index()
	if idx < 0 || idx >= len(m.actions) {
		return nil
	}
	return &m.actions[idx]
}

// syncPlaceholder shows the expected value of the selected action
func (m *monitorModel) syncPlaceholder() {
	if a := m.selectedAction(); a != nil {
		m.valueInput.Placeholder = a.placeholder
	}
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
