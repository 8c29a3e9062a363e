// Package tui provides the Bubble Tea training dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/trainviz/internal/model"
	"github.com/verte-zerg/trainviz/internal/playback"
)

const (
	tabCharts = iota
	tabEpochs
	tabNetwork
)

// Speed bounds for the dashboard controls.
const (
	MinSpeed  = 20 * time.Millisecond
	MaxSpeed  = 500 * time.Millisecond
	speedStep = 10 * time.Millisecond
)

const (
	formEpochs = iota
	formLearningRate
	formBatchSize
)

type updateMsg struct{}

type closedMsg struct{}

type runDoneMsg struct {
	err error
}

// Model implements the Bubble Tea dashboard.
type Model struct {
	seq   *playback.Sequencer
	ctx   context.Context
	state playback.State

	tabs       []string
	activeTab  int
	viewports  []viewport.Model
	epochTable table.Model
	spinner    spinner.Model

	width  int
	height int

	formMode   bool
	formInputs []textinput.Model
	formIndex  int
	formError  string

	errMsg string
}

// NewModel constructs a dashboard driving seq. Runs are started with ctx.
func NewModel(ctx context.Context, seq *playback.Sequencer) *Model {
	m := &Model{
		seq:  seq,
		ctx:  ctx,
		tabs: []string{"Charts", "Epochs", "Network"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.epochTable = table.New(
		table.WithColumns(epochColumns()),
		table.WithHeight(1),
	)
	m.epochTable.SetStyles(epochTableStyles())
	m.spinner = spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(accentStyle))
	m.formInputs = []textinput.Model{
		newFormInput("Epochs (1-200): "),
		newFormInput("Learning rate (0-1]: "),
		newFormInput("Batch size (16/32/64/128/256): "),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.seq), m.spinner.Tick)
}

func waitForUpdate(seq *playback.Sequencer) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-seq.Updates(); !ok {
			return closedMsg{}
		}
		return updateMsg{}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case updateMsg:
		m.refresh()
		return m, waitForUpdate(m.seq)
	case closedMsg:
		return m, tea.Quit
	case runDoneMsg:
		if errors.Is(msg.err, playback.ErrInvalidTransition) {
			m.errMsg = "A run is already in progress."
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.formMode {
			return m.updateForm(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "left", "h":
		m.moveTab(-1)
		return m, tea.ClearScreen
	case "right", "l":
		m.moveTab(1)
		return m, tea.ClearScreen
	case "s", "enter":
		return m, m.startCmd()
	case "r":
		return m, m.retryCmd()
	case " ", "p":
		m.togglePause()
		return m, nil
	case "x":
		m.errMsg = ""
		m.seq.Stop()
		m.refresh()
		return m, nil
	case "+", "=":
		m.changeSpeed(-speedStep)
		return m, nil
	case "-", "_":
		m.changeSpeed(speedStep)
		return m, nil
	case "b":
		m.cycleBatchSize()
		return m, nil
	case "e":
		return m.startForm()
	case "g", "home":
		if m.activeTab == tabEpochs {
			m.epochTable.GotoTop()
		} else {
			m.viewports[m.activeTab].GotoTop()
		}
		return m, nil
	case "G", "end":
		if m.activeTab == tabEpochs {
			m.epochTable.GotoBottom()
		} else {
			m.viewports[m.activeTab].GotoBottom()
		}
		return m, nil
	}
	var cmd tea.Cmd
	if m.activeTab == tabEpochs {
		m.epochTable, cmd = m.epochTable.Update(msg)
		return m, cmd
	}
	m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) startCmd() tea.Cmd {
	if !m.state.CanStart() {
		m.errMsg = "A run is already in progress."
		return nil
	}
	m.errMsg = ""
	seq, ctx := m.seq, m.ctx
	return func() tea.Msg {
		return runDoneMsg{err: seq.Start(ctx)}
	}
}

func (m *Model) retryCmd() tea.Cmd {
	if m.state.Status != model.StatusError {
		return nil
	}
	m.errMsg = ""
	seq, ctx := m.seq, m.ctx
	return func() tea.Msg {
		return runDoneMsg{err: seq.Retry(ctx)}
	}
}

func (m *Model) togglePause() {
	var err error
	switch m.state.Status {
	case model.StatusTraining:
		err = m.seq.Pause()
	case model.StatusPaused:
		err = m.seq.Resume()
	default:
		return
	}
	if err != nil && !errors.Is(err, playback.ErrInvalidTransition) {
		logErrf("playback: %v\n", err)
	}
	m.refresh()
}

func (m *Model) changeSpeed(delta time.Duration) {
	next := clampSpeed(m.state.Speed + delta)
	if next == m.state.Speed {
		return
	}
	if err := m.seq.SetSpeed(next); err != nil {
		m.errMsg = err.Error()
		return
	}
	m.refresh()
}

func clampSpeed(d time.Duration) time.Duration {
	return min(max(d, MinSpeed), MaxSpeed)
}

func (m *Model) cycleBatchSize() {
	if m.state.IsActive() {
		return
	}
	p := m.seq.Params()
	next := model.BatchSizes[0]
	for i, b := range model.BatchSizes {
		if b == p.BatchSize && i+1 < len(model.BatchSizes) {
			next = model.BatchSizes[i+1]
		}
	}
	p.BatchSize = next
	m.seq.SetParams(p)
	m.refresh()
}

func (m *Model) refresh() {
	m.state = m.seq.Snapshot()
	m.epochTable.SetRows(epochRows(m.state.Revealed))
	if m.state.Status == model.StatusTraining {
		m.epochTable.GotoBottom()
	}
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabCharts].SetContent(renderCharts(m.state, width))
	m.viewports[tabNetwork].SetContent(renderNetwork(m.state))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabEpochs {
		m.epochTable.Focus()
	} else {
		m.epochTable.Blur()
	}
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.formMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) overviewHeight() int {
	return lipgloss.Height(m.renderOverview())
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	contentHeight := max(bodyHeight-m.overviewHeight(), 1)
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = contentHeight
	}
	m.epochTable.SetWidth(m.width)
	m.epochTable.SetHeight(max(contentHeight-1, 1))
	for i := range m.formInputs {
		promptWidth := lipgloss.Width(m.formInputs[i].Prompt)
		m.formInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	return tabs + "\n" + padLine(m.renderStatusLine(), m.width)
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderStatusLine() string {
	info := statusFor(m.state)
	label := lipgloss.NewStyle().Foreground(info.color).Bold(true).Render(info.label)
	if m.state.Status == model.StatusLoading {
		label = m.spinner.View() + " " + label
	}
	summary := fmt.Sprintf("%s  speed=%dms (%s)", m.seq.Params(), m.state.Speed.Milliseconds(), speedLabel(m.state.Speed))
	return label + "  " + headerStyle.Render(truncateLine(summary, max(m.width-lipgloss.Width(label)-2, 0)))
}

func (m *Model) renderOverview() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return renderStatCards(m.state, width) + "\n" + renderProgress(m.state, width)
}

func (m *Model) renderBody(height int) string {
	if m.formMode {
		return fitLines(m.renderForm(), m.width, height)
	}
	overview := m.renderOverview()
	contentHeight := max(height-lipgloss.Height(overview), 1)
	var content string
	if m.activeTab == tabEpochs {
		if len(m.state.Revealed) == 0 {
			content = "No epochs yet."
		} else {
			content = tableMutedStyle.Render(m.epochTable.View())
		}
	} else {
		content = m.viewports[m.activeTab].View()
	}
	return overview + "\n" + fitLines(content, m.width, contentHeight)
}

func (m *Model) renderHelp() string {
	help := "Start: s  Pause/Resume: space  Stop: x  Speed: +/-  Batch: b  Params: e  Nav: left/right  Quit: q"
	if m.state.Status == model.StatusError {
		help = "Retry: r  Start: s  Stop: x  Params: e  Nav: left/right  Quit: q"
	}
	return headerStyle.Render(truncateLine(help, m.width))
}

func (m *Model) renderFooter() string {
	if m.formMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return m.renderHelp()
}

func newFormInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 12
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) startForm() (tea.Model, tea.Cmd) {
	if m.state.IsActive() {
		m.errMsg = "Stop the current run to change parameters."
		return m, nil
	}
	p := m.seq.Params()
	m.formInputs[formEpochs].SetValue(strconv.Itoa(p.Epochs))
	m.formInputs[formLearningRate].SetValue(strconv.FormatFloat(p.LearningRate, 'g', -1, 64))
	m.formInputs[formBatchSize].SetValue(strconv.Itoa(p.BatchSize))
	m.formMode = true
	m.formError = ""
	return m, m.setFormIndex(0)
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.formMode = false
		m.formError = ""
		return m, nil
	case tea.KeyEnter:
		p, err := m.formParams()
		if err != nil {
			m.formError = err.Error()
			return m, nil
		}
		m.seq.SetParams(p)
		m.formMode = false
		m.formError = ""
		m.refresh()
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		return m, m.setFormIndex(m.formIndex + 1)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.setFormIndex(m.formIndex - 1)
	}
	var cmd tea.Cmd
	m.formInputs[m.formIndex], cmd = m.formInputs[m.formIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFormIndex(idx int) tea.Cmd {
	count := len(m.formInputs)
	m.formIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.formInputs {
		if i == m.formIndex {
			cmd = m.formInputs[i].Focus()
		} else {
			m.formInputs[i].Blur()
		}
	}
	return cmd
}

// formParams parses the form. Range checks are left to the server so its
// messages reach the error state unchanged.
func (m *Model) formParams() (model.TrainingParams, error) {
	var p model.TrainingParams
	epochs, err := strconv.Atoi(strings.TrimSpace(m.formInputs[formEpochs].Value()))
	if err != nil {
		return p, fmt.Errorf("invalid epochs (use integer)")
	}
	lr, err := strconv.ParseFloat(strings.TrimSpace(m.formInputs[formLearningRate].Value()), 64)
	if err != nil {
		return p, fmt.Errorf("invalid learning rate (use number)")
	}
	batch, err := strconv.Atoi(strings.TrimSpace(m.formInputs[formBatchSize].Value()))
	if err != nil {
		return p, fmt.Errorf("invalid batch size (use integer)")
	}
	return model.TrainingParams{Epochs: epochs, LearningRate: lr, BatchSize: batch}, nil
}

func (m *Model) renderForm() string {
	lines := []string{"Parameters (enter to apply, esc to cancel)"}
	for _, input := range m.formInputs {
		lines = append(lines, input.View())
	}
	if m.formError != "" {
		lines = append(lines, errorStyle.Render(m.formError))
	}
	return strings.Join(lines, "\n")
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
