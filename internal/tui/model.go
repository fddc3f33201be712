// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	installprogress "github.com/jeranaias/indextts-installer/internal/progress"
)

// =============================================================================
// STAGES
// =============================================================================

// stage groups pipeline steps into one line of the checklist. A stage is
// running once progress reaches startAt and done once it reaches doneAt.
type stage struct {
	name    string
	startAt int
	doneAt  int
}

var stages = []stage{
	{name: "Prepare environment", startAt: 5, doneAt: 20},
	{name: "Clone source code", startAt: 20, doneAt: 40},
	{name: "Install Python dependencies", startAt: 60, doneAt: 80},
	{name: "Set up models directory", startAt: 90, doneAt: 100},
}

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateDone
	stateFailed
)

// =============================================================================
// MODEL
// =============================================================================

// snapshotMsg carries one progress update into the program.
type snapshotMsg installprogress.Snapshot

// closedMsg reports that the update channel was closed.
type closedMsg struct{}

// Model renders one installation run.
type Model struct {
	updates     <-chan installprogress.Snapshot
	cancel      func()
	runID       string
	installPath string

	spinner  spinner.Model
	progress progress.Model
	width    int

	current installprogress.Snapshot
	// high is the furthest progress seen. Failures reset progress to 0, so
	// the failed stage is derived from it.
	high       int
	cancelling bool
	done       bool
}

// New returns a model following updates for runID. cancel is called once
// when the user asks to stop; it may be nil.
func New(updates <-chan installprogress.Snapshot, runID, installPath string, cancel func()) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(brandPrimary)

	return &Model{
		updates:     updates,
		cancel:      cancel,
		runID:       runID,
		installPath: installPath,
		spinner:     s,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// WithInitial seeds the model with the snapshot read before the program
// started.
func (m *Model) WithInitial(s installprogress.Snapshot) *Model {
	m.apply(s)
	return m
}

// Final returns the last snapshot of the run.
func (m *Model) Final() installprogress.Snapshot {
	return m.current
}

// Done reports whether the run reached a terminal step.
func (m *Model) Done() bool {
	return m.done
}

// Init starts the spinner and the first channel read.
func (m *Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.updates))
}

// waitForSnapshot blocks on the next update.
func waitForSnapshot(updates <-chan installprogress.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = clamp(msg.Width-20, 20, 100)
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		s := installprogress.Snapshot(msg)
		if m.runID != "" && s.RunID != "" && s.RunID != m.runID {
			return m, waitForSnapshot(m.updates)
		}
		m.apply(s)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForSnapshot(m.updates)

	case closedMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(s installprogress.Snapshot) {
	m.current = s
	if s.Progress > m.high {
		m.high = s.Progress
	}
	if s.Terminal() {
		m.done = true
	}
}

// handleKey processes key presses. The first q asks the run to stop and
// waits for its final update; a second one leaves immediately.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		if m.done || m.cancelling || m.cancel == nil {
			return m, tea.Quit
		}
		m.cancelling = true
		m.cancel()
		return m, nil
	}
	return m, nil
}

func (m *Model) stageState(st stage) stageState {
	switch {
	case m.current.HasError:
		if m.high >= st.doneAt {
			return stateDone
		}
		if m.high >= st.startAt || (st.startAt == stages[0].startAt && m.high == 0) {
			return stateFailed
		}
		return statePending
	case m.current.Progress >= st.doneAt:
		return stateDone
	case m.current.Progress >= st.startAt:
		return stateRunning
	}
	return statePending
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the run.
func (m *Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("  IndexTTS Installer"))
	s.WriteString("\n")
	if m.installPath != "" {
		s.WriteString(dimStyle.Render("  Target: " + m.installPath))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	failedShown := false
	for _, st := range stages {
		state := m.stageState(st)
		if state == stateFailed {
			if failedShown {
				state = statePending
			}
			failedShown = true
		}

		var icon string
		var style lipgloss.Style
		switch state {
		case stateDone:
			icon, style = "[OK]", successStyle
		case stateRunning:
			icon, style = m.spinner.View(), highlightStyle
		case stateFailed:
			icon, style = "[FAIL]", errorStyle
		default:
			icon, style = "[ ]", dimStyle
		}
		s.WriteString(fmt.Sprintf("  %s %s\n", style.Render(icon), st.name))
	}
	s.WriteString("\n")

	pct := m.current.Progress
	if m.current.HasError {
		pct = m.high
	}
	s.WriteString("  " + m.progress.ViewAs(float64(pct)/100))
	s.WriteString("\n\n")

	switch {
	case m.current.HasError:
		s.WriteString(boxStyle.Width(m.boxWidth()).Render(errorStyle.Render(m.current.Message)))
	case m.current.IsComplete:
		s.WriteString(successStyle.Render("  " + m.current.Message))
	default:
		s.WriteString(dimStyle.Render("  " + m.current.Message))
	}
	s.WriteString("\n")

	if !m.done {
		s.WriteString("\n")
		if m.cancelling {
			s.WriteString(dimStyle.Render("  Cancelling...  |  Press Q again to leave"))
		} else {
			s.WriteString(dimStyle.Render("  Press Q to cancel"))
		}
		s.WriteString("\n")
	}

	return s.String()
}

func (m *Model) boxWidth() int {
	if m.width == 0 {
		return 60
	}
	return clamp(m.width-16, 40, 70)
}

// =============================================================================
// PROGRAM
// =============================================================================

// Run drives m until the run ends, the user leaves or ctx is done, and
// returns the model's final state.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) (*Model, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if fm, ok := final.(*Model); ok && fm != nil {
		m = fm
	}
	if err != nil {
		return m, fmt.Errorf("terminal UI failed: %w", err)
	}
	return m, nil
}
