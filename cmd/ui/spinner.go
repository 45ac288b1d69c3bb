package ui

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type spinnerModel struct {
	spinner  spinner.Model
	msg      string
	quitting bool
}

type (
	spinnerLabelMsg string
	spinnerStopMsg  struct{}
)

func initialSpinnerModel(msg string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return spinnerModel{spinner: s, msg: msg}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerLabelMsg:
		m.msg = string(msg)
		return m, nil
	case spinnerStopMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		return m, nil
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m spinnerModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.msg)
}

// Spinner is a transient status line. It never reads stdin, so it can run
// while the abort monitor owns the terminal.
type Spinner struct {
	p    *tea.Program
	done chan struct{}
	once sync.Once
}

// StartLoading shows msg with a spinner until Stop is called.
func StartLoading(msg string) *Spinner {
	s := &Spinner{
		p:    tea.NewProgram(initialSpinnerModel(msg), tea.WithInput(nil)),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if _, err := s.p.Run(); err != nil {
			fmt.Println("Error running spinner:", err)
		}
	}()
	return s
}

// SetLabel replaces the spinner text.
func (s *Spinner) SetLabel(msg string) {
	if s == nil {
		return
	}
	s.p.Send(spinnerLabelMsg(msg))
}

// Stop clears the spinner and waits for it to exit. Safe to call twice.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.p.Send(spinnerStopMsg{})
		<-s.done
	})
}
