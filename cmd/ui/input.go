// Package ui holds the terminal presentation for the console: message input,
// permission prompts, spinners and styled output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputResult is what the user typed.
type InputResult struct {
	Value     string
	Submitted bool
	Cancelled bool
}

// Command is a slash command offered for completion.
type Command struct {
	Name        string
	Description string
}

// DefaultCommands are the chat slash commands.
var DefaultCommands = []Command{
	{"/attach", "Attach a file to the next message"},
	{"/detach", "Drop all queued attachments"},
	{"/pending", "Show and decide pending permission requests"},
	{"/dismiss", "Clear the session error banner"},
	{"/new", "Start a new session with the same settings"},
	{"/help", "Show help"},
	{"/quit", "Quit session"},
}

// InputOptions configures one ReadMessage call.
type InputOptions struct {
	Prompt  string
	History []string
	// Attachments are the names queued for the next message.
	Attachments []string
}

type inputModel struct {
	textarea  textarea.Model
	opts      InputOptions
	submitted bool
	cancelled bool

	historyPos int // -1 while editing a fresh draft
	draft      string

	matches  []Command
	menuOpen bool
	menuPos  int
}

func newInputModel(opts InputOptions) inputModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(true)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Placeholder = dimStyle

	return inputModel{textarea: ta, opts: opts, historyPos: -1}
}

func (m inputModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.menuOpen {
			if next, cmd, handled := m.updateMenu(msg); handled {
				return next, cmd
			}
		}
		switch msg.Type {
		case tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.textarea.Value() == "" {
				m.cancelled = true
				return m, tea.Quit
			}
		case tea.KeyEnter:
			if !msg.Alt {
				m.submitted = true
				return m, tea.Quit
			}
		case tea.KeyCtrlJ:
			m.textarea.InsertString("\n")
			return m, nil
		case tea.KeyCtrlP:
			m.historyBack()
			return m, nil
		case tea.KeyCtrlN:
			m.historyForward()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.textarea.SetWidth(msg.Width - 10)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)

	val := m.textarea.Value()
	m.menuOpen = strings.HasPrefix(val, "/") && !strings.Contains(val, " ")
	if m.menuOpen {
		m.matches = matchCommands(DefaultCommands, val)
		if m.menuPos >= len(m.matches) {
			m.menuPos = 0
		}
	}
	return m, cmd
}

func (m inputModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyUp:
		if m.menuPos > 0 {
			m.menuPos--
		}
		return m, nil, true
	case tea.KeyDown:
		if m.menuPos < len(m.matches)-1 {
			m.menuPos++
		}
		return m, nil, true
	case tea.KeyTab:
		if len(m.matches) > 0 {
			m.textarea.SetValue(m.matches[m.menuPos].Name + " ")
			m.menuOpen = false
		}
		return m, nil, true
	case tea.KeyEnter:
		if len(m.matches) > 0 {
			m.textarea.SetValue(m.matches[m.menuPos].Name)
			m.submitted = true
			return m, tea.Quit, true
		}
	case tea.KeyEsc:
		m.menuOpen = false
		return m, nil, true
	}
	return m, nil, false
}

func matchCommands(cmds []Command, prefix string) []Command {
	if prefix == "/" {
		return cmds
	}
	var out []Command
	for _, c := range cmds {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (m inputModel) View() string {
	var b strings.Builder
	b.WriteString(m.opts.Prompt)
	b.WriteString(m.textarea.View())

	if len(m.opts.Attachments) > 0 {
		b.WriteString("\n")
		b.WriteString(allStyle.Render("📎 " + strings.Join(m.opts.Attachments, ", ")))
	}

	if m.menuOpen && len(m.matches) > 0 {
		var menu strings.Builder
		for i, c := range m.matches {
			name := dimStyle.Render("  " + c.Name)
			if i == m.menuPos {
				name = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Render("> " + c.Name)
			}
			menu.WriteString(name + dimStyle.Render("  "+c.Description))
			if i < len(m.matches)-1 {
				menu.WriteString("\n")
			}
		}
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
		b.WriteString("\n" + box.Render(menu.String()) + "\n")
		b.WriteString(dimStyle.Render("↑↓ Select | Tab Complete | Enter Run | Esc Close"))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Enter Submit | Ctrl+J/Alt+Enter Newline | Ctrl+P/Ctrl+N History | Ctrl+C Quit"))
	return b.String()
}

func (m *inputModel) historyBack() {
	h := m.opts.History
	if len(h) == 0 {
		return
	}
	switch {
	case m.historyPos == -1:
		m.draft = m.textarea.Value()
		m.historyPos = len(h) - 1
	case m.historyPos > 0:
		m.historyPos--
	}
	m.textarea.SetValue(h[m.historyPos])
}

func (m *inputModel) historyForward() {
	h := m.opts.History
	if len(h) == 0 || m.historyPos == -1 {
		return
	}
	if m.historyPos < len(h)-1 {
		m.historyPos++
		m.textarea.SetValue(h[m.historyPos])
		return
	}
	m.historyPos = -1
	m.textarea.SetValue(m.draft)
}

// ReadMessage reads one multi-line message.
func ReadMessage(opts InputOptions) (InputResult, error) {
	opts.History = append([]string(nil), opts.History...)
	final, err := tea.NewProgram(newInputModel(opts)).Run()
	if err != nil {
		return InputResult{}, fmt.Errorf("input error: %w", err)
	}
	m := final.(inputModel)
	return InputResult{
		Value:     strings.TrimSpace(m.textarea.Value()),
		Submitted: m.submitted,
		Cancelled: m.cancelled,
	}, nil
}

// Confirm asks a yes/no question on stdin. Anything but y/yes is no.
func Confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
