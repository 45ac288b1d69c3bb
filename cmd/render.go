package cmd

import (
	"fmt"
	"strings"

	"AgentConsole/pkg/console/api"

	"github.com/charmbracelet/lipgloss"
)

var (
	agentLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errTurnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// transcriptPrinter writes transcript snapshots to an append-only terminal.
// Agent messages replace their whole content on every update, so it prints
// the new suffix when the old text is a prefix and reprints the turn
// otherwise.
type transcriptPrinter struct {
	write   func(string)
	onWrite func()

	printed map[int64]string
	tools   map[int64]int
}

func newTranscriptPrinter(write func(string)) *transcriptPrinter {
	p := &transcriptPrinter{write: write}
	p.reset()
	return p
}

// reset forgets everything printed. Turn ids restart with a new session.
func (p *transcriptPrinter) reset() {
	p.printed = make(map[int64]string)
	p.tools = make(map[int64]int)
}

// render prints what changed since the last call and reports whether
// anything was written.
func (p *transcriptPrinter) render(turns []api.Turn) bool {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == api.RoleUser {
			p.printed[t.ID] = t.Content
			continue
		}

		old, seen := p.printed[t.ID]
		switch {
		case t.Content == old:
		case !seen || old == "":
			b.WriteString("\n" + turnHeader(t.Role) + t.Content)
		case strings.HasPrefix(t.Content, old):
			b.WriteString(t.Content[len(old):])
		default:
			b.WriteString("\n" + systemStyle.Render("↻ updated") + "\n" + turnHeader(t.Role) + t.Content)
		}
		p.printed[t.ID] = t.Content

		for i := p.tools[t.ID]; i < len(t.ToolInvocations); i++ {
			b.WriteString("\n" + toolStyle.Render(formatTool(t.ToolInvocations[i])))
		}
		p.tools[t.ID] = len(t.ToolInvocations)
	}

	if b.Len() == 0 {
		return false
	}
	if p.onWrite != nil {
		p.onWrite()
	}
	p.write(b.String())
	return true
}

func turnHeader(role api.Role) string {
	switch role {
	case api.RoleAssistant:
		return agentLabel.Render("🤖 Agent:") + " "
	case api.RoleSystem:
		return systemStyle.Render("ℹ️ ") + " "
	case api.RoleError:
		return errTurnStyle.Render("❌") + " "
	default:
		return string(role) + ": "
	}
}

func formatTool(inv api.ToolInvocation) string {
	s := "🔧 " + inv.Name
	if inv.Result != nil {
		r := strings.TrimSpace(*inv.Result)
		if len(r) > 80 {
			r = r[:77] + "..."
		}
		s += fmt.Sprintf(" → %s", r)
	}
	return s
}
