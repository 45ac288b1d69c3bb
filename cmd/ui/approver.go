package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"AgentConsole/pkg/console/api"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Choice is the answer to one permission prompt.
type Choice int

const (
	ChoiceAllow Choice = iota
	ChoiceDeny
	ChoiceAllowAll
)

// Granted reports whether the choice lets the operation run.
func (c Choice) Granted() bool { return c != ChoiceDeny }

func (c Choice) String() string {
	switch c {
	case ChoiceAllow:
		return "Allow"
	case ChoiceDeny:
		return "Deny"
	case ChoiceAllowAll:
		return "Allow all for this session"
	default:
		return "unknown"
	}
}

var choices = []Choice{ChoiceAllow, ChoiceDeny, ChoiceAllowAll}

// Approver asks the user to decide a permission request.
type Approver struct {
	In  io.Reader
	Out io.Writer
	Now func() time.Time

	reader *bufio.Reader
}

// NewApprover reads from stdin and writes to stdout.
func NewApprover() *Approver {
	return &Approver{In: os.Stdin, Out: os.Stdout, Now: time.Now}
}

// Prompt shows the request panel and returns the user's choice. A cancelled
// prompt denies.
func (a *Approver) Prompt(ctx context.Context, req api.PermissionRequest) (Choice, error) {
	fmt.Fprintln(a.Out)
	fmt.Fprintln(a.Out, RenderPermissionPanel(req, a.now()))
	fmt.Fprintln(a.Out)

	if f, ok := a.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return a.interactive(ctx)
	}
	return a.simple()
}

func (a *Approver) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Approver) interactive(ctx context.Context) (Choice, error) {
	p := tea.NewProgram(approvalModel{}, tea.WithContext(ctx), tea.WithOutput(a.Out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ChoiceDeny, ctx.Err()
		}
		return a.simple()
	}
	m, ok := final.(approvalModel)
	if !ok || m.cancelled {
		a.confirm(ChoiceDeny)
		return ChoiceDeny, nil
	}
	c := choices[m.selected]
	a.confirm(c)
	return c, nil
}

// simple is the line-based prompt for non-interactive input.
func (a *Approver) simple() (Choice, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.In)
	}
	fmt.Fprint(a.Out, "  (A)llow  |  (D)eny  |  Allow (all)\n\nChoice [a/D/all]: ")

	line, err := a.reader.ReadString('\n')
	if err != nil && line == "" {
		return ChoiceDeny, err
	}
	c := parseChoice(line)
	a.confirm(c)
	return c, nil
}

func parseChoice(s string) Choice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "allow", "y", "yes", "grant":
		return ChoiceAllow
	case "all", "auto":
		return ChoiceAllowAll
	default:
		return ChoiceDeny
	}
}

func (a *Approver) confirm(c Choice) {
	switch c {
	case ChoiceAllow:
		fmt.Fprintln(a.Out, grantStyle.Render("✓ Allowed"))
	case ChoiceAllowAll:
		fmt.Fprintln(a.Out, allStyle.Render("✓ Allowing all further requests in this session"))
	default:
		fmt.Fprintln(a.Out, denyStyle.Render("✗ Denied"))
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Selector
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type approvalModel struct {
	selected  int
	cancelled bool
	chosen    bool
}

func (m approvalModel) Init() tea.Cmd { return nil }

func (m approvalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		m.selected = (m.selected + len(choices) - 1) % len(choices)
	case "down", "j", "tab":
		m.selected = (m.selected + 1) % len(choices)
	case "enter":
		m.chosen = true
		return m, tea.Quit
	case "a", "y":
		m.selected, m.chosen = int(ChoiceAllow), true
		return m, tea.Quit
	case "d", "n":
		m.selected, m.chosen = int(ChoiceDeny), true
		return m, tea.Quit
	}
	return m, nil
}

func (m approvalModel) View() string {
	if m.chosen || m.cancelled {
		return ""
	}
	var b strings.Builder
	for i, c := range choices {
		if i != m.selected {
			b.WriteString(dimStyle.Render("  ☐ "+c.String()) + "\n")
			continue
		}
		style := grantStyle
		switch c {
		case ChoiceDeny:
			style = denyStyle
		case ChoiceAllowAll:
			style = allStyle
		}
		b.WriteString("❯ " + style.Bold(true).Render("☑ "+c.String()) + "\n")
	}
	b.WriteString(dimStyle.Render("↑↓ Select | Enter Confirm | a Allow | d Deny | Esc Deny"))
	return b.String()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Panel
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const previewLines = 12

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	riskStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	grantStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	denyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	allStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// OperationTitle is the panel heading for an operation.
func OperationTitle(req api.PermissionRequest) string {
	switch req.Operation {
	case api.OpCreateFile:
		return "📄 Create file"
	case api.OpEditFile:
		return "✏️  Edit file"
	case api.OpDeleteFile:
		return "🗑️  Delete file"
	case api.OpRunTerminalCommand:
		return "⚡ Run terminal command"
	default:
		return "Operation: " + req.OperationName()
	}
}

// RenderPermissionPanel lays out a request with operation-specific details.
func RenderPermissionPanel(req api.PermissionRequest, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🔒 Permission required · " + OperationTitle(req)))
	b.WriteString("\n")

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString("\n" + labelStyle.Render(label+":") + " " + value)
	}
	preview := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString("\n" + labelStyle.Render(label+":") + "\n" + previewStyle.Render(clipLines(value, previewLines)))
	}

	switch req.Operation {
	case api.OpCreateFile:
		field("File", req.DetailString("file_path"))
		preview("Content preview", req.DetailString("content_preview"))
	case api.OpEditFile:
		field("File", req.DetailString("target_file"))
		field("Instructions", req.DetailString("instructions"))
		preview("Edit preview", req.DetailString("edit_preview"))
		preview("Replacement preview", req.DetailString("replace_preview"))
	case api.OpDeleteFile:
		field("File", req.DetailString("target_file"))
	case api.OpRunTerminalCommand:
		field("Command", req.DetailString("command"))
		field("Explanation", req.DetailString("explanation"))
	default:
		preview("Details", req.DetailsJSON())
	}

	if hint := req.RiskHint(); hint != "" {
		b.WriteString("\n\n" + riskStyle.Render("⚠️  "+hint))
	}
	meta := "request " + req.RequestID
	if !req.FirstSeen.IsZero() && !now.Before(req.FirstSeen) {
		meta += fmt.Sprintf(" · waiting %s", now.Sub(req.FirstSeen).Truncate(time.Second))
	}
	b.WriteString("\n\n" + dimStyle.Render(meta))

	return panelStyle.Render(b.String())
}

func clipLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}
