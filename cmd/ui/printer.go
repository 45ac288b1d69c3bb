package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// IsRawMode is set while the abort monitor holds the terminal in raw mode.
var IsRawMode = false

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Printf mimics fmt.Printf but handles CRLF if in raw mode.
func Printf(format string, a ...interface{}) {
	Print(fmt.Sprintf(format, a...))
}

// Print mimics fmt.Print but handles CRLF if in raw mode.
func Print(a ...interface{}) {
	fmt.Print(crlf(fmt.Sprint(a...)))
}

// Println mimics fmt.Println but handles CRLF if in raw mode.
func Println(a ...interface{}) {
	Print(fmt.Sprint(a...) + "\n")
}

func crlf(s string) string {
	if !IsRawMode {
		return s
	}
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Errorf prints a red error line.
func Errorf(format string, a ...interface{}) {
	Println(errorStyle.Render("❌ " + fmt.Sprintf(format, a...)))
}

// Warnf prints a highlighted warning line.
func Warnf(format string, a ...interface{}) {
	Println(warnStyle.Render("⚠️  " + fmt.Sprintf(format, a...)))
}

// Infof prints a dimmed status line.
func Infof(format string, a ...interface{}) {
	Println(infoStyle.Render(fmt.Sprintf(format, a...)))
}

// Successf prints a green confirmation line.
func Successf(format string, a ...interface{}) {
	Println(successStyle.Render("✅ " + fmt.Sprintf(format, a...)))
}
