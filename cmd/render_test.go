package cmd

import (
	"strings"
	"testing"

	"AgentConsole/pkg/console/api"

	"github.com/stretchr/testify/require"
)

func TestTranscriptPrinter_AppendsSuffix(t *testing.T) {
	var out strings.Builder
	p := newTranscriptPrinter(func(s string) { out.WriteString(s) })

	turns := []api.Turn{
		{ID: 1, Role: api.RoleUser, Content: "hi"},
		{ID: 2, Role: api.RoleAssistant, Content: ""},
	}
	require.False(t, p.render(turns), "empty placeholder prints nothing")

	turns[1].Content = "Hello"
	require.True(t, p.render(turns))
	turns[1].Content = "Hello there"
	require.True(t, p.render(turns))
	require.False(t, p.render(turns), "unchanged snapshot prints nothing")

	got := out.String()
	require.NotContains(t, got, "hi", "user input is not echoed")
	require.Equal(t, 1, strings.Count(got, "Agent:"))
	require.True(t, strings.HasSuffix(got, "Hello there"))
}

func TestTranscriptPrinter_ReprintsReplacedContent(t *testing.T) {
	var out strings.Builder
	p := newTranscriptPrinter(func(s string) { out.WriteString(s) })

	turns := []api.Turn{{ID: 1, Role: api.RoleAssistant, Content: "Draft answer"}}
	p.render(turns)
	turns[0].Content = "Error: boom"
	p.render(turns)

	got := out.String()
	require.Contains(t, got, "updated")
	require.Equal(t, 2, strings.Count(got, "Agent:"))
	require.True(t, strings.HasSuffix(got, "Error: boom"))
}

func TestTranscriptPrinter_ToolsAndReset(t *testing.T) {
	var out strings.Builder
	writes := 0
	p := newTranscriptPrinter(func(s string) { out.WriteString(s) })
	p.onWrite = func() { writes++ }

	result := "ok"
	turns := []api.Turn{{ID: 1, Role: api.RoleAssistant, Content: "Done",
		ToolInvocations: []api.ToolInvocation{{Name: "write_file", Result: &result}}}}
	p.render(turns)
	p.render(turns)
	require.Equal(t, 1, strings.Count(out.String(), "write_file"))
	require.Equal(t, 1, writes)

	p.reset()
	out.Reset()
	require.True(t, p.render([]api.Turn{{ID: 1, Role: api.RoleSystem, Content: "Session s2 created"}}))
	require.Contains(t, out.String(), "Session s2 created")
}
