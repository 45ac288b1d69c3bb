package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"AgentConsole/cmd/ui"
	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/config"
	"AgentConsole/pkg/console/eventlog"
	"AgentConsole/pkg/console/orchestrator"
	"AgentConsole/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const maxAttachmentBytes = 20 << 20

var (
	workspaceFlag   string
	temperatureFlag float64
	recordFlag      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace path on the agent server")
	chatCmd.Flags().Float64Var(&temperatureFlag, "temperature", 0, "Sampling temperature in [0, 1]")
	chatCmd.Flags().BoolVar(&recordFlag, "record", false, "Record every turn's event stream (see: sessions events)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workspace") {
		cfg.WorkspacePath = workspaceFlag
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Temperature = temperatureFlag
	}
	sc := cfg.SessionContext()
	if err := sc.Validate(); err != nil {
		return err
	}

	if cmd.Flags().Changed("record") {
		cfg.RecordStreams = recordFlag
	}

	var backend api.Backend = newClient(cfg)
	if cfg.RecordStreams {
		log, err := eventlog.Open(config.EventLogDir())
		if err != nil {
			return err
		}
		backend = eventlog.Wrap(backend, log)
	}
	orch := orchestrator.New(backend, orchestrator.Options{PollInterval: cfg.PollInterval})
	defer orch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newChatSession(orch)
	if err := s.start(ctx, sc, cfg.Server); err != nil {
		return err
	}

	history, err := OpenHistory(filepath.Join(config.StateDir(), "history"))
	if err != nil {
		ui.Warnf("Input history disabled: %v", err)
	}

	var attachments []api.Attachment
	for {
		var past []string
		if history != nil {
			past = history.Entries()
		}
		in, err := ui.ReadMessage(ui.InputOptions{
			Prompt:      "\n💬 You: ",
			History:     past,
			Attachments: attachmentNames(attachments),
		})
		if err != nil {
			return err
		}
		if in.Cancelled {
			ui.Println("\nGoodbye.")
			return nil
		}

		text := strings.TrimSpace(in.Value)
		if text == "" && len(attachments) == 0 {
			continue
		}
		if history != nil && text != "" {
			go func(t string) { _ = history.Add(t) }(text)
		}

		if strings.HasPrefix(text, "/") {
			name, arg, _ := strings.Cut(text, " ")
			switch strings.ToLower(name) {
			case "/quit", "/exit", "/q":
				ui.Println("\nGoodbye.")
				return nil
			case "/help", "/?":
				printChatHelp()
			case "/attach":
				att, err := readAttachment(strings.TrimSpace(arg))
				if err != nil {
					ui.Errorf("%v", err)
					continue
				}
				attachments = append(attachments, att)
				ui.Successf("Attached %s (%d bytes)", att.Name, len(att.Data))
			case "/detach":
				attachments = nil
				ui.Infof("Attachments cleared.")
			case "/pending":
				s.reviewPending(ctx)
			case "/dismiss":
				orch.DismissError()
				ui.Infof("Error cleared.")
			case "/new":
				if err := s.start(ctx, sc, cfg.Server); err != nil {
					ui.Errorf("%v", err)
				}
			default:
				ui.Warnf("Unknown command %s. Type /help for the list.", name)
			}
			continue
		}

		submitted, err := s.runTurn(ctx, text, attachments)
		if submitted {
			attachments = nil
		}
		if err != nil {
			logger.Error("cli", "turn failed", map[string]interface{}{"err": err.Error()})
			ui.Errorf("%v", err)
		}
	}
}

// start opens a session and prints its banner.
func (s *chatSession) start(ctx context.Context, sc api.SessionContext, server string) error {
	stop := ui.StartLoading("Creating session...")
	id, err := s.orch.StartSession(ctx, sc)
	stop.Stop()
	if err != nil {
		return err
	}
	s.resetForSession()
	printChatBanner(id, sc, server)
	s.printer.render(s.orch.Snapshot().Turns)
	ui.Print("\n")
	return nil
}

func readAttachment(path string) (api.Attachment, error) {
	if path == "" {
		return api.Attachment{}, fmt.Errorf("usage: /attach <path>")
	}
	info, err := os.Stat(path)
	if err != nil {
		return api.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	if info.IsDir() {
		return api.Attachment{}, fmt.Errorf("attach %s: is a directory", path)
	}
	if info.Size() > maxAttachmentBytes {
		return api.Attachment{}, fmt.Errorf("attach %s: %d bytes exceeds the %d byte limit", path, info.Size(), maxAttachmentBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	return api.Attachment{Name: filepath.Base(path), Data: data}, nil
}

func attachmentNames(atts []api.Attachment) []string {
	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = a.Name
	}
	return names
}

func printChatHelp() {
	ui.Println("\nCommands:")
	for _, c := range ui.DefaultCommands {
		ui.Printf("  %-10s %s\n", c.Name, c.Description)
	}
	ui.Println("\nWhile the agent is working, press ESC twice to stop the turn.")
}

func printChatBanner(sessionID string, sc api.SessionContext, server string) {
	workspace := sc.WorkspacePath
	if workspace == "" {
		workspace = "(auto-generated)"
	}
	mode := "ask before risky operations"
	if sc.Policy.YoloMode {
		mode = "yolo (server skips prompts)"
	}
	body := strings.Join([]string{
		lipgloss.NewStyle().Bold(true).Render("🤖 Agent Console"),
		"",
		fmt.Sprintf("Session:   %s", sessionID),
		fmt.Sprintf("Server:    %s", server),
		fmt.Sprintf("Model:     %s (temperature %.2g)", sc.Model, sc.Temperature),
		fmt.Sprintf("Workspace: %s", workspace),
		fmt.Sprintf("Approval:  %s", mode),
		"",
		"/help for commands · ESC ESC stops a running turn",
	}, "\n")
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 2)
	ui.Println("\n" + box.Render(body))
}
