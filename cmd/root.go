package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"AgentConsole/pkg/console/client"
	"AgentConsole/pkg/console/config"
	"AgentConsole/pkg/logger"

	"github.com/spf13/cobra"
)

// Global flags
var (
	configFlag   string
	serverFlag   string
	modelFlag    string
	yoloFlag     bool
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "agent-console",
	Short: "Agent Console - chat with a remote agent and approve what it does",
	Long: `Agent Console talks to a remote agent server. The agent may pause mid-turn
and ask permission before it writes, edits or deletes files or runs shell
commands; the console shows each request once and sends your decision back.

Global Flags:
  --config     Config file (default ~/.agent-console/config.yaml)
  --server     Agent server base URL
  --model      Model for new sessions
  --yolo       Ask the server to skip permission prompts for new sessions
  --log-level  DEBUG | INFO | WARN | ERROR

Running without a subcommand starts chat.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Agent server base URL (e.g., http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model for new sessions (e.g., claude-3-5-sonnet-latest)")
	rootCmd.PersistentFlags().BoolVar(&yoloFlag, "yolo", false, "Enable yolo mode for new sessions")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
}

// Execute runs the root command. Without a subcommand it starts chat.
func Execute() {
	loadDotEnv()

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "chat")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger() {
	level := ""
	if cfg, err := config.Load(configFlag); err == nil {
		level = cfg.LogLevel
	}
	if v := os.Getenv(config.EnvLogLevel); v != "" {
		level = v
	}
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logPath := filepath.Join(config.StateDir(), "logs", time.Now().Format("20060102")+".log")
	if err := logger.Init(logPath, logger.ParseLevel(level), "agent-console"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
	logger.Info("cli", "Agent Console starting", map[string]interface{}{
		"os":   runtime.GOOS,
		"args": strings.Join(os.Args[1:], " "),
	})
}

// loadConfig merges file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = serverFlag
	}
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}
	if flags.Changed("yolo") {
		cfg.Permissions.YoloMode = yoloFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
}

func newClient(cfg config.Config) *client.Client {
	return client.New(cfg.Server, client.WithRequestTimeout(cfg.RequestTimeout))
}

// loadDotEnv reads .env from the working directory. Shell values win.
func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	for key, val := range parseDotEnv(bufio.NewScanner(file)) {
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func parseDotEnv(scanner *bufio.Scanner) map[string]string {
	out := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if key != "" {
			out[key] = val
		}
	}
	return out
}
