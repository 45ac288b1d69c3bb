package cmd

import (
	"fmt"
	"sort"

	"AgentConsole/cmd/ui"
	"AgentConsole/pkg/console/config"
	"AgentConsole/pkg/console/eventlog"

	"github.com/spf13/cobra"
)

var deleteYesFlag bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Create, inspect and delete sessions on the agent server",
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session from the current configuration and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		id, err := newClient(cfg).CreateSession(cmd.Context(), cfg.SessionContext())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		info, err := newClient(cfg).GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session:   %s\n", info.SessionID)
		if info.Model != "" {
			fmt.Fprintf(out, "Model:     %s\n", info.Model)
		}
		if info.CreatedAt != "" {
			fmt.Fprintf(out, "Created:   %s\n", info.CreatedAt)
		}
		if info.WorkspacePath != "" {
			fmt.Fprintf(out, "Workspace: %s\n", info.WorkspacePath)
		}
		keys := make([]string, 0, len(info.Extra))
		for k := range info.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s: %v\n", k, info.Extra[k])
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !deleteYesFlag && !ui.Confirm(fmt.Sprintf("Delete session %s?", args[0])) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		if err := newClient(cfg).DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		return nil
	},
}

var sessionsEventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Print the recorded event streams of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := eventlog.Open(config.EventLogDir())
		if err != nil {
			return err
		}
		recs, err := log.Records(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintf(out, "No recorded events for %s (chat --record enables recording).\n", args[0])
			return nil
		}
		for _, r := range recs {
			detail := r.Note
			if len(r.Data) > 0 {
				detail = string(r.Data)
			}
			if len(detail) > 120 {
				detail = detail[:117] + "..."
			}
			fmt.Fprintf(out, "%s  %-20s %s\n", r.Ts.Local().Format("15:04:05.000"), r.Kind, detail)
		}
		return nil
	},
}

func init() {
	sessionsDeleteCmd.Flags().BoolVarP(&deleteYesFlag, "yes", "y", false, "Do not ask for confirmation")
	sessionsCmd.AddCommand(sessionsCreateCmd, sessionsShowCmd, sessionsDeleteCmd, sessionsEventsCmd)
	rootCmd.AddCommand(sessionsCmd)
}
