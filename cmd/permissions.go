package cmd

import (
	"errors"
	"fmt"
	"time"

	"AgentConsole/cmd/ui"
	"AgentConsole/pkg/console/api"

	"github.com/spf13/cobra"
)

var permissionsCmd = &cobra.Command{
	Use:     "permissions",
	Aliases: []string{"perms"},
	Short:   "List and decide permission requests outside a chat",
}

var permissionsListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List requests the agent is waiting on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reqs, err := newClient(cfg).PendingPermissions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(reqs) == 0 {
			fmt.Fprintln(out, "No pending permission requests.")
			return nil
		}
		for _, r := range reqs {
			fmt.Fprintln(out, ui.RenderPermissionPanel(r.Normalize(), time.Now()))
		}
		return nil
	},
}

func decisionCommand(use, short string, granted bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id> <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			err = newClient(cfg).Decide(cmd.Context(), args[0], args[1], granted)
			var derr *api.DecisionSubmissionError
			if errors.As(err, &derr) && !derr.Retryable() {
				return fmt.Errorf("request %s is no longer waiting (%s)", args[1], derr.Kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s %s\n", args[1], api.Outcome(granted))
			return nil
		},
	}
}

func init() {
	permissionsCmd.AddCommand(
		permissionsListCmd,
		decisionCommand("grant", "Allow a pending request", true),
		decisionCommand("deny", "Deny a pending request", false),
	)
	rootCmd.AddCommand(permissionsCmd)
}
