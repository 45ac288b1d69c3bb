package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the agent server offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		catalog, err := newClient(cfg).ListModels(cmd.Context())
		if err != nil {
			return err
		}

		providers := make([]string, 0, len(catalog))
		for p := range catalog {
			providers = append(providers, p)
		}
		sort.Strings(providers)

		out := cmd.OutOrStdout()
		for _, p := range providers {
			fmt.Fprintf(out, "%s:\n", p)
			for _, m := range catalog[p] {
				marker := " "
				if m == cfg.Model {
					marker = "*"
				}
				fmt.Fprintf(out, " %s %s\n", marker, m)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
