package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Print the effective configuration as an HCL file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return cfg.WriteHCL(cmd.OutOrStdout())
	},
}
