package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("%s already exists; pass --force to overwrite", cfgFile)
		}

		cfg := config.DefaultConfig()
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if err := cfg.Save(cfgFile); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", cfgFile)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
