package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Create or show the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write taskboard.toml with the default settings.

The file goes to ~/.taskboard/taskboard.toml unless --config names another
path. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = filepath.Join(config.Dir(), config.FileName)
		}
		force, _ := cmd.Flags().GetBool("force")

		if err := config.Write(path, config.DefaultConfig(), force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", renderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if structured() {
			return writeOutput(w, outputFormat, cfg)
		}

		source := cfg.Source
		if source == "" {
			source = "(defaults and environment only)"
		}
		fmt.Fprintf(w, "# source: %s\n", source)
		return config.Encode(w, cfg)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
