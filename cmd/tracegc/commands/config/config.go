// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage tracegc configuration files.

Subcommands:
  init      Create a sample configuration file
  show      Display current configuration
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}
