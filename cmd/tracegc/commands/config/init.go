package config

import (
	"fmt"

	"github.com/marmos91/tracegc/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a sample tracegc configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tracegc/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tracegc config init

  # Initialize with custom path
  tracegc config init --config /etc/tracegc/config.yaml

  # Force overwrite existing config
  tracegc config init --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to tune the collector")
	fmt.Println("  2. Run the simulation with: tracegc run")
	fmt.Printf("  3. Or specify custom config: tracegc run --config %s\n", configPath)
	return nil
}
