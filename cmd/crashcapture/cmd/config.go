package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/config"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/fsutil"
)

var (
	configForce   bool
	configProject bool
	configRaw     bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := configTarget()
		if err != nil {
			return err
		}
		created, err := config.EnsureConfigFile(path, configForce)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s (use --force to overwrite)\n", path)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, used, err := loadConfig()
		if err != nil {
			return err
		}
		if used == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(none, using defaults)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), used)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, used, err := loadConfig()
		if err != nil {
			return err
		}

		if configRaw {
			if used == "" {
				return fmt.Errorf("no config file in use")
			}
			data, err := fsutil.ReadFileScoped(used)
			if err != nil {
				return fmt.Errorf("reading %s: %w", used, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configProject, "project", false,
		"write ."+config.AppName+".yaml in the current directory instead of the user config")
	configShowCmd.Flags().BoolVar(&configRaw, "raw", false, "print the config file as written")

	configCmd.AddCommand(configInitCmd, configPathCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// configTarget returns where config init writes.
func configTarget() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	if configProject {
		return "." + config.AppName + ".yaml", nil
	}
	return config.UserConfigPath()
}
