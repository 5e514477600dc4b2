package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/simrelay/internal/config"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := root.resolve(cmd, nil)
			if err != nil {
				return err
			}
			if settings.ConfigLoaded && !force {
				return fmt.Errorf("config %s already exists (use --force to overwrite)", settings.ConfigPath)
			}
			cfg := config.Default()
			cfg.DeviceSet = settings.DeviceSet
			if err := cfg.Save(settings.ConfigPath); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			logger.Debug("config written", "path", settings.ConfigPath, "device_set", settings.DeviceSet)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", settings.ConfigPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
