// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cnnetwork/imperium/internal/config"
	"github.com/cnnetwork/imperium/internal/logging"
	"github.com/cnnetwork/imperium/internal/xdg"
)

const serviceName = "imperium"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the imperium CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "imperium",
		Short: "Imperium - account core for game servers",
		Long: `Imperium manages player accounts: registration, login sessions bound to
client identities, legacy account migration, achievements and ranks,
all persisted in PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewAccountCmd(deps))
	cmd.AddCommand(NewLegacyCmd(deps))
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from --config, or the XDG
// config file when --config is unset, and the flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = xdg.ConfigFile(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the default logger for cfg.
func setupLogging(cfg config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
}
