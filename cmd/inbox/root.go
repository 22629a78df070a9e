// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package main

import (
	"github.com/spf13/cobra"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "inbox",
		Short:         "Multi-tenant unified inbox",
		Long:          "Supervises one worker process per linked messaging account and relays their events to browser sessions.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newTokenCmd(),
		newAccountsCmd(),
	)
	return cmd
}

// loadConfig reads the master configuration and applies its logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	return cfg, nil
}
