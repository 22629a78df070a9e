// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/driver"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one account worker (launched by serve)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWorker()
			if err != nil {
				return err
			}

			// stdout is the event channel; logs always go to stderr as JSON
			// so the supervisor can re-emit them.
			logging.Init(logging.Config{
				Level:     cfg.Logging.Level,
				Format:    "json",
				Caller:    cfg.Logging.Caller,
				Timestamp: true,
				Output:    os.Stderr,
			})

			drv, err := driver.New(driver.Options{
				AccountID: cfg.AccountID,
				Kind:      cfg.Kind,
				Step:      cfg.DriverStep,
			})
			if err != nil {
				return fmt.Errorf("create driver: %w", err)
			}

			w := worker.New(worker.Options{
				AccountID: cfg.AccountID,
				Kind:      cfg.Kind,
				Host:      cfg.Host,
				Port:      cfg.Port,
				In:        os.Stdin,
				Out:       os.Stdout,
				Driver:    drv,

				AllowedOrigins: cfg.AllowedOrigins,
				Token:          cfg.Token,
			})
			if err := w.Run(cmd.Context()); err != nil {
				logging.Error().Err(err).Str("account_id", cfg.AccountID).Msg("Worker failed")
				return err
			}
			return nil
		},
	}
}
