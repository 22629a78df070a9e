// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var owner, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for an owner code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !auth.IsValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}

			manager, err := auth.NewJWTManager(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := manager.GenerateToken(owner, role)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner code the token acts for")
	cmd.Flags().StringVar(&role, "role", auth.RoleMember, "role: viewer, member or admin")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
