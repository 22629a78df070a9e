// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/models"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/store"
	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/validation"
)

// The accounts commands edit the store directly. A running master picks
// up additions on its next restore; use the HTTP API against a live one.
func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage persisted accounts offline",
	}
	cmd.AddCommand(
		newAccountsListCmd(),
		newAccountsAddCmd(),
		newAccountsRemoveCmd(),
	)
	return cmd
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Path)
}

func newAccountsListCmd() *cobra.Command {
	var (
		owner  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var accounts []models.Account
			if owner != "" {
				accounts, err = st.ListByOwner(cmd.Context(), owner)
			} else {
				accounts, err = st.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(accounts)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tKIND\tOWNER\tPORT\tNAME")
			for _, a := range accounts {
				port := "-"
				if a.HasPort() {
					port = strconv.Itoa(a.Port)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Kind, a.OwnerCode, port, a.DisplayName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only list this owner's accounts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAccountsAddCmd() *cobra.Command {
	var req models.CreateAccountRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verr := validation.ValidateStruct(&req); verr != nil {
				return verr
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			acc := models.Account{
				ID:          uuid.NewString(),
				Kind:        req.Kind,
				DisplayName: req.DisplayName,
				OwnerCode:   req.OwnerCode,
				CreatedAt:   time.Now().UTC(),
			}
			if err := st.Create(cmd.Context(), &acc); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), acc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Kind, "kind", "", "account kind: whatsapp, telegram, facebook or tiktok")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&req.OwnerCode, "owner", "", "owner code")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Delete(cmd.Context(), args[0])
		},
	}
}
