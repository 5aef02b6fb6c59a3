package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ent0n29/speakbot/internal/app"
	"github.com/ent0n29/speakbot/internal/entitlement"
	"github.com/ent0n29/speakbot/internal/identity"
)

func newVIPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vip",
		Short: "Inspect and sign VIP membership",
	}
	cmd.AddCommand(newVIPCheckCmd())
	cmd.AddCommand(newVIPSignCmd())
	return cmd
}

func newVIPCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <telegram-user-id>",
		Short: "Query the membership registry for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, mode, closeOracle, err := app.NewEntitlementClient(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer closeOracle()

			key := identity.Key(userID)
			return printJSON(cmd, map[string]any{
				"telegram_id": userID,
				"user_key":    key,
				"registry":    mode,
				"vip":         client.CheckEntitlement(cmd.Context(), key),
			})
		},
	}
}

func newVIPSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <telegram-user-id> <address>",
		Short: "Print the /verify signature for a user and wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			signer, err := entitlement.NewSigner(cfg.SignerPrivateKey)
			if err != nil {
				return err
			}
			sig, err := signer.Sign(identity.Key(userID), args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, sig)
		},
	}
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid telegram user id %q", raw)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
