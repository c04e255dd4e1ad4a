package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/relsync/internal/api/response"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Control the daemon's session",
	}

	cmd.AddCommand(newSessionOpCmd("login", "login", "Log in with the stored token"))
	cmd.AddCommand(newSessionOpCmd("logout", "logout", "Mark the session unauthenticated"))
	cmd.AddCommand(newSessionOpCmd("offline", "offline", "Continue without a session"))
	cmd.AddCommand(newSessionOpCmd("change-account", "change-account", "Log out remotely and forget the stored token"))

	return cmd
}

func newSessionOpCmd(use, route, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Session

			if err := client.Post(cmd.Context(), "/api/v1/session/"+route, nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return fmt.Errorf("token must not be empty")
			}
			if err := cfg.Tokens().Save(token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Token saved to " + cfg.TokenFile)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Tokens().Clear(); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Token cleared")
			return nil
		},
	})

	return cmd
}
