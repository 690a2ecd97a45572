package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		secret     string
		subject    string
		businessID string
		role       string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 token for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !auth.KnownRole(role) {
				return fmt.Errorf("invalid --role %q", role)
			}
			if role == auth.RoleOwner && businessID == "" {
				return fmt.Errorf("--business is required for owner tokens")
			}
			token, err := auth.Sign(auth.NewClaims(subject, businessID, role, ttl), secret)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", getenv("JWT_SECRET", ""), "signing secret")
	cmd.Flags().StringVar(&subject, "sub", "", "user id (required)")
	cmd.Flags().StringVar(&businessID, "business", "", "business id for owner tokens")
	cmd.Flags().StringVar(&role, "role", auth.RoleCustomer, "owner, customer or system")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
