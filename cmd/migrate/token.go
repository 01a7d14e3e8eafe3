package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nzvengeance/flight-logbook/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		email   string
		name    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing against JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not configured")
			}
			token, err := auth.NewVerifier(a.cfg.JWTSecret).Sign(subject, email, name, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "User key (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&name, "name", "", "Name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
