package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Eternity714/KatelyaTV/internal/auth"
)

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect bearer tokens",
	}
	cmd.AddCommand(c.tokenIssueCmd())
	cmd.AddCommand(c.tokenVerifyCmd())
	return cmd
}

func (c *cli) verifier(secret string) (*auth.Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		secret = c.cfg.JWTSecret
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("a signing secret is required (JWT_SECRET or --secret)")
	}
	return auth.NewVerifier(secret, c.cfg.OwnerUsername), nil
}

func (c *cli) tokenIssueCmd() *cobra.Command {
	var (
		secret string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue USERNAME",
		Short: "Sign a token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleOwner, auth.RoleAdmin, auth.RoleUser:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			v, err := c.verifier(secret)
			if err != nil {
				return err
			}
			token, err := v.Issue(strings.TrimSpace(args[0]), role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default JWT_SECRET)")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "Role: owner | admin | user")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime, 0 for no expiry")
	return cmd
}

func (c *cli) tokenVerifyCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Check a token and print who it belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.verifier(secret)
			if err != nil {
				return err
			}
			identity, err := v.Verify(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), identity)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default JWT_SECRET)")
	return cmd
}
