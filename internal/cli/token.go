package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/event-reservation/internal/auth"
	"github.com/iliyamo/event-reservation/internal/config"
)

type tokenOptions struct {
	Subject string
	Name    string
	TTL     time.Duration
	Secret  string
	JSON    bool
}

// NewTokenCommand creates the token command, which signs a development
// access token for the given identity.
func NewTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Subject, "sub", "", "identity id to put in the token (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print token and expiry as JSON")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func runToken(cmd *cobra.Command, opts *tokenOptions) error {
	if opts.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	secret := opts.Secret
	if secret == "" {
		s, err := config.LoadJWTSecret()
		if err != nil {
			return err
		}
		secret = s
	}
	tok, err := auth.IssueToken(secret, opts.Subject, opts.Name, opts.TTL)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.JSON {
		return json.NewEncoder(out).Encode(map[string]any{"token": tok.Token, "expires_at": tok.Exp})
	}
	_, err = fmt.Fprintln(out, tok.Token)
	return err
}
