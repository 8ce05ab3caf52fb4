package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hls-relay/internal/platform/config"
	"hls-relay/internal/relay"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or inspect access tokens with TOKEN_SECRET",
	}
	cmd.AddCommand(newTokenMintCmd(), newTokenInspectCmd())
	return cmd
}

func codecFromEnv() (*relay.Codec, error) {
	cfg := config.FromEnv()
	if cfg.TokenSecret == "" {
		return nil, errors.New("TOKEN_SECRET must be set")
	}
	return relay.NewCodec([]byte(cfg.TokenSecret), cfg.TokenTTL)
}

func newTokenMintCmd() *cobra.Command {
	var channel, client, file string

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token for a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := codecFromEnv()
			if err != nil {
				return err
			}
			token, _ := codec.Mint(channel, client, file)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel key (required)")
	cmd.Flags().StringVar(&client, "client", "", "bind the token to this client address")
	cmd.Flags().StringVar(&file, "file", "", "bind the token to this reference")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

type inspectOutput struct {
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Client    string    `json:"client,omitempty"`
	Bound     bool      `json:"boundToReference"`
	Nonce     string    `json:"nonce,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitzero"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func newTokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect TOKEN",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := codecFromEnv()
			if err != nil {
				return err
			}
			claims, verr := codec.Verify(args[0])
			out := inspectOutput{Valid: verr == nil}
			if verr != nil {
				out.Error = verr.Error()
			}
			if verr == nil || errors.Is(verr, relay.ErrTokenExpired) {
				out.Channel = claims.Channel
				out.Client = claims.Client
				out.Bound = len(claims.Resource) > 0
				out.Nonce = claims.NonceID()
				out.IssuedAt = claims.IssuedAt.UTC()
				out.ExpiresAt = claims.ExpiresAt.UTC()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			return verr
		},
	}
}
