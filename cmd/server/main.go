package main

import (
	"os"

	"hls-relay/internal/platform/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "hls-relay",
		Short:        "Token-gated HLS relay",
		Long:         `hls-relay rewrites upstream HLS playlists so every media reference goes through a short-lived, single-use token.`,
		SilenceUsage: true,
		RunE:         runServe,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				return config.Load(envFile)
			}
			// .env is optional
			_ = config.Load()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file instead of ./.env")

	root.AddCommand(newServeCmd(), newTokenCmd(), newChannelsCmd())
	return root
}
