package main

import (
	"fmt"
	"text/tabwriter"

	"hls-relay/internal/platform/config"
	"hls-relay/internal/relay"

	"github.com/spf13/cobra"
)

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Validate CHANNELS_FILE and list its channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := relay.LoadRegistry(config.FromEnv().ChannelsFile)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tPLAYLIST\tBASE\tMAX_RPS\tHEADERS")
			for _, key := range reg.Keys() {
				ch, _ := reg.Lookup(key)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", ch.Key, ch.PlaylistURL.Redacted(), ch.BaseURL.Redacted(), ch.MaxRPS, len(ch.Headers))
			}
			return tw.Flush()
		},
	}
}
