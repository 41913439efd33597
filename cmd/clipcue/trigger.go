package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/cli"
	"go.klb.dev/clipcue/internal/message"
)

func newTriggerCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Capture the clipboard now, as if the shortcut was pressed",
		Long: `Asks the running daemon to act on a press of its registered shortcut.
Useful for testing a surface without a keyboard, and the only way to capture
when the daemon runs with --headless.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return cli.BindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := request(cmd.Context(), v, &message.Message{Type: message.TypeTrigger})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Payload)
			return nil
		},
	}

	cli.AddTokenFlag(cmd)
	cli.AddConfigFlag(cmd)
	return cmd
}
