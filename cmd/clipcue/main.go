// clipcue: global shortcut → clipboard capture → interface surface.
//
// This binary never links the OS hotkey library; "clipcue run" hands over
// to clipcued unless --headless is given.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipcue/internal/cli"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipcue",
		Short: "Send the clipboard to an interface surface with one global shortcut",
		Long: `clipcue runs in the background and listens for one global keyboard
shortcut (ctrl+shift+f by default). When it fires, clipcue reads the clipboard
text and delivers it to the interface surface attached under the "main"
label, then asks that surface to take focus.

Run "clipcue run" to start the daemon (it starts clipcued, which owns the
OS shortcut; "clipcue run --headless" stays in-process without one) and "clipcue watch" in a terminal to
attach a surface. Browser surfaces attach over WebSocket at
ws://127.0.0.1:8753/surface.

Config file search order (first found wins):
  /etc/clipcue/clipcue.toml
  $HOME/.config/clipcue/clipcue.toml
  path supplied via --config

All flags can be set via CLIPCUE_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		cli.NewRunCmd("run", Version, nil),
		newWatchCmd(),
		newTriggerCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipcue %s\n", Version)
		},
	}
}
