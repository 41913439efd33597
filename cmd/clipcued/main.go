// clipcued is the clipcue daemon with the OS shortcut backend linked in.
// "clipcue run" starts it; it takes the same flags.
package main

import (
	"os"

	"go.klb.dev/clipcue/internal/cli"
	"go.klb.dev/clipcue/internal/hotkey/osbinder"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	code := 0
	// macOS only delivers hotkey events on the main thread.
	osbinder.RunOnMainThread(func() {
		if err := cli.NewRunCmd("clipcued", Version, osbinder.New).Execute(); err != nil {
			code = 1
		}
	})
	os.Exit(code)
}
