package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/clip"
	"go.klb.dev/clipcue/internal/daemon"
	"go.klb.dev/clipcue/internal/hotkey"
	"go.klb.dev/clipcue/internal/message"
	"go.klb.dev/clipcue/internal/shortcut"
)

// DaemonBinary is the executable that links the OS hotkey binder.
const DaemonBinary = "clipcued"

// ErrNoDisplay is wrapped in a *hotkey.RegistrationError when a global
// shortcut is requested on a Linux host without an X11 display.
var ErrNoDisplay = errors.New("no X11 display (DISPLAY is unset); use --headless")

// runFlags are forwarded to clipcued when set on the command line.
var runFlags = []string{
	"shortcut", "surface", "ws-addr", "ws-tls", "token",
	"no-background", "log-format", "log-level", "config",
}

// NewRunCmd returns the run command. system builds the OS binder; when it
// is nil and --headless is not set, the command hands over to clipcued.
func NewRunCmd(use, version string, system func() hotkey.Binder) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   use,
		Short: "Run the clipcue daemon",
		Long: `Registers the global shortcut and waits for it. Each press reads the
clipboard and delivers the trimmed text to the surface attached under
--surface, followed by a focus request.

Surfaces attach over the IPC socket ($CLIPCUE_SOCKET, or clipcue.sock in
$XDG_RUNTIME_DIR or the temp dir) and over WebSocket at --ws-addr.

If the shortcut cannot be registered (another application owns it, the OS
denied permission, or there is no display) the daemon exits with an error.
With --headless nothing is registered and captures run only via
"clipcue trigger".

Precedence (lowest → highest): defaults → config file → CLIPCUE_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return BindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cmd, v, version, system)
		},
	}

	f := cmd.Flags()
	f.String("shortcut", shortcut.Default, "global shortcut, e.g. ctrl+shift+f or cmd+alt+space")
	f.String("surface", message.DefaultLabel, "label of the surface captures are delivered to")
	f.String("ws-addr", "127.0.0.1:8753", "WebSocket listen address for browser surfaces (empty = disabled)")
	f.Bool("ws-tls", false, "serve wss with a certificate key derived from --token")
	f.Bool("headless", false, "do not register with the OS; captures run only via `clipcue trigger`")
	AddTokenFlag(cmd)
	AddLoggingFlags(cmd)
	AddConfigFlag(cmd)

	return cmd
}

func runDaemon(ctx context.Context, cmd *cobra.Command, v *viper.Viper, version string, system func() hotkey.Binder) error {
	SetupLogging(v)

	sc, err := shortcut.Parse(v.GetString("shortcut"))
	if err != nil {
		return fmt.Errorf("--shortcut: %w", err)
	}
	headless := v.GetBool("headless")

	var binder hotkey.Binder
	switch {
	case headless:
		binder = hotkey.NewManualBinder()
	case system != nil:
		binder = system()
	default:
		return delegate(ctx, cmd, sc)
	}

	return daemon.Run(ctx, daemon.Config{
		Shortcut: sc,
		Label:    v.GetString("surface"),
		Token:    v.GetString("token"),
		WSAddr:   v.GetString("ws-addr"),
		WSTLS:    v.GetBool("ws-tls"),
		Headless: headless,
		Version:  version,
	}, binder, clip.New())
}

// delegate runs clipcued with the flags given on this command line and
// waits for it. Config files and CLIPCUE_* variables reach it directly.
func delegate(ctx context.Context, cmd *cobra.Command, sc shortcut.Shortcut) error {
	if err := checkDisplay(runtime.GOOS, os.Getenv); err != nil {
		return &hotkey.RegistrationError{Shortcut: sc, Err: err}
	}
	path, err := findDaemon()
	if err != nil {
		return err
	}

	c := exec.CommandContext(ctx, path, forwardedArgs(cmd)...)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	c.Cancel = func() error { return c.Process.Signal(os.Interrupt) }
	c.WaitDelay = 5 * time.Second

	slog.Debug("handing over to OS hotkey daemon", "path", path, "args", c.Args[1:])
	err = c.Run()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", DaemonBinary, err)
	}
	return nil
}

// checkDisplay reports ErrNoDisplay where the OS hotkey backend needs X11
// and none is reachable.
func checkDisplay(goos string, getenv func(string) string) error {
	if goos == "linux" && getenv("DISPLAY") == "" {
		return ErrNoDisplay
	}
	return nil
}

// findDaemon prefers a clipcued installed next to the running executable
// and falls back to PATH.
func findDaemon() (string, error) {
	name := DaemonBinary
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found next to this binary or on PATH (or use --headless): %w", DaemonBinary, err)
	}
	return p, nil
}

func forwardedArgs(cmd *cobra.Command) []string {
	var args []string
	for _, name := range runFlags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			args = append(args, "--"+name+"="+f.Value.String())
		}
	}
	return args
}
