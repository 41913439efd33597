// Package cli holds the flag, config and logging plumbing shared by the
// clipcue and clipcued commands, and the run command both of them expose.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipcue/internal/logging"
)

// envKeyReplacer maps flag names to env var suffixes: ws-addr → WS_ADDR.
var envKeyReplacer = strings.NewReplacer("-", "_")

// BindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPCUE_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPCUE_* env vars → flags
func BindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipcue")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipcue/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "clipcue"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPCUE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// AddLoggingFlags adds the standard logging flags to a command.
func AddLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// AddConfigFlag adds the --config flag to a command.
func AddConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// AddTokenFlag adds --token; the daemon and its clients must agree on it.
func AddTokenFlag(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "shared secret for surfaces and commands (empty = no auth, no encryption)")
}

// SetupLogging reads logging flags from viper and configures slog.
func SetupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
