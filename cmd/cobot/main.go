// Command cobot runs the self-sovereign agent runtime: a plugin kernel,
// a message orchestrator, and a pairing gate wired from a single YAML
// configuration file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cobot-run/cobot/cmd/cobot/commands"
)

// Set via -ldflags at release build time; unreleased builds keep the
// placeholder defaults below.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	var logLevel string
	var logFormat string

	root := &cobra.Command{
		Use:           "cobot",
		Short:         "Self-sovereign conversational agent runtime",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "cobot.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json, text")

	deps := &commands.Deps{
		ConfigPath: &configPath,
		Logger: func() *slog.Logger {
			return commands.NewLogger(logLevel, logFormat)
		},
	}

	root.AddCommand(commands.NewRunCmd(deps))
	root.AddCommand(commands.NewRestartCmd(deps))
	root.AddCommand(commands.NewStatusCmd(deps))
	root.AddCommand(commands.NewConfigCmd(deps))
	root.AddCommand(commands.NewPairingCmd(deps))

	return root
}
