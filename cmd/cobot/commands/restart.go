package commands

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cobot-run/cobot/internal/config"
	"github.com/cobot-run/cobot/internal/workspace"
)

// NewRestartCmd signals the running agent process (found via its PID
// file) with SIGUSR1, which run's signal handler treats as a re-exec
// request.
func NewRestartCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Signal the running agent to restart",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveWorkspaceRoot(*deps.ConfigPath)
			if err != nil {
				return err
			}
			pidPath := pidFilePath(root)
			pid, err := readPID(pidPath)
			if err != nil {
				return fmt.Errorf("restart: %w (is the agent running?)", err)
			}
			if !processAlive(pid) {
				return fmt.Errorf("restart: pid %d in %s is not running", pid, pidPath)
			}
			if err := syscall.Kill(pid, syscall.SIGUSR1); err != nil {
				return fmt.Errorf("restart: signal pid %d: %w", pid, err)
			}
			fmt.Printf("sent SIGUSR1 to pid %d\n", pid)
			return nil
		},
	}
}

func resolveWorkspaceRoot(configPath string) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return workspace.Resolve("", cfg.Workspace.Root)
}
