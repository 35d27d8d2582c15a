package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd reports whether the agent is running, and since when,
// by inspecting its PID file — it does not connect to the running
// process, since the hard core exposes no control socket.
func NewStatusCmd(deps *Deps) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the agent is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveWorkspaceRoot(*deps.ConfigPath)
			if err != nil {
				return err
			}
			pidPath := pidFilePath(root)

			pid, pidErr := readPID(pidPath)
			running := pidErr == nil && processAlive(pid)

			var uptime time.Duration
			if running {
				if fi, err := os.Stat(pidPath); err == nil {
					uptime = time.Since(fi.ModTime())
				}
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"running":     running,
					"pid":         pid,
					"uptime_secs": int(uptime.Seconds()),
				})
			}

			if running {
				fmt.Printf("running (pid %d, uptime %s)\n", pid, uptime.Round(time.Second))
			} else {
				fmt.Println("not running")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "report as JSON")
	return cmd
}
