package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cobot-run/cobot/internal/config"
	"github.com/cobot-run/cobot/internal/pairing"
	"github.com/cobot-run/cobot/internal/workspace"
)

func openPairingStore(configPath string) (*pairing.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := cfg.Pairing.StorePath
	if path == "" {
		root, err := workspace.Resolve("", cfg.Workspace.Root)
		if err != nil {
			return nil, err
		}
		path = root + "/pairing.yaml"
	}
	return pairing.Open(path)
}

// NewPairingCmd implements "pairing list|approve|reject|revoke" directly
// against the YAML store — approvals made this way take effect in the
// running agent on its next mtime check, without a restart.
func NewPairingCmd(deps *Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "pairing",
		Short: "Manage pending and authorized pairing requests",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending and authorized users",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPairingStore(*deps.ConfigPath)
			if err != nil {
				return err
			}
			fmt.Println("pending:")
			for _, p := range store.ListPending() {
				fmt.Printf("  %s  %s/%s (%s)\n", p.Code, p.ChannelType, p.SenderID, p.SenderName)
			}
			fmt.Println("authorized:")
			for _, a := range store.ListAuthorized() {
				owner := ""
				if a.IsOwner {
					owner = " [owner]"
				}
				fmt.Printf("  %s/%s (%s)%s\n", a.ChannelType, a.SenderID, a.SenderName, owner)
			}
			return nil
		},
	}

	approve := &cobra.Command{
		Use:   "approve CODE",
		Short: "Approve a pending pairing request by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPairingStore(*deps.ConfigPath)
			if err != nil {
				return err
			}
			user, err := store.Approve(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("approved %s/%s\n", user.ChannelType, user.SenderID)
			return nil
		},
	}

	reject := &cobra.Command{
		Use:   "reject CODE",
		Short: "Reject a pending pairing request by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPairingStore(*deps.ConfigPath)
			if err != nil {
				return err
			}
			return store.Reject(args[0])
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke CHANNEL USER",
		Short: "Revoke an authorized user's access",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPairingStore(*deps.ConfigPath)
			if err != nil {
				return err
			}
			return store.Revoke(args[0], args[1])
		},
	}

	root.AddCommand(list, approve, reject, revoke)
	return root
}
