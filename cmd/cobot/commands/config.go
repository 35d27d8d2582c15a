package commands

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/cobot-run/cobot/internal/config"
)

var secretKeyFragments = []string{"api_key", "secret", "password", "token", "private_key"}

func looksSecret(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// maskSecrets returns a deep copy of raw with values under secret-like
// keys replaced by "***".
func maskSecrets(raw any) any {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if looksSecret(k) {
				out[k] = "***"
			} else {
				out[k] = maskSecrets(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = maskSecrets(val)
		}
		return out
	default:
		return v
	}
}

// dotGet walks raw by a "a.b.c" path.
func dotGet(raw map[string]any, path string) (any, bool) {
	var cur any = raw
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// dotSet walks/creates nested maps by a "a.b.c" path and sets the leaf.
func dotSet(raw map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := raw
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// NewConfigCmd implements "config show|get|set|validate|edit" over the
// dot-path-addressable YAML-equivalent configuration file.
func NewConfigCmd(deps *Deps) *cobra.Command {
	var reveal bool

	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (secrets masked unless --reveal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.LoadRaw(*deps.ConfigPath)
			if err != nil {
				return err
			}
			var out any = raw
			if !reveal {
				out = maskSecrets(raw)
			}
			enc, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Print(string(enc))
			return nil
		},
	}
	show.Flags().BoolVar(&reveal, "reveal", false, "show secret-like values unmasked")

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value at a dot-path key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.LoadRaw(*deps.ConfigPath)
			if err != nil {
				return err
			}
			val, ok := dotGet(raw, args[0])
			if !ok {
				return fmt.Errorf("config: key %q not found", args[0])
			}
			if looksSecret(args[0]) && !reveal {
				val = "***"
			}
			enc, err := yaml.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Print(string(enc))
			return nil
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "show secret-like values unmasked")

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a dot-path key and write the config file back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.LoadRaw(*deps.ConfigPath)
			if err != nil {
				return err
			}
			dotSet(raw, args[0], args[1])
			enc, err := yaml.Marshal(raw)
			if err != nil {
				return err
			}
			return os.WriteFile(*deps.ConfigPath, enc, 0o644)
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Strict-decode the config file and report any errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(*deps.ConfigPath); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	edit := &cobra.Command{
		Use:   "edit",
		Short: "Open the config file in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			c := exec.Command(editor, *deps.ConfigPath)
			c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
			return c.Run()
		},
	}

	root.AddCommand(show, get, set, validate, edit)
	return root
}
