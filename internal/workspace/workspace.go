// Package workspace resolves the single directory every other plugin
// treats as its storage root and seeds its standard subdirectories.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cobot-run/cobot/internal/kernel"
)

const envVar = "COBOT_WORKSPACE"

// Resolve picks the workspace root by priority: an explicit CLI flag value,
// then the COBOT_WORKSPACE environment variable, then configYAML (the
// config file's workspace: key), then ~/.cobot/workspace.
func Resolve(cliFlag, configYAML string) (string, error) {
	if cliFlag != "" {
		return cliFlag, nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if configYAML != "" {
		return configYAML, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cobot", "workspace"), nil
}

var subdirs = []string{"memory", "skills", "plugins", "logs"}

// Plugin resolves the workspace root once at construction and exposes it
// to other plugins through the "workspace" capability; its Start creates
// the standard subdirectory layout.
type Plugin struct {
	root string
}

// New returns a workspace plugin. cliFlag and configYAML feed Resolve.
func New(cliFlag, configYAML string) *Plugin {
	return &Plugin{root: resolveOrDefault(cliFlag, configYAML)}
}

// resolveOrDefault falls back to a relative directory when the home
// directory can't be determined, rather than failing plugin construction.
func resolveOrDefault(cliFlag, configYAML string) string {
	root, err := Resolve(cliFlag, configYAML)
	if err != nil {
		return ".cobot-workspace"
	}
	return root
}

func (p *Plugin) Meta() kernel.Meta {
	return kernel.Meta{
		ID:         "workspace",
		Version:    "1.0.0",
		Priority:   -1000, // must be ready before anything that resolves paths against it
		Implements: []string{"workspace"},
	}
}

func (p *Plugin) Configure(ctx context.Context, cfg map[string]any) error { return nil }

func (p *Plugin) Start(ctx context.Context) error {
	for _, d := range subdirs {
		if err := os.MkdirAll(filepath.Join(p.root, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return nil }

// Root returns the resolved workspace directory.
func (p *Plugin) Root() string { return p.root }

// Path joins parts onto the workspace root.
func (p *Plugin) Path(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}
