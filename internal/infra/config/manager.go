package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/runoshun/gastown/internal/domain"
)

// Manager manages configuration files.
type Manager struct {
	loader *Loader
}

// NewManager creates a new Manager over the files a Loader reads.
func NewManager(loader *Loader) *Manager {
	return &Manager{loader: loader}
}

// Ensure Manager implements domain.ConfigManager interface.
var _ domain.ConfigManager = (*Manager)(nil)

// WorkspaceConfigInfo returns information about the workspace config file.
func (m *Manager) WorkspaceConfigInfo() domain.ConfigInfo {
	_, path := m.loader.Paths()
	return fileInfo(path)
}

// GlobalConfigInfo returns information about the global config file.
func (m *Manager) GlobalConfigInfo() domain.ConfigInfo {
	path, _ := m.loader.Paths()
	if path == "" {
		return domain.ConfigInfo{}
	}
	return fileInfo(path)
}

func fileInfo(path string) domain.ConfigInfo {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.ConfigInfo{Path: path}
	}
	return domain.ConfigInfo{Path: path, Content: string(content), Exists: true}
}

// InitWorkspaceConfig writes the default config template into the state directory.
func (m *Manager) InitWorkspaceConfig() error {
	path := domain.ConfigPath(m.loader.stateDir)
	if _, err := os.Stat(path); err == nil {
		return domain.ErrConfigExists
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(RenderTemplate(domain.NewDefaultConfig())), 0o600)
}

// RenderTemplate renders a commented config file holding the values of cfg.
func RenderTemplate(cfg *domain.Config) string {
	var b strings.Builder
	b.WriteString("# gastown workspace configuration\n")
	b.WriteString("# Durations are in seconds. Unknown keys are ignored.\n\n")
	fmt.Fprintf(&b, "max_concurrent_agents = %d\n", cfg.MaxConcurrentAgents)
	fmt.Fprintf(&b, "poll_interval = %d\n", int(cfg.PollInterval.Seconds()))
	fmt.Fprintf(&b, "rate_limit_backoff = %d\n", int(cfg.RateLimitBackoff.Seconds()))
	fmt.Fprintf(&b, "submit_retries = %d\n", cfg.SubmitRetries)
	fmt.Fprintf(&b, "max_poll_errors = %d\n", cfg.MaxPollErrors)
	fmt.Fprintf(&b, "call_timeout = %d\n", int(cfg.CallTimeout.Seconds()))

	b.WriteString("\n[backoff]\n")
	b.WriteString("# \"fixed\" waits rate_limit_backoff every time; \"exponential\" doubles up to max\n")
	fmt.Fprintf(&b, "mode = %q\n", cfg.Backoff.Mode)
	fmt.Fprintf(&b, "max = %d\n", int(cfg.Backoff.Max.Seconds()))

	b.WriteString("\n[hooks]\n")
	b.WriteString("# Keep worktrees after a job ends: \"never\", \"failed\" or \"always\"\n")
	fmt.Fprintf(&b, "keep = %q\n", cfg.Hooks.Keep)

	b.WriteString("\n[recovery]\n")
	b.WriteString("# On mayor restart: \"reattach\" resumes polling, \"mark_failed\" fails leftover jobs\n")
	fmt.Fprintf(&b, "policy = %q\n", cfg.Recovery.Policy)

	b.WriteString("\n[remote]\n")
	fmt.Fprintf(&b, "command = %q\n", cfg.Remote.Command)
	quoted := make([]string, 0, len(cfg.Remote.Args))
	for _, a := range cfg.Remote.Args {
		quoted = append(quoted, fmt.Sprintf("%q", a))
	}
	fmt.Fprintf(&b, "args = [%s]\n", strings.Join(quoted, ", "))

	b.WriteString("\n[log]\n")
	fmt.Fprintf(&b, "level = %q\n", cfg.Log.Level)
	return b.String()
}
