package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoader_Load_Defaults(t *testing.T) {
	loader := NewLoaderWithGlobalDir(t.TempDir(), t.TempDir())
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, domain.NewDefaultConfig(), cfg)
}

func TestLoader_Load_WorkspaceConfig(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, `
max_concurrent_agents = 2
poll_interval = 1
rate_limit_backoff = 10
submit_retries = 5
max_poll_errors = 7
call_timeout = 90

[backoff]
mode = "exponential"
max = 120

[hooks]
keep = "failed"

[recovery]
policy = "mark_failed"

[remote]
command = "/usr/local/bin/jules"
args = ["--profile", "ci"]

[log]
level = "debug"
`)

	cfg, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxConcurrentAgents)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.RateLimitBackoff)
	assert.Equal(t, 5, cfg.SubmitRetries)
	assert.Equal(t, 7, cfg.MaxPollErrors)
	assert.Equal(t, 90*time.Second, cfg.CallTimeout)
	assert.Equal(t, domain.BackoffExponential, cfg.Backoff.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Backoff.Max)
	assert.Equal(t, domain.KeepFailed, cfg.Hooks.Keep)
	assert.Equal(t, domain.RecoveryMarkFailed, cfg.Recovery.Policy)
	assert.Equal(t, "/usr/local/bin/jules", cfg.Remote.Command)
	assert.Equal(t, []string{"--profile", "ci"}, cfg.Remote.Args)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Warnings)
}

func TestLoader_Load_WorkspaceOverridesGlobal(t *testing.T) {
	stateDir := t.TempDir()
	globalDir := t.TempDir()
	writeFile(t, globalDir, domain.ConfigFileName, "max_concurrent_agents = 8\npoll_interval = 2\n")
	writeFile(t, stateDir, domain.ConfigFileName, "max_concurrent_agents = 3\n")

	cfg, err := NewLoaderWithGlobalDir(stateDir, globalDir).Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrentAgents)
	assert.Equal(t, 2*time.Second, cfg.PollInterval, "global value survives when the workspace does not set it")
	assert.Equal(t, domain.DefaultRateLimitBackoff, cfg.RateLimitBackoff)
}

func TestLoader_Load_UnknownKeysWarn(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, `
default_agent = "jules"
max_concurrent_agents = 0

[tmux]
session_name = "gastown"

[hooks]
keep = "sometimes"
extra = 1
`)

	cfg, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMaxConcurrentAgents, cfg.MaxConcurrentAgents)
	assert.Equal(t, domain.KeepNever, cfg.Hooks.Keep)

	require.Len(t, cfg.Warnings, 5)
	joined := ""
	for _, w := range cfg.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "unknown key: default_agent")
	assert.Contains(t, joined, "unknown key: tmux")
	assert.Contains(t, joined, "unknown key in [hooks]: extra")
	assert.Contains(t, joined, "invalid hooks.keep")
	assert.Contains(t, joined, "invalid max_concurrent_agents")
}

func TestLoader_Load_GastownTable(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, "[gastown]\nmax_concurrent_agents = 6\n[gastown.hooks]\nkeep = \"always\"\n")

	cfg, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxConcurrentAgents)
	assert.Equal(t, domain.KeepAlways, cfg.Hooks.Keep)
	assert.Empty(t, cfg.Warnings)
}

func TestLoader_Load_YAMLFallback(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.YAMLConfigFileName, "poll_interval: 7\nrate_limit_backoff: 1.5\nremote:\n  command: agent\n")

	loader := NewLoaderWithGlobalDir(stateDir, t.TempDir())
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimitBackoff)
	assert.Equal(t, "agent", cfg.Remote.Command)

	_, workspace := loader.Paths()
	assert.Equal(t, filepath.Join(stateDir, domain.YAMLConfigFileName), workspace)
}

func TestLoader_Load_TOMLPreferredOverYAML(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, "poll_interval = 3\n")
	writeFile(t, stateDir, domain.YAMLConfigFileName, "poll_interval: 9\n")

	cfg, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
}

func TestLoader_Load_DurationStrings(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, "poll_interval = \"500ms\"\ncall_timeout = \"2m\"\n")

	cfg, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.CallTimeout)
}

func TestLoader_Load_ParseError(t *testing.T) {
	stateDir := t.TempDir()
	writeFile(t, stateDir, domain.ConfigFileName, "max_concurrent_agents = [\n")

	_, err := NewLoaderWithGlobalDir(stateDir, t.TempDir()).Load()
	assert.Error(t, err)
}

func TestManager_InitWorkspaceConfig(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), domain.StateDirName)
	loader := NewLoaderWithGlobalDir(stateDir, t.TempDir())
	m := NewManager(loader)

	assert.False(t, m.WorkspaceConfigInfo().Exists)
	require.NoError(t, m.InitWorkspaceConfig())
	assert.ErrorIs(t, m.InitWorkspaceConfig(), domain.ErrConfigExists)

	info := m.WorkspaceConfigInfo()
	assert.True(t, info.Exists)
	assert.Contains(t, info.Content, "max_concurrent_agents = 4")

	// The template loads back to the defaults without warnings
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, domain.NewDefaultConfig().MaxConcurrentAgents, cfg.MaxConcurrentAgents)
	assert.Equal(t, domain.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, domain.BackoffFixed, cfg.Backoff.Mode)

	assert.False(t, m.GlobalConfigInfo().Exists)
}
