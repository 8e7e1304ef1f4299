package domain

import (
	"path/filepath"
	"time"
)

// Config file names.
const (
	ConfigFileName     = "config.toml" // Primary config file name
	YAMLConfigFileName = "config.yaml" // Accepted when no TOML file exists
	GlobalConfigDir    = "gastown"     // Directory under $XDG_CONFIG_HOME
)

// Default configuration values.
const (
	DefaultMaxConcurrentAgents = 4
	DefaultPollInterval        = 5 * time.Second
	DefaultRateLimitBackoff    = 30 * time.Second
	DefaultSubmitRetries       = 3
	DefaultMaxPollErrors       = 3
	DefaultCallTimeout         = 60 * time.Second
	DefaultMaxBackoff          = 5 * time.Minute
	DefaultRemoteCommand       = "jules"
	DefaultLogLevel            = "info"
)

// BackoffMode selects how the delay grows across throttled attempts.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffExponential BackoffMode = "exponential"
)

// RecoveryPolicy decides what happens to non-terminal beads when the mayor restarts.
type RecoveryPolicy string

const (
	// RecoveryReattach resumes polling running jobs by their remote handle and re-queues queued ones.
	RecoveryReattach RecoveryPolicy = "reattach"
	// RecoveryMarkFailed records every leftover job as failed with ErrOrphanedByRestart.
	RecoveryMarkFailed RecoveryPolicy = "mark_failed"
)

// IsValid returns true if the policy is a known value.
func (p RecoveryPolicy) IsValid() bool {
	return p == RecoveryReattach || p == RecoveryMarkFailed
}

// Config represents the workspace configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Warnings            []string
	Remote              RemoteConfig
	Log                 LogConfig
	Backoff             BackoffConfig
	Hooks               HooksConfig
	Recovery            RecoveryConfig
	PollInterval        time.Duration
	RateLimitBackoff    time.Duration
	CallTimeout         time.Duration
	MaxConcurrentAgents int
	SubmitRetries       int
	MaxPollErrors       int
}

// RemoteConfig holds [remote] settings.
type RemoteConfig struct {
	Command string
	Args    []string
}

// LogConfig holds [log] settings.
type LogConfig struct {
	Level string
}

// BackoffConfig holds [backoff] settings.
type BackoffConfig struct {
	Mode BackoffMode
	Max  time.Duration
}

// HooksConfig holds [hooks] settings.
type HooksConfig struct {
	Keep HookKeepPolicy
}

// RecoveryConfig holds [recovery] settings.
type RecoveryConfig struct {
	Policy RecoveryPolicy
}

// NewDefaultConfig returns a config with every default applied.
func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrentAgents: DefaultMaxConcurrentAgents,
		PollInterval:        DefaultPollInterval,
		RateLimitBackoff:    DefaultRateLimitBackoff,
		SubmitRetries:       DefaultSubmitRetries,
		MaxPollErrors:       DefaultMaxPollErrors,
		CallTimeout:         DefaultCallTimeout,
		Backoff:             BackoffConfig{Mode: BackoffFixed, Max: DefaultMaxBackoff},
		Hooks:               HooksConfig{Keep: KeepNever},
		Recovery:            RecoveryConfig{Policy: RecoveryReattach},
		Remote:              RemoteConfig{Command: DefaultRemoteCommand},
		Log:                 LogConfig{Level: DefaultLogLevel},
	}
}

// GlobalConfigPath returns the user-level config path under configHome.
func GlobalConfigPath(configHome string) string {
	return filepath.Join(configHome, GlobalConfigDir, ConfigFileName)
}
