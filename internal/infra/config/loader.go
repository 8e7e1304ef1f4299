// Package config provides configuration loading functionality.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/gastown/internal/domain"
	"gopkg.in/yaml.v3"
)

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files, falling back to YAML.
type Loader struct {
	stateDir      string // Path to the .gastown directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/gastown)
}

// NewLoader creates a new Loader.
func NewLoader(stateDir string) *Loader {
	return &Loader{
		stateDir:      stateDir,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config directory.
// This is useful for testing.
func NewLoaderWithGlobalDir(stateDir, globalConfDir string) *Loader {
	return &Loader{
		stateDir:      stateDir,
		globalConfDir: globalConfDir,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, domain.GlobalConfigDir)
}

// Load returns the merged configuration: default <- global <- workspace.
// Missing files are skipped; a file that cannot be parsed is an error.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.NewDefaultConfig()

	for _, dir := range []string{l.globalConfDir, l.stateDir} {
		if dir == "" {
			continue
		}
		raw, path, err := l.loadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, w := range apply(cfg, raw) {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: %s", path, w))
		}
	}

	return cfg, nil
}

// Paths returns the global and workspace config file paths that Load reads,
// whether or not they exist.
func (l *Loader) Paths() (global, workspace string) {
	if l.globalConfDir != "" {
		global = resolvePath(l.globalConfDir)
	}
	return global, resolvePath(l.stateDir)
}

// resolvePath returns config.toml, or config.yaml when only the YAML file exists.
func resolvePath(dir string) string {
	tomlPath := filepath.Join(dir, domain.ConfigFileName)
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	yamlPath := filepath.Join(dir, domain.YAMLConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return tomlPath
}

// loadDir reads the config file of a directory into a raw map.
func (l *Loader) loadDir(dir string) (map[string]any, string, error) {
	path := resolvePath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	var raw map[string]any
	if filepath.Ext(path) == ".yaml" {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = toml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, path, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Settings may be nested under a top-level [gastown] table
	if nested, ok := raw["gastown"].(map[string]any); ok {
		merged := make(map[string]any, len(raw)+len(nested))
		for k, v := range raw {
			if k != "gastown" {
				merged[k] = v
			}
		}
		for k, v := range nested {
			merged[k] = v
		}
		raw = merged
	}
	return raw, path, nil
}

// apply overlays raw settings onto cfg and returns warnings for unknown keys
// and invalid values. Invalid values leave the previous value in place.
func apply(cfg *domain.Config, raw map[string]any) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for key, value := range raw {
		switch key {
		case "max_concurrent_agents":
			if n, ok := toInt(value); ok && n >= 1 {
				cfg.MaxConcurrentAgents = n
			} else {
				warn("invalid max_concurrent_agents: %v (must be an integer >= 1)", value)
			}
		case "poll_interval":
			if d, ok := toSeconds(value); ok && d > 0 {
				cfg.PollInterval = d
			} else {
				warn("invalid poll_interval: %v (must be seconds > 0)", value)
			}
		case "rate_limit_backoff":
			if d, ok := toSeconds(value); ok && d > 0 {
				cfg.RateLimitBackoff = d
			} else {
				warn("invalid rate_limit_backoff: %v (must be seconds > 0)", value)
			}
		case "call_timeout":
			if d, ok := toSeconds(value); ok && d > 0 {
				cfg.CallTimeout = d
			} else {
				warn("invalid call_timeout: %v (must be seconds > 0)", value)
			}
		case "submit_retries":
			if n, ok := toInt(value); ok && n >= 0 {
				cfg.SubmitRetries = n
			} else {
				warn("invalid submit_retries: %v (must be an integer >= 0)", value)
			}
		case "max_poll_errors":
			if n, ok := toInt(value); ok && n >= 0 {
				cfg.MaxPollErrors = n
			} else {
				warn("invalid max_poll_errors: %v (must be an integer >= 0)", value)
			}
		case "backoff":
			forEachKey(value, "backoff", warn, func(k string, v any) bool {
				switch k {
				case "mode":
					mode := domain.BackoffMode(toString(v))
					if mode != domain.BackoffFixed && mode != domain.BackoffExponential {
						warn("invalid backoff.mode: %v", v)
						return true
					}
					cfg.Backoff.Mode = mode
				case "max":
					if d, ok := toSeconds(v); ok && d > 0 {
						cfg.Backoff.Max = d
					} else {
						warn("invalid backoff.max: %v", v)
					}
				default:
					return false
				}
				return true
			})
		case "hooks":
			forEachKey(value, "hooks", warn, func(k string, v any) bool {
				if k != "keep" {
					return false
				}
				keep := domain.HookKeepPolicy(toString(v))
				if !keep.IsValid() {
					warn("invalid hooks.keep: %v", v)
					return true
				}
				cfg.Hooks.Keep = keep
				return true
			})
		case "recovery":
			forEachKey(value, "recovery", warn, func(k string, v any) bool {
				if k != "policy" {
					return false
				}
				policy := domain.RecoveryPolicy(toString(v))
				if !policy.IsValid() {
					warn("invalid recovery.policy: %v", v)
					return true
				}
				cfg.Recovery.Policy = policy
				return true
			})
		case "remote":
			forEachKey(value, "remote", warn, func(k string, v any) bool {
				switch k {
				case "command":
					if s := toString(v); s != "" {
						cfg.Remote.Command = s
					} else {
						warn("invalid remote.command: %v", v)
					}
				case "args":
					if args, ok := toStrings(v); ok {
						cfg.Remote.Args = args
					} else {
						warn("invalid remote.args: %v (must be a list of strings)", v)
					}
				default:
					return false
				}
				return true
			})
		case "log":
			forEachKey(value, "log", warn, func(k string, v any) bool {
				if k != "level" {
					return false
				}
				if s := toString(v); s != "" {
					cfg.Log.Level = s
				}
				return true
			})
		default:
			warn("unknown key: %s", key)
		}
	}

	sort.Strings(warnings)
	return warnings
}

// forEachKey calls fn for every key of a table. fn returns false for unknown keys.
func forEachKey(value any, section string, warn func(string, ...any), fn func(k string, v any) bool) {
	m, ok := value.(map[string]any)
	if !ok {
		warn("[%s] must be a table", section)
		return
	}
	for k, v := range m {
		if !fn(k, v) {
			warn("unknown key in [%s]: %s", section, k)
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), n <= math.MaxInt32
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// toSeconds accepts a number of seconds or a Go duration string such as "1m30s".
func toSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case string:
		d, err := time.ParseDuration(n)
		return d, err == nil
	case float64:
		return time.Duration(n * float64(time.Second)), true
	}
	if i, ok := toInt(v); ok {
		return time.Duration(i) * time.Second, true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStrings(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
