package domain

import (
	"regexp"
	"time"
)

// Rig is a registered project repository that jobs can target.
// Fields are ordered to minimize memory padding.
type Rig struct {
	CreatedAt     time.Time `toml:"created_at"`
	Name          string    `toml:"name"`
	Path          string    `toml:"path"`                 // Local repository path
	RemoteURL     string    `toml:"remote_url,omitempty"` // URL of origin, if any
	DefaultBranch string    `toml:"default_branch"`
	Managed       bool      `toml:"managed,omitempty"` // Cloned into the workspace by the registry
}

var rigNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidRigName reports whether name can be used as a rig name.
// Rig names become path segments under the workspace.
func ValidRigName(name string) bool {
	return rigNamePattern.MatchString(name)
}
