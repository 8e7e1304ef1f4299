package domain

// Hook is an isolated git worktree and branch dedicated to one job.
// Fields are ordered to minimize memory padding.
type Hook struct {
	Path       string `json:"path"`      // Worktree path (identity)
	JobID      string `json:"job_id"`    // Owning job
	Rig        string `json:"rig"`       // Rig name
	RepoPath   string `json:"repo_path"` // Repository the worktree belongs to
	Branch     string `json:"branch"`
	BaseCommit string `json:"base_commit"`
	Released   bool   `json:"-"`
}

// HookInfo describes a hook directory found on disk.
type HookInfo struct {
	Path    string
	Rig     string
	JobID   string
	Branch  string // Empty if the worktree is not registered with git
	Missing bool   // Registered with git but the directory is gone
}

// HookDiff reports what a job produced in its hook.
// Fields are ordered to minimize memory padding.
type HookDiff struct {
	HeadCommit   string
	Summary      string
	FilesChanged []string
	Changed      bool // Head moved past the base commit
}

// HookKeepPolicy controls whether hooks are kept after a job terminates.
type HookKeepPolicy string

const (
	KeepNever  HookKeepPolicy = "never"
	KeepFailed HookKeepPolicy = "failed"
	KeepAlways HookKeepPolicy = "always"
)

// Keep reports whether a hook of a job ending in state should be kept.
func (p HookKeepPolicy) Keep(state JobState) bool {
	switch p {
	case KeepAlways:
		return true
	case KeepFailed:
		return state == JobFailed
	default:
		return false
	}
}

// IsValid returns true if the policy is a known value.
func (p HookKeepPolicy) IsValid() bool {
	return p == KeepNever || p == KeepFailed || p == KeepAlways
}

// Orphans returns the hooks whose job is not in live.
func Orphans(infos []HookInfo, live map[string]bool) []HookInfo {
	var orphans []HookInfo
	for _, info := range infos {
		if !live[info.JobID] {
			orphans = append(orphans, info)
		}
	}
	return orphans
}
