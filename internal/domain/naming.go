package domain

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// StateDirName is the hidden state directory at the workspace root.
const StateDirName = ".gastown"

// BranchPrefix prefixes every job branch.
const BranchPrefix = "polecat/"

// maxSlugLen bounds the task-derived part of a branch name.
const maxSlugLen = 32

// StateDir returns the path to the state directory of a workspace.
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// ConfigPath returns the path to the workspace config file.
func ConfigPath(stateDir string) string {
	return filepath.Join(stateDir, ConfigFileName)
}

// RigsPath returns the path to the rig registry document.
func RigsPath(stateDir string) string {
	return filepath.Join(stateDir, "rigs.toml")
}

// BeadsPath returns the path to the bead store document.
func BeadsPath(stateDir string) string {
	return filepath.Join(stateDir, "beads", "beads.json")
}

// ConvoysPath returns the path to the convoy store document.
func ConvoysPath(stateDir string) string {
	return filepath.Join(stateDir, "convoys.yaml")
}

// EventsDBPath returns the path to the event journal database.
func EventsDBPath(stateDir string) string {
	return filepath.Join(stateDir, "events.db")
}

// InboxDir returns the directory operator commands are written to.
func InboxDir(stateDir string) string {
	return filepath.Join(stateDir, "inbox")
}

// GlobalLogPath returns the path to the global log file.
func GlobalLogPath(stateDir string) string {
	return filepath.Join(stateDir, "logs", "gastown.log")
}

// JobLogPath returns the path to the log file of a job.
func JobLogPath(stateDir, jobID string) string {
	return filepath.Join(stateDir, "logs", jobID+".log")
}

// RigClonePath returns where the registry clones a rig given by URL.
func RigClonePath(root, rig string) string {
	return filepath.Join(root, "rigs", rig)
}

// HooksDir returns the root of all hook worktrees.
func HooksDir(root string) string {
	return filepath.Join(root, "hooks")
}

// HookPath returns the worktree path of a job's hook.
// Paths are namespaced by rig and job id.
func HookPath(root, rig, jobID string) string {
	return filepath.Join(HooksDir(root), rig, jobID)
}

// NewJobID generates a job id of the form job-<8 hex>.
func NewJobID() string {
	return "job-" + shortUUID()
}

// NewConvoyID generates a convoy id of the form convoy-<8 hex>.
func NewConvoyID() string {
	return "convoy-" + shortUUID()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts text into a lowercase dash-separated branch segment.
func Slugify(text string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(text), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "task"
	}
	return s
}

// BranchName returns the branch for a job.
// Format: polecat/<slug>-<id suffix>, unique because the id is.
func BranchName(task, jobID string) string {
	return BranchPrefix + Slugify(task) + "-" + strings.TrimPrefix(jobID, "job-")
}
