package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Fix bug", "fix-bug"},
		{"punctuation", "Add OAuth2.0 login!", "add-oauth2-0-login"},
		{"leading and trailing", "  --hello--  ", "hello"},
		{"empty", "", "task"},
		{"only symbols", "!!!", "task"},
		{"truncated", strings.Repeat("abcd ", 20), "abcd-abcd-abcd-abcd-abcd-abcd-ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(got) > maxSlugLen {
				t.Errorf("Slugify(%q) length %d exceeds %d", tt.in, len(got), maxSlugLen)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("Fix bug", "job-1a2b3c4d"); got != "polecat/fix-bug-1a2b3c4d" {
		t.Errorf("BranchName() = %q", got)
	}
	if BranchName("same", "job-00000001") == BranchName("same", "job-00000002") {
		t.Error("branch names of different jobs must differ")
	}
}

func TestNewIDs(t *testing.T) {
	jobPattern := regexp.MustCompile(`^job-[0-9a-f]{8}$`)
	convoyPattern := regexp.MustCompile(`^convoy-[0-9a-f]{8}$`)

	if id := NewJobID(); !jobPattern.MatchString(id) {
		t.Errorf("NewJobID() = %q", id)
	}
	if id := NewConvoyID(); !convoyPattern.MatchString(id) {
		t.Errorf("NewConvoyID() = %q", id)
	}
}

func TestPaths(t *testing.T) {
	root := "/ws"
	state := StateDir(root)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state dir", state, "/ws/.gastown"},
		{"beads", BeadsPath(state), "/ws/.gastown/beads/beads.json"},
		{"rigs", RigsPath(state), "/ws/.gastown/rigs.toml"},
		{"config", ConfigPath(state), "/ws/.gastown/config.toml"},
		{"hook", HookPath(root, "demo", "job-1"), "/ws/hooks/demo/job-1"},
		{"clone", RigClonePath(root, "demo"), "/ws/rigs/demo"},
		{"job log", JobLogPath(state, "job-1"), "/ws/.gastown/logs/job-1.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidRigName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"demo", true},
		{"my-rig_2.0", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"-flag", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRigName(tt.name); got != tt.want {
				t.Errorf("ValidRigName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
