package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewGitRepo creates a temporary git repository on branch main with one commit.
func NewGitRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	RunGit(t, dir, "init")
	RunGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	RunGit(t, dir, "config", "user.email", "test@example.com")
	RunGit(t, dir, "config", "user.name", "Test User")
	CommitFile(t, dir, "README.md", "# Test\n", "Initial commit")
	return dir
}

// RunGit executes a git command and fails the test if it errors.
// It returns trimmed stdout and stderr.
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
	return strings.TrimSpace(string(out))
}

// CommitFile writes a file in dir and commits it.
func CommitFile(t *testing.T, dir, name, content, msg string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	RunGit(t, dir, "add", name)
	RunGit(t, dir, "-c", "user.email=test@example.com", "-c", "user.name=Test User", "commit", "-m", msg)
	return RunGit(t, dir, "rev-parse", "HEAD")
}
