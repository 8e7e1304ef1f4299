package git

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Worktree is an entry of git worktree list.
type Worktree struct {
	Path   string
	Head   string
	Branch string
}

// AddWorktree creates a worktree at path on a new branch starting at base.
func (r *Repo) AddWorktree(ctx context.Context, path, branch, base string) error {
	out, err := r.run(ctx, "worktree", "add", "-b", branch, path, base)
	if err != nil && strings.Contains(string(out), "already registered") {
		// Registered but the directory is gone; prune stale entries and retry
		if pruneErr := r.PruneWorktrees(ctx); pruneErr != nil {
			return pruneErr
		}
		_, err = r.run(ctx, "worktree", "add", "-b", branch, path, base)
	}
	return err
}

// RemoveWorktree removes the worktree at path.
func (r *Repo) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	_, err := r.run(ctx, append(args, path)...)
	return err
}

// PruneWorktrees removes registrations of worktrees whose directory no longer exists.
func (r *Repo) PruneWorktrees(ctx context.Context) error {
	_, err := r.run(ctx, "worktree", "prune")
	return err
}

// ListWorktrees returns all worktrees of the repository.
func (r *Repo) ListWorktrees(ctx context.Context) ([]Worktree, error) {
	out, err := r.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(string(out))
}

// DeleteBranch deletes a local branch.
// Without force, git refuses to delete a branch with unmerged commits.
func (r *Repo) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.run(ctx, "branch", flag, branch)
	return err
}

// parseWorktreeList parses the porcelain output of git worktree list.
// Format:
//
//	worktree /path/to/worktree
//	HEAD abc123
//	branch refs/heads/branch-name
//	<blank line>
func parseWorktreeList(output string) ([]Worktree, error) {
	var worktrees []Worktree
	var current Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "":
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = Worktree{}
		}
	}

	if current.Path != "" {
		worktrees = append(worktrees, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}
	return worktrees, nil
}
