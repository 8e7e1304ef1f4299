// Package hooks provides the git worktree implementation of domain.HookManager.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/infra/git"
)

// Manager creates and tears down hooks under <workspace>/hooks/<rig>/<job id>.
type Manager struct {
	rigs domain.RigRegistry // Repositories whose worktrees List reconciles; may be nil
	root string             // Workspace root
}

// NewManager creates a new hook manager for the workspace at root.
func NewManager(root string, rigs domain.RigRegistry) *Manager {
	return &Manager{root: root, rigs: rigs}
}

// Ensure Manager implements domain.HookManager interface.
var _ domain.HookManager = (*Manager)(nil)

// Acquire creates a worktree for a job on a new branch from baseRef.
func (m *Manager) Acquire(ctx context.Context, rig *domain.Rig, jobID, branch, baseRef string) (*domain.Hook, error) {
	path := domain.HookPath(m.root, rig.Name, jobID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: path %s", domain.ErrHookConflict, path)
	}

	repo, err := git.Open(rig.Path)
	if err != nil {
		return nil, domain.NewGitError("open "+rig.Path, err, nil)
	}

	exists, err := repo.BranchExists(branch)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: branch %s", domain.ErrHookConflict, branch)
	}

	if baseRef == "" {
		baseRef = rig.DefaultBranch
	}
	base, err := repo.ResolveCommit(baseRef)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, domain.NewGitError("worktree add", err, nil)
	}
	if err := repo.AddWorktree(ctx, path, branch, base); err != nil {
		return nil, err
	}

	return &domain.Hook{
		Path:       path,
		JobID:      jobID,
		Rig:        rig.Name,
		RepoPath:   rig.Path,
		Branch:     branch,
		BaseCommit: base,
	}, nil
}

// Release removes the worktree and, when it carries no unmerged commits, the branch.
// With keep set both are left for inspection. Calling Release again is a no-op.
func (m *Manager) Release(ctx context.Context, hook *domain.Hook, keep bool) error {
	if hook == nil || hook.Released {
		return nil
	}
	if keep {
		hook.Released = true
		return nil
	}

	repo, err := git.Open(hook.RepoPath)
	if err != nil {
		// The rig repository is gone; only the directory is left to clean up
		if rmErr := os.RemoveAll(hook.Path); rmErr != nil {
			return fmt.Errorf("remove hook directory: %w", rmErr)
		}
		hook.Released = true
		return nil
	}

	if err := m.removeWorktree(ctx, repo, hook.Path); err != nil {
		return err
	}
	if err := deleteBranch(ctx, repo, hook.Branch, hook.BaseCommit); err != nil {
		return err
	}

	hook.Released = true
	return nil
}

// removeWorktree removes the worktree directory and its git registration.
func (m *Manager) removeWorktree(ctx context.Context, repo *git.Repo, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return repo.PruneWorktrees(ctx)
	}
	if err := repo.RemoveWorktree(ctx, path, true); err == nil {
		return nil
	}
	// Not a registered worktree (or git refused); remove the directory and prune
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove hook directory: %w", err)
	}
	return repo.PruneWorktrees(ctx)
}

// deleteBranch deletes the hook branch when it has no commits beyond base
// or is merged into the repository's default branch. A branch with
// unmerged work is kept.
func deleteBranch(ctx context.Context, repo *git.Repo, branch, base string) error {
	head, ok, err := repo.BranchHead(branch)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if head != base {
		target, err := repo.ResolveCommit(repo.DefaultBranch())
		if err != nil {
			return err
		}
		merged, err := repo.IsAncestor(head, target)
		if err != nil {
			return err
		}
		if !merged {
			return nil
		}
	}
	return repo.DeleteBranch(ctx, branch, true)
}

// Inspect reports the changes on the hook branch since the base commit.
func (m *Manager) Inspect(ctx context.Context, hook *domain.Hook) (*domain.HookDiff, error) {
	repo, err := git.Open(hook.RepoPath)
	if err != nil {
		return nil, domain.NewGitError("open "+hook.RepoPath, err, nil)
	}
	head, ok, err := repo.BranchHead(hook.Branch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &domain.HookDiff{}, nil
	}
	return repo.Diff(ctx, hook.BaseCommit, head)
}

// List returns every hook in the workspace, sorted by path. Branches come
// from git's worktree registrations; a registration whose directory is
// gone is reported as Missing.
func (m *Manager) List(ctx context.Context) ([]domain.HookInfo, error) {
	registered, err := m.registeredWorktrees(ctx)
	if err != nil {
		return nil, err
	}

	dir := domain.HooksDir(m.root)
	rigs, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read hooks directory: %w", err)
	}

	var hooks []domain.HookInfo
	for _, rig := range rigs {
		if !rig.IsDir() {
			continue
		}
		jobs, err := os.ReadDir(filepath.Join(dir, rig.Name()))
		if err != nil {
			return nil, fmt.Errorf("read hooks of rig %s: %w", rig.Name(), err)
		}
		for _, job := range jobs {
			if !job.IsDir() {
				continue
			}
			info := domain.HookInfo{
				Path:  filepath.Join(dir, rig.Name(), job.Name()),
				Rig:   rig.Name(),
				JobID: job.Name(),
			}
			key := rig.Name() + "/" + job.Name()
			if wt, ok := registered[key]; ok {
				info.Branch = wt.Branch
				delete(registered, key)
			}
			hooks = append(hooks, info)
		}
	}

	for key, wt := range registered {
		rig, job, _ := strings.Cut(key, "/")
		hooks = append(hooks, domain.HookInfo{
			Path:    domain.HookPath(m.root, rig, job),
			Rig:     rig,
			JobID:   job,
			Branch:  wt.Branch,
			Missing: true,
		})
	}

	sort.Slice(hooks, func(i, j int) bool { return hooks[i].Path < hooks[j].Path })
	return hooks, nil
}

// registeredWorktrees returns the worktrees registered in rig repositories
// that live under the hooks directory, keyed by "<rig>/<job id>".
func (m *Manager) registeredWorktrees(ctx context.Context) (map[string]git.Worktree, error) {
	out := make(map[string]git.Worktree)
	if m.rigs == nil {
		return out, nil
	}
	dirs := []string{domain.HooksDir(m.root)}
	if resolved, err := filepath.EvalSymlinks(dirs[0]); err == nil && resolved != dirs[0] {
		dirs = append(dirs, resolved)
	}

	for rig, err := range m.rigs.List() {
		if err != nil {
			return nil, err
		}
		repo, err := git.Open(rig.Path)
		if err != nil {
			continue // Repository gone; its hook directories are still listed
		}
		worktrees, err := repo.ListWorktrees(ctx)
		if err != nil {
			return nil, err
		}
		for _, wt := range worktrees {
			if key, ok := hookKey(dirs, wt.Path); ok {
				out[key] = wt
			}
		}
	}
	return out, nil
}

// hookKey maps a worktree path to "<rig>/<job id>" when it is a hook path.
func hookKey(dirs []string, path string) (string, bool) {
	for _, dir := range dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 2 {
			return parts[0] + "/" + parts[1], true
		}
	}
	return "", false
}

// Discard removes an orphaned hook found by List, including a registration
// whose directory is gone. The branch is deleted only if it is merged into
// the repository's default branch.
func (m *Manager) Discard(ctx context.Context, info domain.HookInfo, repoPath string) error {
	hook := &domain.Hook{Path: info.Path, JobID: info.JobID, Rig: info.Rig, RepoPath: repoPath, Branch: info.Branch}
	repo, err := git.Open(repoPath)
	if err != nil {
		return m.Release(ctx, hook, false)
	}
	if err := m.removeWorktree(ctx, repo, info.Path); err != nil {
		return err
	}
	if info.Branch == "" {
		return nil
	}
	return deleteBranch(ctx, repo, info.Branch, "")
}
