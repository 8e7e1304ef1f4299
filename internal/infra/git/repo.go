// Package git provides repository operations for rigs and hooks.
// Reads go through go-git; worktree and branch mutations shell out to git,
// which go-git does not implement for linked worktrees.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/runoshun/gastown/internal/domain"
)

// fallbackBranch is used when neither origin/HEAD nor HEAD names a branch.
const fallbackBranch = "main"

// maxSummaryLen bounds the diff summary stored in beads.
const maxSummaryLen = 1000

// Repo is an opened git repository.
type Repo struct {
	repo *gogit.Repository
	path string
}

// Open opens the repository at path.
// Returns ErrInvalidRepository if path is not a git repository.
func Open(path string) (*Repo, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRepository, path, err)
	}
	return &Repo{repo: repo, path: path}, nil
}

// Clone clones url into dest. A failed clone removes dest.
func Clone(ctx context.Context, url, dest string) (*Repo, error) {
	repo, err := gogit.PlainCloneContext(ctx, dest, false, &gogit.CloneOptions{URL: url})
	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("%w: clone %s: %v", domain.ErrInvalidRepository, url, err)
	}
	return &Repo{repo: repo, path: dest}, nil
}

// IsURL reports whether source looks like a clone URL rather than a local path.
func IsURL(source string) bool {
	if strings.Contains(source, "://") {
		return true
	}
	// scp-like syntax: user@host:path
	at := strings.Index(source, "@")
	colon := strings.Index(source, ":")
	return at > 0 && colon > at
}

// Path returns the repository path.
func (r *Repo) Path() string {
	return r.path
}

// RemoteURL returns the first URL of the named remote, or an empty string.
func (r *Repo) RemoteURL(name string) string {
	remote, err := r.repo.Remote(name)
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// DefaultBranch resolves the default branch: origin/HEAD, then the branch HEAD
// points at, then "main".
func (r *Repo) DefaultBranch() string {
	if ref, err := r.repo.Reference(plumbing.NewRemoteHEADReferenceName("origin"), false); err == nil {
		if ref.Type() == plumbing.SymbolicReference {
			return strings.TrimPrefix(ref.Target().Short(), "origin/")
		}
	}
	if ref, err := r.repo.Reference(plumbing.HEAD, false); err == nil {
		if ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
			return ref.Target().Short()
		}
	}
	return fallbackBranch
}

// ResolveCommit resolves a revision to a commit hash.
func (r *Repo) ResolveCommit(rev string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", domain.NewGitError("rev-parse "+rev, err, nil)
	}
	return hash.String(), nil
}

// BranchHead returns the commit a local branch points at.
// ok is false if the branch does not exist.
func (r *Repo) BranchHead(branch string) (hash string, ok bool, err error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, domain.NewGitError("show-ref "+branch, err, nil)
	}
	return ref.Hash().String(), true, nil
}

// BranchExists checks if a local branch exists.
func (r *Repo) BranchExists(branch string) (bool, error) {
	_, ok, err := r.BranchHead(branch)
	return ok, err
}

// Diff compares head against base and reports the changed files and a
// --stat style summary.
func (r *Repo) Diff(ctx context.Context, base, head string) (*domain.HookDiff, error) {
	out := &domain.HookDiff{HeadCommit: head}
	if base == head {
		return out, nil
	}

	baseCommit, err := r.repo.CommitObject(plumbing.NewHash(base))
	if err != nil {
		return nil, domain.NewGitError("cat-file "+base, err, nil)
	}
	headCommit, err := r.repo.CommitObject(plumbing.NewHash(head))
	if err != nil {
		return nil, domain.NewGitError("cat-file "+head, err, nil)
	}

	patch, err := baseCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return nil, domain.NewGitError("diff", err, nil)
	}

	stats := patch.Stats()
	out.Changed = true
	out.FilesChanged = make([]string, 0, len(stats))
	for _, st := range stats {
		out.FilesChanged = append(out.FilesChanged, st.Name)
	}
	out.Summary = summarize(stats)
	return out, nil
}

// IsAncestor reports whether commit a is an ancestor of (or equal to) commit b.
func (r *Repo) IsAncestor(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	ca, err := r.repo.CommitObject(plumbing.NewHash(a))
	if err != nil {
		return false, domain.NewGitError("cat-file "+a, err, nil)
	}
	cb, err := r.repo.CommitObject(plumbing.NewHash(b))
	if err != nil {
		return false, domain.NewGitError("cat-file "+b, err, nil)
	}
	return ca.IsAncestor(cb)
}

// summarize renders file stats with a totals line, truncated to maxSummaryLen.
func summarize(stats object.FileStats) string {
	adds, dels := 0, 0
	for _, st := range stats {
		adds += st.Addition
		dels += st.Deletion
	}
	s := stats.String() + fmt.Sprintf(" %d files changed, %d insertions(+), %d deletions(-)", len(stats), adds, dels)
	if len(s) > maxSummaryLen {
		s = s[:maxSummaryLen]
	}
	return s
}

// run executes a git command in the repository.
func (r *Repo) run(ctx context.Context, args ...string) ([]byte, error) {
	// #nosec G204 - arguments are built from validated rig and job names
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, domain.NewGitError(strings.Join(args[:min(2, len(args))], " "), err, out)
	}
	return out, nil
}

// CurrentBranch returns the branch HEAD points at, or an empty string when detached.
func (r *Repo) CurrentBranch() string {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil || ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return ""
	}
	return ref.Target().Short()
}
