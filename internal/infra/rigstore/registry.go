// Package rigstore provides the TOML file implementation of domain.RigRegistry.
package rigstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/gastown/internal/domain"
	"github.com/runoshun/gastown/internal/infra/git"
)

// registryFile is the on-disk layout of rigs.toml.
type registryFile struct {
	Rigs    []*domain.Rig `toml:"rigs"`
	Version int           `toml:"version"`
}

// Registry implements domain.RigRegistry.
// Fields are ordered to minimize memory padding.
type Registry struct {
	clock domain.Clock
	path  string // rigs.toml
	root  string // Workspace root; managed clones live under <root>/rigs
	mu    sync.Mutex
}

// New creates a registry stored at path for the workspace at root.
func New(path, root string, clock domain.Clock) *Registry {
	return &Registry{path: path, root: root, clock: clock}
}

// Ensure Registry implements domain.RigRegistry.
var _ domain.RigRegistry = (*Registry)(nil)

// Register adds a rig. A URL source is cloned into the workspace first.
func (r *Registry) Register(ctx context.Context, name, source string) (*domain.Rig, error) {
	if !domain.ValidRigName(name) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRigName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.load()
	if err != nil {
		return nil, err
	}
	if findRig(file.Rigs, name) != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRig, name)
	}

	rig := &domain.Rig{Name: name, CreatedAt: r.clock.Now()}

	var repo *git.Repo
	if git.IsURL(source) {
		dest := domain.RigClonePath(r.root, name)
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil, fmt.Errorf("%w: clone destination %s already exists", domain.ErrInvalidRepository, dest)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return nil, fmt.Errorf("create rigs directory: %w", err)
		}
		repo, err = git.Clone(ctx, source, dest)
		if err != nil {
			return nil, err
		}
		rig.Managed = true
		rig.RemoteURL = source
	} else {
		abs, absErr := filepath.Abs(source)
		if absErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRepository, source, absErr)
		}
		repo, err = git.Open(abs)
		if err != nil {
			return nil, err
		}
		rig.RemoteURL = repo.RemoteURL("origin")
	}
	rig.Path = repo.Path()
	rig.DefaultBranch = repo.DefaultBranch()

	file.Rigs = append(file.Rigs, rig)
	if err := r.save(file); err != nil {
		if rig.Managed {
			_ = os.RemoveAll(rig.Path)
		}
		return nil, err
	}
	return rig, nil
}

// List yields registered rigs sorted by name.
// The registry file is read each time the sequence is ranged over.
func (r *Registry) List() iter.Seq2[*domain.Rig, error] {
	return func(yield func(*domain.Rig, error) bool) {
		r.mu.Lock()
		file, err := r.load()
		r.mu.Unlock()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rig := range file.Rigs {
			if !yield(rig, nil) {
				return
			}
		}
	}
}

// Resolve returns the rig with the given name.
func (r *Registry) Resolve(name string) (*domain.Rig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.load()
	if err != nil {
		return nil, err
	}
	rig := findRig(file.Rigs, name)
	if rig == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRig, name)
	}
	return rig, nil
}

// Remove deletes a registration. Clones made by the registry are removed from disk.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.load()
	if err != nil {
		return err
	}
	rig := findRig(file.Rigs, name)
	if rig == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRig, name)
	}

	file.Rigs = slices.DeleteFunc(file.Rigs, func(x *domain.Rig) bool { return x.Name == name })
	if err := r.save(file); err != nil {
		return err
	}

	if rig.Managed && isWithin(rig.Path, filepath.Join(r.root, "rigs")) {
		if err := os.RemoveAll(rig.Path); err != nil {
			return fmt.Errorf("remove managed clone: %w", err)
		}
	}
	return nil
}

// load reads the registry file. A missing file is an empty registry.
func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &registryFile{Version: 1}, nil
		}
		return nil, fmt.Errorf("read rig registry: %w", err)
	}

	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rig registry %s: %w", r.path, err)
	}
	if file.Version == 0 {
		file.Version = 1
	}
	slices.SortFunc(file.Rigs, func(a, b *domain.Rig) int { return strings.Compare(a.Name, b.Name) })
	return &file, nil
}

// save writes the registry file atomically.
func (r *Registry) save(file *registryFile) error {
	slices.SortFunc(file.Rigs, func(a, b *domain.Rig) int { return strings.Compare(a.Name, b.Name) })

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal rig registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func findRig(rigs []*domain.Rig, name string) *domain.Rig {
	for _, rig := range rigs {
		if rig.Name == name {
			return rig
		}
	}
	return nil
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
