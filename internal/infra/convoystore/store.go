// Package convoystore provides the YAML file implementation of domain.ConvoyRepository.
package convoystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/runoshun/gastown/internal/domain"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout of convoys.yaml.
type document struct {
	Convoys []*domain.Convoy `yaml:"convoys"`
}

// Store implements domain.ConvoyRepository.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Ensure Store implements domain.ConvoyRepository interface.
var _ domain.ConvoyRepository = (*Store)(nil)

// Get returns the convoy with the given id.
func (s *Store) Get(id string) (*domain.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, c := range doc.Convoys {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrConvoyNotFound, id)
}

// List returns all convoys ordered by creation time.
func (s *Store) List() ([]*domain.Convoy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Convoys, nil
}

// Save inserts or replaces a convoy.
func (s *Store) Save(convoy *domain.Convoy) error {
	if convoy.ID == "" {
		return errors.New("save convoy: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	cp := *convoy
	cp.Tasks = slices.Clone(convoy.Tasks)
	idx := slices.IndexFunc(doc.Convoys, func(c *domain.Convoy) bool { return c.ID == convoy.ID })
	if idx >= 0 {
		doc.Convoys[idx] = &cp
	} else {
		doc.Convoys = append(doc.Convoys, &cp)
	}
	return s.write(doc)
}

func (s *Store) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("read convoys: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptStore, s.path, err)
	}
	sort.SliceStable(doc.Convoys, func(i, j int) bool {
		return doc.Convoys[i].CreatedAt.Before(doc.Convoys[j].CreatedAt)
	})
	return &doc, nil
}

func (s *Store) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal convoys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// TaskFile is the layout of a YAML file listing convoy tasks.
// Either a bare list of strings or a mapping with a tasks key is accepted.
type TaskFile struct {
	Name  string   `yaml:"name"`
	Rig   string   `yaml:"rig"`
	Tasks []string `yaml:"tasks"`
}

// ReadTaskFile parses a convoy task file.
func ReadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return &TaskFile{Tasks: list}, nil
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse task file %s: %w", path, err)
	}
	return &tf, nil
}
