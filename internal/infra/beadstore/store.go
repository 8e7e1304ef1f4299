// Package beadstore provides the JSON document implementation of domain.BeadStore.
package beadstore

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// document is the on-disk layout: {"beads": [...], "updated_at": "..."}.
// Fields are ordered to minimize memory padding.
type document struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Beads     []*domain.Bead `json:"beads"`
}

// Store implements domain.BeadStore using a single JSON file.
// It assumes a single writer per workspace; the file lock only keeps
// readers from observing the document between read and rename.
type Store struct {
	now      func() time.Time
	path     string
	lockPath string
}

// New creates a new Store for the given file path.
// The file does not need to exist; it will be created on first write.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ensure Store implements domain.BeadStore.
var _ domain.BeadStore = (*Store)(nil)

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Put upserts a bead by id.
func (s *Store) Put(bead *domain.Bead) error {
	if bead == nil || bead.ID == "" {
		return errors.New("put bead: empty id")
	}
	cp := cloneBead(bead)
	return s.withLockWrite(func(doc *document) error {
		idx := slices.IndexFunc(doc.Beads, func(b *domain.Bead) bool { return b.ID == cp.ID })
		if idx >= 0 {
			doc.Beads[idx] = cp
		} else {
			doc.Beads = append(doc.Beads, cp)
		}
		return nil
	})
}

// Get returns the bead with the given job id.
func (s *Store) Get(id string) (*domain.Bead, error) {
	var found *domain.Bead
	err := s.withLock(func(doc *document) error {
		for _, b := range doc.Beads {
			if b.ID == id {
				found = cloneBead(b)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBeadNotFound, id)
	}
	return found, nil
}

// List yields beads matching the filter, oldest first.
// The document is read when iteration starts, so each range sees a fresh view.
func (s *Store) List(filter domain.BeadFilter) iter.Seq2[*domain.Bead, error] {
	return func(yield func(*domain.Bead, error) bool) {
		var beads []*domain.Bead
		err := s.withLock(func(doc *document) error {
			beads = doc.Beads
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		sortBeads(beads)
		for _, b := range beads {
			if !filter.Match(b) {
				continue
			}
			if !yield(cloneBead(b), nil) {
				return
			}
		}
	}
}

// Prune removes terminal beads matching the filter and returns the removed beads.
func (s *Store) Prune(filter domain.PruneFilter) ([]*domain.Bead, error) {
	var removed []*domain.Bead
	err := s.withLockWrite(func(doc *document) error {
		kept := doc.Beads[:0]
		for _, b := range doc.Beads {
			if filter.Match(b) {
				removed = append(removed, b)
				continue
			}
			kept = append(kept, b)
		}
		doc.Beads = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBeads(removed)
	return removed, nil
}

// Initialize creates an empty document if none exists.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.write(&document{Beads: []*domain.Bead{}})
}

// withLock executes fn with a shared (read) lock.
func (s *Store) withLock(fn func(*document) error) error {
	lock, err := s.acquireLock(syscall.LOCK_SH)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	doc, err := s.read()
	if err != nil {
		return err
	}
	return fn(doc)
}

// withLockWrite executes fn with an exclusive (write) lock and writes the result.
// A document that cannot be parsed is never overwritten.
func (s *Store) withLockWrite(fn func(*document) error) error {
	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc.UpdatedAt = s.now()
	return s.write(doc)
}

func (s *Store) acquireLock(lockType int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return lock, nil
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

// read loads the document. An absent or empty file is an empty document.
func (s *Store) read() (*document, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("read bead store: %w", err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return &document{}, nil
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptStore, s.path, err)
	}
	doc.Beads = slices.DeleteFunc(doc.Beads, func(b *domain.Bead) bool { return b == nil })
	return &doc, nil
}

func (s *Store) write(doc *document) error {
	if doc.Beads == nil {
		doc.Beads = []*domain.Bead{}
	}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bead store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sortBeads(beads []*domain.Bead) {
	slices.SortStableFunc(beads, func(a, b *domain.Bead) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func cloneBead(b *domain.Bead) *domain.Bead {
	cp := *b
	cp.FilesChanged = slices.Clone(b.FilesChanged)
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
