// Package inbox delivers operator commands to a running mayor through files.
// Each command is one JSON file written with tmp+rename; files are processed
// in name order, which is creation order.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/runoshun/gastown/internal/domain"
)

// DefaultFallbackInterval is how often the inbox is rescanned when no
// filesystem event arrives.
const DefaultFallbackInterval = 2 * time.Second

// Inbox is a directory of pending operator commands.
type Inbox struct {
	now func() time.Time
	dir string
}

// New creates an inbox at dir.
func New(dir string) *Inbox {
	return &Inbox{dir: dir, now: time.Now}
}

// Dir returns the inbox directory.
func (b *Inbox) Dir() string {
	return b.dir
}

// Send enqueues a command. A missing ID or timestamp is filled in.
func (b *Inbox) Send(ctx context.Context, cmd domain.OperatorCommand) (domain.OperatorCommand, error) {
	if err := ctx.Err(); err != nil {
		return cmd, err
	}
	if err := b.ensureDir(); err != nil {
		return cmd, err
	}

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = b.now().UTC()
	}
	if cmd.ID == "" {
		cmd.ID = newCommandID(cmd.CreatedAt)
	}
	if err := cmd.Validate(); err != nil {
		return cmd, err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return cmd, fmt.Errorf("marshal command: %w", err)
	}

	tmpPath := filepath.Join(b.dir, ".tmp-"+cmd.ID)
	finalPath := filepath.Join(b.dir, cmd.ID+".json")
	if err := os.WriteFile(tmpPath, payload, 0o600); err != nil {
		return cmd, fmt.Errorf("write command temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return cmd, fmt.Errorf("finalize command file: %w", err)
	}
	return cmd, nil
}

// Watch calls handle for every command that arrives until ctx is done.
// Commands already pending when Watch starts are handled first. The
// directory is watched with fsnotify and rescanned every fallback interval
// in case an event is missed or the watcher cannot be created.
//
// A command is removed once handle accepts it. A command handle rejects is
// moved to failed/ with the error beside it; one interrupted by
// cancellation stays pending for the next watcher.
func (b *Inbox) Watch(ctx context.Context, fallback time.Duration, handle func(domain.OperatorCommand) error) error {
	if err := b.ensureDir(); err != nil {
		return err
	}
	if fallback <= 0 {
		fallback = DefaultFallbackInterval
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(b.dir); addErr == nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
		defer func() { _ = watcher.Close() }()
	}

	ticker := time.NewTicker(fallback)
	defer ticker.Stop()

	process := func() error {
		pending, err := b.pending()
		if err != nil {
			return err
		}
		for _, p := range pending {
			if ctx.Err() != nil {
				return nil
			}
			err := handle(p.cmd)
			switch {
			case err == nil:
				_ = os.Remove(p.path)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				b.reject(p.path, err)
			}
		}
		return nil
	}

	if err := process(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Renames into the directory arrive as Create
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
		case _, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			}
			continue
		case <-ticker.C:
		}
		if err := process(); err != nil {
			return err
		}
	}
}

type pendingCommand struct {
	cmd  domain.OperatorCommand
	path string
}

// pending reads every valid command file in name order without removing it.
func (b *Inbox) pending() ([]pendingCommand, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	var out []pendingCommand
	for _, name := range files {
		path := filepath.Join(b.dir, name)
		if cmd, ok := b.readCommand(path); ok {
			out = append(out, pendingCommand{cmd: cmd, path: path})
		}
	}
	return out, nil
}

func (b *Inbox) ensureDir() error {
	if err := os.MkdirAll(b.dir, 0o750); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	return nil
}

func (b *Inbox) readCommand(path string) (domain.OperatorCommand, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.OperatorCommand{}, false
		}
		b.moveToFailed(path)
		return domain.OperatorCommand{}, false
	}

	var cmd domain.OperatorCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		b.moveToFailed(path)
		return domain.OperatorCommand{}, false
	}
	if err := cmd.Validate(); err != nil {
		b.moveToFailed(path)
		return domain.OperatorCommand{}, false
	}
	return cmd, true
}

// FailedDir returns the directory rejected commands are moved to.
func (b *Inbox) FailedDir() string {
	return filepath.Join(b.dir, "failed")
}

func (b *Inbox) moveToFailed(path string) string {
	failedDir := b.FailedDir()
	if err := os.MkdirAll(failedDir, 0o750); err == nil {
		dest := filepath.Join(failedDir, filepath.Base(path))
		if err := os.Rename(path, dest); err == nil {
			return dest
		}
	}
	_ = os.Rename(path, path+".bad")
	return path + ".bad"
}

// reject moves a command file to failed/ and records why next to it.
func (b *Inbox) reject(path string, cause error) {
	dest := b.moveToFailed(path)
	_ = os.WriteFile(strings.TrimSuffix(dest, ".json")+".error", []byte(cause.Error()+"\n"), 0o600)
}

// newCommandID returns an id that sorts by creation time.
func newCommandID(t time.Time) string {
	return fmt.Sprintf("%020d-%s", t.UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
