package revocation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// FileRegistry serves revocations from a plain text file, one reference per
// line, '#' starting a comment. Watch keeps it in sync with the file.
type FileRegistry struct {
	*MemoryRegistry
	path     string
	logger   *slog.Logger
	debounce time.Duration
}

// NewFileRegistry loads path. A missing file is an error; an empty file
// revokes nothing.
func NewFileRegistry(path string, logger *slog.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FileRegistry{
		MemoryRegistry: NewMemoryRegistry(),
		path:           path,
		logger:         logger.With("component", "revocation", "path", path),
		debounce:       defaultDebounce,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rereads the file and replaces the revoked set.
func (r *FileRegistry) Reload() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("revocation: open %s: %w", r.path, err)
	}
	defer func() { _ = f.Close() }()

	refs, err := parseRefs(f)
	if err != nil {
		return fmt.Errorf("revocation: read %s: %w", r.path, err)
	}
	r.Replace(refs)
	return nil
}

func parseRefs(rd io.Reader) ([]string, error) {
	var refs []string
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			refs = append(refs, line)
		}
	}
	return refs, sc.Err()
}

// Watch reloads the registry whenever the file changes. It watches the parent
// directory so editors that replace the file by rename are picked up. Blocks
// until ctx is cancelled. A failed reload keeps the previous set.
func (r *FileRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("revocation: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("revocation: watch %s: %w", dir, err)
	}
	target := filepath.Clean(r.path)

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-reload:
			if err := r.Reload(); err != nil {
				r.logger.WarnContext(ctx, "revocation reload failed", "error", err)
				continue
			}
			r.logger.InfoContext(ctx, "revocation list reloaded", "revoked", r.Len())

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WarnContext(ctx, "revocation watcher error", "error", err)
		}
	}
}
