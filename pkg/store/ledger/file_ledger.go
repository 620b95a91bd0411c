package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// FileStore appends one JSON object per line and fsyncs each write. Genes
// and refusals live in sibling files so each stays a clean chain.
type FileStore struct {
	mu           sync.Mutex
	genesPath    string
	refusalsPath string
}

// NewFileStore uses path for genes and path with a ".refusals" suffix
// inserted before the extension for refusals.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ledger store: create dir: %w", err)
	}
	ext := filepath.Ext(path)
	return &FileStore{
		genesPath:    path,
		refusalsPath: path[:len(path)-len(ext)] + ".refusals" + ext,
	}, nil
}

func (f *FileStore) AppendEntry(_ context.Context, entry contracts.LedgerEntry) error {
	return f.appendLine(f.genesPath, entry)
}

func (f *FileStore) AppendRefusal(_ context.Context, rec contracts.RefusalRecord) error {
	return f.appendLine(f.refusalsPath, rec)
}

func (f *FileStore) appendLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger store: marshal: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("ledger store: open %s: %w", path, err)
	}
	if _, err := fh.Write(line); err != nil {
		_ = fh.Close()
		return fmt.Errorf("ledger store: write %s: %w", path, err)
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		return fmt.Errorf("ledger store: sync %s: %w", path, err)
	}
	return fh.Close()
}

func (f *FileStore) LoadEntries(_ context.Context) ([]contracts.LedgerEntry, error) {
	var out []contracts.LedgerEntry
	err := f.readLines(f.genesPath, func(b []byte) error {
		var e contracts.LedgerEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (f *FileStore) LoadRefusals(_ context.Context) ([]contracts.RefusalRecord, error) {
	var out []contracts.RefusalRecord
	err := f.readLines(f.refusalsPath, func(b []byte) error {
		var r contracts.RefusalRecord
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// readLines treats a missing file as empty.
func (f *FileStore) readLines(path string, fn func([]byte) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger store: open %s: %w", path, err)
	}
	defer func() { _ = fh.Close() }()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("ledger store: %s line %d: %w", path, line, err)
		}
	}
	return sc.Err()
}

func (f *FileStore) Close() error { return nil }
