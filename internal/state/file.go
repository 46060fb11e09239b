package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend stores every page state in one JSON file, written atomically
// via a temp file and rename.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: strings.TrimSpace(path)}
}

func (b *FileBackend) Load(_ context.Context, pageID string) (*PageState, error) {
	if b == nil || b.path == "" || pageID == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pages, err := b.read()
	if err != nil {
		return nil, err
	}
	st, ok := pages[pageID]
	if !ok {
		return nil, nil
	}
	return st, nil
}

func (b *FileBackend) Save(_ context.Context, st *PageState) error {
	if b == nil || b.path == "" || st == nil {
		return nil
	}
	if st.PageID == "" {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pages, err := b.read()
	if err != nil {
		return err
	}
	pages[st.PageID] = st
	return b.write(pages)
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) read() (map[string]*PageState, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*PageState), nil
		}
		return nil, err
	}
	pages := make(map[string]*PageState)
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (b *FileBackend) write(pages map[string]*PageState) error {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
