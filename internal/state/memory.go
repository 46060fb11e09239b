package state

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBackend keeps page states in process memory. Useful for tests and
// one-shot runs where skip detection across runs is not wanted.
type MemoryBackend struct {
	mu    sync.Mutex
	pages map[string]json.RawMessage
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{pages: make(map[string]json.RawMessage)}
}

func (b *MemoryBackend) Load(_ context.Context, pageID string) (*PageState, error) {
	if b == nil || pageID == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.pages[pageID]
	if !ok {
		return nil, nil
	}
	var st PageState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (b *MemoryBackend) Save(_ context.Context, st *PageState) error {
	if b == nil || st == nil {
		return nil
	}
	if st.PageID == "" {
		return ErrInvalidInput
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[st.PageID] = raw
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
