// Package state persists per-page sync state between runs so unchanged
// pages can be skipped and conflict snapshots compared against the last
// successful sync.
package state

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput   = errors.New("invalid state input")
	ErrNotImplemented = errors.New("state backend not implemented")
)

// PageState is the durable record of one page's last successful sync.
type PageState struct {
	PageID      string            `json:"page_id"`
	LastEdited  time.Time         `json:"last_edited"`
	BlockEtags  map[string]string `json:"block_etags,omitempty"`
	DesiredHash string            `json:"desired_hash,omitempty"`
	SyncedAt    time.Time         `json:"synced_at"`
}

// Backend stores page states keyed by page ID. Load returns (nil, nil) when
// no record exists.
type Backend interface {
	Load(ctx context.Context, pageID string) (*PageState, error)
	Save(ctx context.Context, st *PageState) error
	Close() error
}
