package diff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentworkforce/pagesync/internal/metrics"
)

// BlockWriter is the remote mutation surface the executor drives. Satisfied
// by the API client; tests substitute fakes.
type BlockWriter interface {
	UpdateBlock(ctx context.Context, blockID string, payload json.RawMessage) error
	DeleteBlock(ctx context.Context, blockID string) error
	AppendChildren(ctx context.Context, parentID, after string, blocks []json.RawMessage) ([]string, error)
}

// Logger matches the stdlib log.Logger surface. A nil logger disables
// executor logging.
type Logger interface {
	Printf(format string, args ...any)
}

// Result counts the operations applied. On error it reflects work completed
// before the failure.
type Result struct {
	Kept     int
	Updated  int
	Inserted int
	Deleted  int
	Replaced int
}

// ExecutorOptions configures an Executor. Writer and PageID are required;
// MaxBatch defaults to the append batch ceiling.
type ExecutorOptions struct {
	Writer   BlockWriter
	PageID   string
	MaxBatch int
	Logger   Logger
	Metrics  metrics.Hook
}

const defaultMaxBatch = 100

// Executor applies a plan in order against the remote API, coalescing runs
// of consecutive inserts into batched appends.
type Executor struct {
	writer   BlockWriter
	pageID   string
	maxBatch int
	logger   Logger
	metrics  metrics.Hook
}

func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("%w: executor requires a block writer", ErrValidation)
	}
	if opts.PageID == "" {
		return nil, fmt.Errorf("%w: executor requires a page id", ErrValidation)
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &Executor{
		writer:   opts.Writer,
		pageID:   opts.PageID,
		maxBatch: maxBatch,
		logger:   opts.Logger,
		metrics:  metrics.OrNoop(opts.Metrics),
	}, nil
}

// Execute validates the whole plan, then applies it in order. Validation
// failures surface before any remote write. A write failure stops execution
// and returns the counts accumulated so far.
func (e *Executor) Execute(ctx context.Context, ops []Op) (Result, error) {
	var res Result
	if err := validatePlan(ops); err != nil {
		return res, err
	}

	// Last persisted sibling per parent, refined with IDs created during
	// this run so later inserts anchor correctly.
	anchors := make(map[string]string)

	var pendingInserts []Op
	flush := func() error {
		if len(pendingInserts) == 0 {
			return nil
		}
		parent := pendingInserts[0].ParentID
		after := anchors[parent]
		if after == "" {
			after = pendingInserts[0].After
		}
		payloads := make([]json.RawMessage, len(pendingInserts))
		for i, op := range pendingInserts {
			payloads[i] = op.Block.Payload
		}
		for start := 0; start < len(payloads); start += e.maxBatch {
			end := start + e.maxBatch
			if end > len(payloads) {
				end = len(payloads)
			}
			ids, err := e.writer.AppendChildren(ctx, e.remoteParent(parent), after, payloads[start:end])
			if err != nil {
				res.Inserted += start
				return fmt.Errorf("append %d blocks under %s: %w", end-start, e.remoteParent(parent), err)
			}
			if len(ids) > 0 {
				after = ids[len(ids)-1]
				anchors[parent] = after
			}
		}
		res.Inserted += len(payloads)
		e.metrics.Increment("diff.execute.inserted", len(payloads), nil)
		pendingInserts = pendingInserts[:0]
		return nil
	}

	for _, op := range ops {
		if op.Type == OpInsert {
			if len(pendingInserts) > 0 && pendingInserts[0].ParentID != op.ParentID {
				if err := flush(); err != nil {
					return res, err
				}
			}
			pendingInserts = append(pendingInserts, op)
			continue
		}
		if err := flush(); err != nil {
			return res, err
		}

		switch op.Type {
		case OpKeep:
			res.Kept++
			anchors[op.ParentID] = op.ExistingID
		case OpUpdate:
			if err := e.writer.UpdateBlock(ctx, op.ExistingID, op.Block.Payload); err != nil {
				return res, fmt.Errorf("update block %s: %w", op.ExistingID, err)
			}
			res.Updated++
			anchors[op.ParentID] = op.ExistingID
			e.metrics.Increment("diff.execute.updated", 1, nil)
		case OpDelete:
			if err := e.writer.DeleteBlock(ctx, op.ExistingID); err != nil {
				return res, fmt.Errorf("delete block %s: %w", op.ExistingID, err)
			}
			res.Deleted++
			e.metrics.Increment("diff.execute.deleted", 1, nil)
		case OpReplace:
			if err := e.replace(ctx, op, anchors); err != nil {
				return res, err
			}
			res.Replaced++
			e.metrics.Increment("diff.execute.replaced", 1, nil)
		default:
			return res, fmt.Errorf("%w: unknown op type %d", ErrValidation, op.Type)
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	if e.logger != nil {
		e.logger.Printf("pagesync: executed plan on %s: kept=%d updated=%d inserted=%d deleted=%d replaced=%d",
			e.pageID, res.Kept, res.Updated, res.Inserted, res.Deleted, res.Replaced)
	}
	return res, nil
}

// replace deletes the existing block then appends the replacement at the
// same position.
func (e *Executor) replace(ctx context.Context, op Op, anchors map[string]string) error {
	if err := e.writer.DeleteBlock(ctx, op.ExistingID); err != nil {
		return fmt.Errorf("replace: delete block %s: %w", op.ExistingID, err)
	}
	after := anchors[op.ParentID]
	if after == "" {
		after = op.After
	}
	ids, err := e.writer.AppendChildren(ctx, e.remoteParent(op.ParentID), after, []json.RawMessage{op.Block.Payload})
	if err != nil {
		return fmt.Errorf("replace: insert under %s: %w", e.remoteParent(op.ParentID), err)
	}
	if len(ids) > 0 {
		anchors[op.ParentID] = ids[0]
	}
	return nil
}

func (e *Executor) remoteParent(parentID string) string {
	if parentID == "" {
		return e.pageID
	}
	return parentID
}

// validatePlan rejects any op that cannot be applied before the first write
// is issued: write ops need a payload and a resolved attachment, targeted
// ops need a block ID.
func validatePlan(ops []Op) error {
	for i, op := range ops {
		switch op.Type {
		case OpInsert, OpUpdate, OpReplace:
			if op.Block == nil || len(op.Block.Payload) == 0 {
				return fmt.Errorf("%w: op %d (%s) has no payload", ErrValidation, i, op.Type)
			}
			if op.Block.Attachment != nil && !op.Block.Attachment.Resolved() {
				return fmt.Errorf("%w: op %d (%s) carries unresolved attachment %q", ErrValidation, i, op.Type, op.Block.Attachment.Source)
			}
		}
		switch op.Type {
		case OpUpdate, OpReplace, OpDelete:
			if op.ExistingID == "" {
				return fmt.Errorf("%w: op %d (%s) has no target block", ErrValidation, i, op.Type)
			}
		}
	}
	return nil
}
