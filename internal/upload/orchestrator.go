package upload

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/agentworkforce/pagesync/internal/metrics"
	"github.com/agentworkforce/pagesync/internal/notion"
)

// FileAPI is the remote upload surface. Satisfied by the API client.
type FileAPI interface {
	CreateUpload(ctx context.Context, name, contentType, mode string, parts int) (notion.UploadSlot, error)
	SendPart(ctx context.Context, uploadURL string, partNumber int, data []byte, contentType string) (notion.PartTag, error)
	CompleteUpload(ctx context.Context, uploadID string, parts []notion.PartTag) error
	GetUpload(ctx context.Context, uploadID string) (notion.UploadSlot, error)
}

// Pending is one attachment awaiting transfer. Data holds the full payload;
// the orchestrator decides single- versus multi-part from its size.
type Pending struct {
	Source      string
	Name        string
	ContentType string
	Data        []byte
	SM          *StateMachine
}

// TransportError reports a transfer that failed after the shared retry
// budget was exhausted. Reported per attachment; siblings are unaffected.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload %s: %v", truncateSource(e.Source), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Outcome is the per-attachment result of UploadAll. Exactly one of
// UploadID and Err is meaningful.
type Outcome struct {
	Source      string
	UploadID    string
	Err         error
	Reattempted bool
}

const (
	defaultMaxConcurrent = 4
	defaultChunkSize     = 5 * 1024 * 1024
)

// OrchestratorOptions configures an Orchestrator. API is required.
type OrchestratorOptions struct {
	API           FileAPI
	MaxConcurrent int
	ChunkSize     int
	Logger        notion.Logger
	Metrics       metrics.Hook
}

// Orchestrator runs attachment transfers with bounded concurrency. One
// transfer's failure never cancels its siblings.
type Orchestrator struct {
	api           FileAPI
	maxConcurrent int64
	chunkSize     int
	logger        notion.Logger
	metrics       metrics.Hook
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("upload orchestrator requires a file API")
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Orchestrator{
		api:           opts.API,
		maxConcurrent: int64(maxConcurrent),
		chunkSize:     chunkSize,
		logger:        opts.Logger,
		metrics:       metrics.OrNoop(opts.Metrics),
	}, nil
}

// UploadAll transfers every pending attachment, at most maxConcurrent in
// flight. Cancellation stops new transfers from starting; transfers already
// in flight run to completion on their own schedule. Outcomes are returned
// in input order.
func (o *Orchestrator) UploadAll(ctx context.Context, pending []*Pending) []Outcome {
	outcomes := make([]Outcome, len(pending))
	sem := semaphore.NewWeighted(o.maxConcurrent)
	var wg sync.WaitGroup

	for i, p := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Source: p.Source, Err: fmt.Errorf("transfer not started: %w", err)}
			continue
		}
		wg.Add(1)
		go func(i int, p *Pending) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = o.transfer(context.WithoutCancel(ctx), p)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// transfer drives one attachment from PENDING to an attachable UPLOADED
// state, re-uploading once if the slot expired in the meantime.
func (o *Orchestrator) transfer(ctx context.Context, p *Pending) Outcome {
	out := Outcome{Source: p.Source}
	if p.SM == nil {
		p.SM = NewStateMachine("")
	}

	if err := p.SM.Transition(StateUploading); err != nil {
		out.Err = err
		return out
	}
	uploadID, err := o.send(ctx, p)
	if err != nil {
		_ = p.SM.Transition(StateFailed)
		out.Err = &TransportError{Source: p.Source, Err: err}
		o.metrics.Increment("upload.failed", 1, nil)
		return out
	}
	p.SM.SetUploadID(uploadID)
	if err := p.SM.Transition(StateUploaded); err != nil {
		out.Err = err
		return out
	}

	// The attach window may have elapsed while other transfers ran. One
	// re-upload is attempted, never more.
	slot, err := o.api.GetUpload(ctx, uploadID)
	if err == nil && slot.Status == notion.UploadStatusExpired {
		if err := p.SM.Transition(StateExpired); err != nil {
			out.Err = err
			return out
		}
		if err := p.SM.Transition(StateUploading); err != nil {
			out.Err = err
			return out
		}
		out.Reattempted = true
		o.metrics.Increment("upload.reattempted", 1, nil)
		if o.logger != nil {
			o.logger.Printf("pagesync: upload %s expired, re-uploading %s", uploadID, truncateSource(p.Source))
		}
		uploadID, err = o.send(ctx, p)
		if err != nil {
			_ = p.SM.Transition(StateFailed)
			out.Err = &TransportError{Source: p.Source, Err: err}
			return out
		}
		p.SM.SetUploadID(uploadID)
		if err := p.SM.Transition(StateUploaded); err != nil {
			out.Err = err
			return out
		}
	}

	if err := p.SM.AssertCanAttach(); err != nil {
		out.Err = err
		return out
	}
	out.UploadID = uploadID
	o.metrics.Increment("upload.completed", 1, nil)
	return out
}

// send performs the actual byte transfer, choosing single- or multi-part by
// payload size.
func (o *Orchestrator) send(ctx context.Context, p *Pending) (string, error) {
	if len(p.Data) <= o.chunkSize {
		return o.sendSingle(ctx, p)
	}
	return o.sendMulti(ctx, p)
}

func (o *Orchestrator) sendSingle(ctx context.Context, p *Pending) (string, error) {
	slot, err := o.api.CreateUpload(ctx, p.Name, p.ContentType, notion.UploadModeSinglePart, 0)
	if err != nil {
		return "", fmt.Errorf("create upload slot: %w", err)
	}
	if _, err := o.api.SendPart(ctx, slot.UploadURL, 1, p.Data, p.ContentType); err != nil {
		return "", fmt.Errorf("send payload: %w", err)
	}
	return slot.ID, nil
}

func (o *Orchestrator) sendMulti(ctx context.Context, p *Pending) (string, error) {
	numParts := (len(p.Data) + o.chunkSize - 1) / o.chunkSize
	slot, err := o.api.CreateUpload(ctx, p.Name, p.ContentType, notion.UploadModeMultiPart, numParts)
	if err != nil {
		return "", fmt.Errorf("create multi-part slot: %w", err)
	}

	tags := make([]notion.PartTag, 0, numParts)
	for part := 1; part <= numParts; part++ {
		start := (part - 1) * o.chunkSize
		end := start + o.chunkSize
		if end > len(p.Data) {
			end = len(p.Data)
		}
		partURL := slot.UploadURL
		if part <= len(slot.PartURLs) {
			partURL = slot.PartURLs[part-1]
		}
		tag, err := o.api.SendPart(ctx, partURL, part, p.Data[start:end], p.ContentType)
		if err != nil {
			return "", fmt.Errorf("send part %d/%d: %w", part, numParts, err)
		}
		tags = append(tags, tag)
	}

	if err := o.api.CompleteUpload(ctx, slot.ID, tags); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", slot.ID, err)
	}
	return slot.ID, nil
}
