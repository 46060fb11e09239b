package pagesync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentworkforce/pagesync/internal/diff"
	"github.com/agentworkforce/pagesync/internal/metrics"
	"github.com/agentworkforce/pagesync/internal/notion"
	"github.com/agentworkforce/pagesync/internal/state"
	"github.com/agentworkforce/pagesync/internal/upload"
)

// Sync strategies reported in results.
const (
	StrategyDiff        = "diff"
	StrategyFullReplace = "full_replace"
	StrategySkipped     = "skipped"
)

// ErrUpload marks a sync aborted because one or more attachments failed to
// transfer. The plan is never executed with dangling attachment refs.
var ErrUpload = errors.New("attachment upload failed")

// SyncResult summarises one page synchronization.
type SyncResult struct {
	Strategy   string
	Kept       int
	Updated    int
	Inserted   int
	Deleted    int
	Replaced   int
	Uploaded   int
	Reuploaded int
	Skipped    bool
}

// Options configures a Client. Config.Token is required; everything else
// has defaults. States may be nil to disable skip detection.
type Options struct {
	Config  Config
	Logger  notion.Logger
	Metrics metrics.Hook
	States  state.Backend
}

// Client synchronizes desired block trees onto remote pages.
type Client struct {
	cfg      Config
	api      *notion.Client
	planner  *diff.Planner
	uploader *upload.Orchestrator
	states   state.Backend
	logger   notion.Logger
	metrics  metrics.Hook

	now func() time.Time
}

func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg.BaseURL == "" {
		cfg = DefaultConfig()
		cfg.Token = opts.Config.Token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("config: token is required")
	}

	transport, err := notion.NewTransport(notion.TransportOptions{
		BaseURL:     cfg.BaseURL,
		Token:       cfg.Token,
		APIVersion:  cfg.APIVersion,
		RateLimit:   cfg.RateLimitRPS,
		RateBurst:   cfg.RateBurst,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	api := notion.NewClient(transport)

	uploader, err := upload.NewOrchestrator(upload.OrchestratorOptions{
		API:           api,
		MaxConcurrent: cfg.MaxConcurrent,
		ChunkSize:     cfg.ChunkSizeBytes,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		api:      api,
		planner:  diff.NewPlanner(cfg.MinMatchRatio),
		uploader: uploader,
		states:   opts.States,
		logger:   opts.Logger,
		metrics:  metrics.OrNoop(opts.Metrics),
		now:      time.Now,
	}, nil
}

// SyncPage reconciles the remote page with the desired block tree. The
// conversion collaborator supplies desired blocks with opaque payloads;
// attachments referenced by them are uploaded first.
//
// When plan execution fails partway, the returned result is non-nil and
// counts the mutations applied before the failure.
func (c *Client) SyncPage(ctx context.Context, pageID string, desired []*diff.Block) (*SyncResult, error) {
	started := c.now()

	page, err := c.api.RetrievePage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("retrieve page %s: %w", pageID, err)
	}
	existing, etags, err := fetchTree(ctx, c.api, pageID, c.cfg.MaxFetchDepth)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks of %s: %w", pageID, err)
	}
	before := diff.TakeSnapshot(pageID, notion.ParseEditedTime(page.LastEditedTime), etags)

	desiredHash := hashTree(desired)
	if skipped, err := c.canSkip(ctx, pageID, before, desiredHash); err != nil {
		return nil, err
	} else if skipped {
		if c.logger != nil {
			c.logger.Printf("pagesync: %s unchanged since last sync, skipping", pageID)
		}
		c.metrics.Increment("sync.skipped", 1, nil)
		return &SyncResult{Strategy: StrategySkipped, Skipped: true}, nil
	}

	uploaded, reuploaded, err := c.resolveAttachments(ctx, desired)
	if err != nil {
		return nil, err
	}

	plan := c.planner.Plan(existing, desired)

	// Re-snapshot immediately before executing; the narrower the window
	// between planning and execution, the fewer missed races.
	after, err := c.snapshot(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("re-snapshot %s: %w", pageID, err)
	}
	strategy := StrategyDiff
	if diff.DetectConflict(before, after) {
		c.metrics.Increment("sync.conflicts", 1, nil)
		if c.cfg.OnConflict == ConflictFail {
			return nil, &notion.ConflictError{Path: pageID}
		}
		// Replace policy: the stale plan is worthless, rebuild the page
		// against what is actually there now.
		existing, _, err = fetchTree(ctx, c.api, pageID, c.cfg.MaxFetchDepth)
		if err != nil {
			return nil, fmt.Errorf("refetch blocks of %s: %w", pageID, err)
		}
		plan = c.planner.FullReplace(existing, desired)
		strategy = StrategyFullReplace
	}

	executor, err := diff.NewExecutor(diff.ExecutorOptions{
		Writer:  c.api,
		PageID:  pageID,
		Logger:  c.logger,
		Metrics: c.metrics,
	})
	if err != nil {
		return nil, err
	}
	execRes, err := executor.Execute(ctx, plan)
	if err != nil {
		// The executor stops at the first failed write; the counts it
		// accumulated tell the caller which mutations already landed.
		return &SyncResult{
			Strategy:   strategy,
			Kept:       execRes.Kept,
			Updated:    execRes.Updated,
			Inserted:   execRes.Inserted,
			Deleted:    execRes.Deleted,
			Replaced:   execRes.Replaced,
			Uploaded:   uploaded,
			Reuploaded: reuploaded,
		}, fmt.Errorf("execute plan for %s: %w", pageID, err)
	}

	if err := c.saveState(ctx, pageID, desiredHash); err != nil && c.logger != nil {
		c.logger.Printf("pagesync: persisting state for %s failed: %v", pageID, err)
	}

	c.metrics.Timing("sync.duration", float64(c.now().Sub(started).Milliseconds()), map[string]string{"strategy": strategy})
	return &SyncResult{
		Strategy:   strategy,
		Kept:       execRes.Kept,
		Updated:    execRes.Updated,
		Inserted:   execRes.Inserted,
		Deleted:    execRes.Deleted,
		Replaced:   execRes.Replaced,
		Uploaded:   uploaded,
		Reuploaded: reuploaded,
	}, nil
}

// Close releases the state backend, if any.
func (c *Client) Close() error {
	if c.states == nil {
		return nil
	}
	return c.states.Close()
}

// canSkip reports whether the page already reflects the desired tree: the
// stored state matches both the current remote marker and the desired hash.
func (c *Client) canSkip(ctx context.Context, pageID string, before diff.Snapshot, desiredHash string) (bool, error) {
	if c.states == nil {
		return false, nil
	}
	prev, err := c.states.Load(ctx, pageID)
	if err != nil {
		return false, fmt.Errorf("load state for %s: %w", pageID, err)
	}
	if prev == nil {
		return false, nil
	}
	if prev.DesiredHash != desiredHash {
		return false, nil
	}
	stored := diff.Snapshot{PageID: pageID, LastEdited: prev.LastEdited, BlockEtags: prev.BlockEtags}
	return !diff.DetectConflict(stored, before), nil
}

func (c *Client) saveState(ctx context.Context, pageID, desiredHash string) error {
	if c.states == nil {
		return nil
	}
	// Snapshot the post-execution remote state so the next run can compare
	// against what this run left behind.
	after, err := c.snapshot(ctx, pageID)
	if err != nil {
		return err
	}
	return c.states.Save(ctx, &state.PageState{
		PageID:      pageID,
		LastEdited:  after.LastEdited,
		BlockEtags:  after.BlockEtags,
		DesiredHash: desiredHash,
		SyncedAt:    c.now().UTC(),
	})
}

// snapshot captures the page marker and shallow block etags.
func (c *Client) snapshot(ctx context.Context, pageID string) (diff.Snapshot, error) {
	page, err := c.api.RetrievePage(ctx, pageID)
	if err != nil {
		return diff.Snapshot{}, err
	}
	children, err := c.api.ListChildren(ctx, pageID)
	if err != nil {
		return diff.Snapshot{}, err
	}
	etags := make(map[string]string, len(children))
	for _, child := range children {
		if child.LastEditedTime != "" {
			etags[child.ID] = child.LastEditedTime
		}
	}
	return diff.TakeSnapshot(pageID, notion.ParseEditedTime(page.LastEditedTime), etags), nil
}

// resolveAttachments uploads every unresolved attachment in the desired
// tree and patches the owning blocks' payloads. All failures are collected;
// any failure aborts the sync before the plan is executed.
func (c *Client) resolveAttachments(ctx context.Context, desired []*diff.Block) (int, int, error) {
	var pending []*upload.Pending
	var owners []*diff.Block
	var failures []error

	limits := upload.Limits{
		AllowedUpload:   typeSet(c.cfg.AllowedUploadTypes),
		AllowedExternal: typeSet(c.cfg.AllowedExternalTypes),
		MaxSizeBytes:    c.cfg.MaxMediaBytes,
	}

	walkBlocks(desired, func(block *diff.Block) {
		if block.Attachment == nil || block.Attachment.Resolved() {
			return
		}
		source := block.Attachment.Source
		sourceType := upload.DetectSource(source)

		switch sourceType {
		case upload.SourceExternalURL:
			if _, _, err := upload.Validate(source, sourceType, nil, limits); err != nil {
				failures = append(failures, err)
				return
			}
			block.Payload = notion.ExternalFileBlock(source)
			block.Attachment = nil
		case upload.SourceLocalFile, upload.SourceDataURI:
			if !c.cfg.UploadEnabled {
				failures = append(failures, fmt.Errorf("uploads disabled, cannot resolve %s", source))
				return
			}
			var data []byte
			if sourceType == upload.SourceLocalFile {
				var err error
				data, err = os.ReadFile(source)
				if err != nil {
					failures = append(failures, fmt.Errorf("read attachment: %w", err))
					return
				}
			}
			mediaType, payload, err := upload.Validate(source, sourceType, data, limits)
			if err != nil {
				failures = append(failures, err)
				return
			}
			pending = append(pending, &upload.Pending{
				Source:      source,
				Name:        attachmentName(source, sourceType),
				ContentType: mediaType,
				Data:        payload,
				SM:          upload.NewStateMachine(""),
			})
			owners = append(owners, block)
		default:
			failures = append(failures, fmt.Errorf("unrecognized attachment source %q", source))
		}
	})

	uploaded, reuploaded := 0, 0
	if len(pending) > 0 {
		outcomes := c.uploader.UploadAll(ctx, pending)
		for i, outcome := range outcomes {
			if outcome.Err != nil {
				failures = append(failures, outcome.Err)
				continue
			}
			owners[i].Attachment.UploadID = outcome.UploadID
			owners[i].Payload = notion.UploadedFileBlock(outcome.UploadID)
			uploaded++
			if outcome.Reattempted {
				reuploaded++
			}
		}
	}

	if len(failures) > 0 {
		return uploaded, reuploaded, fmt.Errorf("%w: %w", ErrUpload, errors.Join(failures...))
	}
	return uploaded, reuploaded, nil
}

func walkBlocks(blocks []*diff.Block, fn func(*diff.Block)) {
	for _, block := range blocks {
		fn(block)
		walkBlocks(block.Children, fn)
	}
}

func attachmentName(source string, sourceType upload.SourceType) string {
	if sourceType == upload.SourceDataURI {
		return "inline"
	}
	name := filepath.Base(source)
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}

// hashTree fingerprints the desired tree for skip detection.
func hashTree(blocks []*diff.Block) string {
	h := sha256.New()
	var walk func(blocks []*diff.Block, depth int)
	walk = func(blocks []*diff.Block, depth int) {
		for _, block := range blocks {
			sig := diff.Compute(block, depth)
			fmt.Fprintf(h, "%s|%s|%s|%s|%d\n", sig.Kind, sig.ContentHash, sig.ShapeHash, sig.AttrsHash, sig.Depth)
			walk(block.Children, depth+1)
		}
	}
	walk(blocks, 0)
	return hex.EncodeToString(h.Sum(nil))
}
