package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// MaxBlocksPerAppend is the remote ceiling on blocks per append call.
// Callers batching inserts must split above this.
const MaxBlocksPerAppend = 100

// BlockData is one remote block as returned by the children listing. Raw
// holds the full payload; pagesync only inspects the fields needed for
// signatures and conflict detection.
type BlockData struct {
	ID             string
	Kind           string
	HasChildren    bool
	LastEditedTime string
	Raw            json.RawMessage
}

// Client is the typed API surface used by the diff executor, the upload
// orchestrator, and the sync client. All calls go through the shared
// Transport.
type Client struct {
	t *Transport
}

func NewClient(t *Transport) *Client {
	return &Client{t: t}
}

type listChildrenResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor *string           `json:"next_cursor"`
}

type blockEnvelope struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	HasChildren    bool   `json:"has_children"`
	LastEditedTime string `json:"last_edited_time"`
}

// ListChildren fetches every child block of parentID, transparently
// following pagination cursors until exhausted.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]BlockData, error) {
	var blocks []BlockData
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", "100")
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var page listChildrenResponse
		path := fmt.Sprintf("/blocks/%s/children?%s", url.PathEscape(parentID), q.Encode())
		if err := c.t.DoJSON(ctx, "GET", path, nil, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Results {
			var env blockEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, err
			}
			blocks = append(blocks, BlockData{
				ID:             env.ID,
				Kind:           env.Type,
				HasChildren:    env.HasChildren,
				LastEditedTime: env.LastEditedTime,
				Raw:            raw,
			})
		}
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			break
		}
		cursor = *page.NextCursor
	}
	return blocks, nil
}

// UpdateBlock patches an existing block's content with the given payload.
func (c *Client) UpdateBlock(ctx context.Context, blockID string, payload json.RawMessage) error {
	path := fmt.Sprintf("/blocks/%s", url.PathEscape(blockID))
	return c.t.DoJSON(ctx, "PATCH", path, payload, nil)
}

// DeleteBlock archives a block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	path := fmt.Sprintf("/blocks/%s", url.PathEscape(blockID))
	return c.t.DoJSON(ctx, "DELETE", path, nil, nil)
}

type appendChildrenRequest struct {
	Children []json.RawMessage `json:"children"`
	After    string            `json:"after,omitempty"`
}

// AppendChildren appends blocks under parentID, positioned after the block
// named by after when non-empty. At most MaxBlocksPerAppend blocks are
// accepted per call; batching above the ceiling is the caller's job.
// Returns the IDs of the created blocks in order.
func (c *Client) AppendChildren(ctx context.Context, parentID, after string, blocks []json.RawMessage) ([]string, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	if len(blocks) > MaxBlocksPerAppend {
		return nil, fmt.Errorf("%w: %d blocks exceeds append ceiling of %d", ErrValidation, len(blocks), MaxBlocksPerAppend)
	}
	path := fmt.Sprintf("/blocks/%s/children", url.PathEscape(parentID))
	var resp listChildrenResponse
	err := c.t.DoJSON(ctx, "PATCH", path, appendChildrenRequest{Children: blocks, After: after}, &resp)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var env blockEnvelope
		if json.Unmarshal(raw, &env) == nil && env.ID != "" {
			ids = append(ids, env.ID)
		}
	}
	return ids, nil
}

// UploadedFileBlock builds an image block payload referencing a completed
// upload slot.
func UploadedFileBlock(uploadID string) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{
		"type": "image",
		"image": map[string]any{
			"type": "file_upload",
			"file_upload": map[string]any{
				"id": uploadID,
			},
		},
	})
	return payload
}

// ExternalFileBlock builds an image block payload for an external URL.
func ExternalFileBlock(imageURL string) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{
		"type": "image",
		"image": map[string]any{
			"type": "external",
			"external": map[string]any{
				"url": imageURL,
			},
		},
	})
	return payload
}
