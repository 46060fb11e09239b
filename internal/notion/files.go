package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Upload slot modes.
const (
	UploadModeSinglePart = "single_part"
	UploadModeMultiPart  = "multi_part"
)

// Remote upload slot statuses.
const (
	UploadStatusPending  = "pending"
	UploadStatusUploaded = "uploaded"
	UploadStatusExpired  = "expired"
)

// UploadSlot is a created upload slot. UploadURL receives the bytes for a
// single-part transfer; PartURLs receive the chunks of a multi-part one.
type UploadSlot struct {
	ID         string   `json:"id"`
	UploadURL  string   `json:"upload_url"`
	PartURLs   []string `json:"part_upload_urls"`
	Status     string   `json:"status"`
	ExpiryTime string   `json:"expiry_time"`
}

// PartTag identifies one transferred chunk of a multi-part upload. Tags are
// collected in part order and handed to CompleteUpload.
type PartTag struct {
	PartNumber int    `json:"part_number"`
	Tag        string `json:"tag,omitempty"`
}

type createUploadRequest struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	Mode          string `json:"mode"`
	NumberOfParts int    `json:"number_of_parts,omitempty"`
}

// CreateUpload creates an upload slot for a named, typed binary. parts is
// only meaningful for multi-part mode.
func (c *Client) CreateUpload(ctx context.Context, name, contentType, mode string, parts int) (UploadSlot, error) {
	var slot UploadSlot
	req := createUploadRequest{
		Filename:    name,
		ContentType: contentType,
		Mode:        mode,
	}
	if mode == UploadModeMultiPart {
		req.NumberOfParts = parts
	}
	err := c.t.DoJSON(ctx, "POST", "/file_uploads", req, &slot)
	return slot, err
}

// SendPart transfers one chunk (or the whole payload, for single-part
// slots) to a slot's upload URL and returns the part tag assigned by the
// remote service.
func (c *Client) SendPart(ctx context.Context, uploadURL string, partNumber int, data []byte, contentType string) (PartTag, error) {
	tag := PartTag{PartNumber: partNumber}
	payload, err := c.t.DoRaw(ctx, "POST", uploadURL, data, contentType)
	if err != nil {
		return tag, err
	}
	if len(payload) > 0 {
		var resp struct {
			Tag string `json:"tag"`
		}
		if json.Unmarshal(payload, &resp) == nil {
			tag.Tag = resp.Tag
		}
	}
	return tag, nil
}

type completeUploadRequest struct {
	Parts []PartTag `json:"parts"`
}

// CompleteUpload finalizes a multi-part slot with the ordered part tags.
func (c *Client) CompleteUpload(ctx context.Context, uploadID string, parts []PartTag) error {
	path := fmt.Sprintf("/file_uploads/%s/complete", url.PathEscape(uploadID))
	return c.t.DoJSON(ctx, "POST", path, completeUploadRequest{Parts: parts}, nil)
}

// GetUpload retrieves a slot's remote status, used to detect expiry before
// attaching.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (UploadSlot, error) {
	var slot UploadSlot
	path := fmt.Sprintf("/file_uploads/%s", url.PathEscape(uploadID))
	err := c.t.DoJSON(ctx, "GET", path, nil, &slot)
	return slot, err
}
