package notion

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Page carries the fields of a remote page that pagesync needs: identity
// and the last-modification marker used for conflict detection.
type Page struct {
	ID             string `json:"id"`
	LastEditedTime string `json:"last_edited_time"`
	URL            string `json:"url"`
}

// RetrievePage fetches a page object.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (Page, error) {
	var page Page
	path := fmt.Sprintf("/pages/%s", url.PathEscape(pageID))
	err := c.t.DoJSON(ctx, "GET", path, nil, &page)
	return page, err
}

// ParseEditedTime converts a last_edited_time marker into a time.Time.
// Returns the zero time when the marker is empty or malformed.
func ParseEditedTime(marker string) time.Time {
	if marker == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, marker)
	if err != nil {
		return time.Time{}
	}
	return ts
}
