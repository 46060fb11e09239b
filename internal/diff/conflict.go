package diff

import "time"

// Snapshot captures a page's remote edit state at one instant: the page
// level last-edited marker plus a per-block etag map.
type Snapshot struct {
	PageID     string
	LastEdited time.Time
	BlockEtags map[string]string
}

// TakeSnapshot assembles a snapshot from the page marker and the block list
// the caller already fetched. Each block's last-edited marker doubles as its
// etag.
func TakeSnapshot(pageID string, lastEdited time.Time, blockEtags map[string]string) Snapshot {
	etags := make(map[string]string, len(blockEtags))
	for id, etag := range blockEtags {
		etags[id] = etag
	}
	return Snapshot{PageID: pageID, LastEdited: lastEdited, BlockEtags: etags}
}

// DetectConflict reports whether the page changed between the two snapshots.
// Any of the following is a conflict: the page marker moved, a block's etag
// changed, or a block is present in one snapshot but not the other. Equal
// snapshots never conflict.
func DetectConflict(before, after Snapshot) bool {
	if !before.LastEdited.Equal(after.LastEdited) {
		return true
	}
	for id, etag := range before.BlockEtags {
		got, ok := after.BlockEtags[id]
		if !ok || got != etag {
			return true
		}
	}
	for id := range after.BlockEtags {
		if _, ok := before.BlockEtags[id]; !ok {
			return true
		}
	}
	return false
}
