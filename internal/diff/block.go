// Package diff plans and executes the minimal set of remote mutations that
// reconcile a page's current block tree with a desired one.
package diff

import (
	"encoding/json"
	"errors"
)

var ErrValidation = errors.New("invalid diff input")

// AttachmentRef links a block payload to a binary attachment. Source is the
// raw reference discovered during conversion; UploadID is filled in once the
// upload pipeline resolves it. A block carrying an unresolved ref must not
// reach the executor.
type AttachmentRef struct {
	Source   string
	UploadID string
}

// Resolved reports whether the attachment has a usable remote reference.
func (r *AttachmentRef) Resolved() bool {
	return r != nil && r.UploadID != ""
}

// Block is one node of the current or desired document tree. The core reads
// only the fields needed for signatures; Payload stays opaque and is passed
// through to the remote API on writes.
type Block struct {
	// ID is the remote identifier. Present only on current-state blocks.
	ID string

	Kind  string
	Text  string
	Attrs map[string]string

	Children []*Block
	// HasChildren marks blocks whose children exist remotely but were not
	// loaded. Distinguished from an empty loaded child list in signatures.
	HasChildren bool

	// Payload is the opaque write payload supplied by the conversion
	// collaborator, required for INSERT/UPDATE/REPLACE.
	Payload json.RawMessage

	Attachment *AttachmentRef
}
