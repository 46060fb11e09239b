package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signature is an immutable structural fingerprint of one block. Two blocks
// with equal signatures are interchangeable for diff purposes; collisions
// are an accepted, bounded risk of the content hash.
type Signature struct {
	Kind        string
	ContentHash string
	ShapeHash   string
	AttrsHash   string
	Depth       int
}

// Compute derives the signature of a block at the given nesting depth. Pure
// and deterministic: structurally identical blocks always hash identically,
// across calls and processes.
func Compute(b *Block, depth int) Signature {
	return Signature{
		Kind:        b.Kind,
		ContentHash: hashString(b.Text),
		ShapeHash:   hashString(childShape(b)),
		AttrsHash:   hashString(attrString(b.Attrs)),
		Depth:       depth,
	}
}

// childShape summarises the immediate children: count plus each child's
// kind in order. Not recursive; nested content differences are caught when
// the planner recurses.
func childShape(b *Block) string {
	if len(b.Children) == 0 {
		return fmt.Sprintf("count=0;has_children=%t", b.HasChildren)
	}
	kinds := make([]string, len(b.Children))
	for i, child := range b.Children {
		kinds[i] = child.Kind
	}
	return fmt.Sprintf("count=%d;kinds=%s", len(b.Children), strings.Join(kinds, ","))
}

func attrString(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k]
	}
	return strings.Join(parts, ";")
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
