package diff

// OpType discriminates planned mutations.
type OpType int

const (
	OpKeep OpType = iota
	OpUpdate
	OpReplace
	OpInsert
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpKeep:
		return "keep"
	case OpUpdate:
		return "update"
	case OpReplace:
		return "replace"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one planned mutation.
//
// KEEP carries no payload and triggers no remote call. REPLACE is logically
// DELETE+INSERT and is never treated as a content patch. After names the
// nearest preceding sibling that already exists remotely; the executor
// refines it with IDs created earlier in the same run.
type Op struct {
	Type       OpType
	ExistingID string
	Block      *Block // desired payload, set for INSERT/UPDATE/REPLACE
	After      string
	ParentID   string // empty means the page root
	Depth      int

	existing    *Block
	desired     *Block
	existingIdx int
	desiredIdx  int
}

// DefaultMinMatchRatio is the fallback threshold below which a subtree plan
// is discarded in favour of a full overwrite.
const DefaultMinMatchRatio = 0.3

// Planner combines the signature engine and the sequence matcher into an
// ordered operation plan per tree level.
type Planner struct {
	minMatchRatio float64
}

func NewPlanner(minMatchRatio float64) *Planner {
	if minMatchRatio <= 0 {
		minMatchRatio = DefaultMinMatchRatio
	}
	return &Planner{minMatchRatio: minMatchRatio}
}

// Plan computes the ordered operations transforming existing into desired.
// KEEP and UPDATE parents recurse into their children; REPLACE parents do
// not, their subtree is rebuilt wholesale from the inserted payload.
func (p *Planner) Plan(existing, desired []*Block) []Op {
	return p.planLevel(existing, desired, 0, "")
}

// FullReplace plans an unconditional overwrite: delete every existing
// block, insert every desired one. Used directly by conflict fallback.
func (p *Planner) FullReplace(existing, desired []*Block) []Op {
	return fullOverwrite(existing, desired, 0, "")
}

func (p *Planner) planLevel(existing, desired []*Block, depth int, parentID string) []Op {
	if len(existing) == 0 && len(desired) == 0 {
		return nil
	}
	if len(existing) == 0 {
		ops := make([]Op, 0, len(desired))
		for _, block := range desired {
			ops = append(ops, Op{Type: OpInsert, Block: block, ParentID: parentID, Depth: depth, desired: block})
		}
		return ops
	}
	if len(desired) == 0 {
		ops := make([]Op, 0, len(existing))
		for _, block := range existing {
			ops = append(ops, Op{Type: OpDelete, ExistingID: block.ID, ParentID: parentID, Depth: depth, existing: block})
		}
		return ops
	}

	existingSigs := make([]Signature, len(existing))
	for i, block := range existing {
		existingSigs[i] = Compute(block, depth)
	}
	desiredSigs := make([]Signature, len(desired))
	for j, block := range desired {
		desiredSigs[j] = Compute(block, depth)
	}

	res := Match(existingSigs, desiredSigs)

	maxLen := len(existing)
	if len(desired) > maxLen {
		maxLen = len(desired)
	}
	var ops []Op
	if float64(len(res.Pairs))/float64(maxLen) < p.minMatchRatio {
		ops = fullOverwrite(existing, desired, depth, parentID)
	} else {
		ops = p.walkAnchors(existing, desired, res, depth, parentID)
	}
	ops = upgradeAdjacent(ops, existingSigs, desiredSigs)
	return p.finalize(ops, depth, parentID)
}

// walkAnchors emits KEEP for each matched pair and interleaves DELETE and
// INSERT for unmatched blocks between anchors, preserving document order.
func (p *Planner) walkAnchors(existing, desired []*Block, res MatchResult, depth int, parentID string) []Op {
	matchedOld := make(map[int]bool, len(res.Pairs))
	matchedNew := make(map[int]bool, len(res.Pairs))
	for _, pair := range res.Pairs {
		matchedOld[pair[0]] = true
		matchedNew[pair[1]] = true
	}

	var ops []Op
	ePtr, dPtr := 0, 0
	emitGap := func(eStop, dStop int) {
		for ePtr < eStop {
			if !matchedOld[ePtr] {
				ops = append(ops, Op{Type: OpDelete, ExistingID: existing[ePtr].ID, ParentID: parentID, Depth: depth, existing: existing[ePtr], existingIdx: ePtr})
			}
			ePtr++
		}
		for dPtr < dStop {
			if !matchedNew[dPtr] {
				ops = append(ops, Op{Type: OpInsert, Block: desired[dPtr], ParentID: parentID, Depth: depth, desired: desired[dPtr], desiredIdx: dPtr})
			}
			dPtr++
		}
	}

	for _, pair := range res.Pairs {
		emitGap(pair[0], pair[1])
		ops = append(ops, Op{
			Type:       OpKeep,
			ExistingID: existing[pair[0]].ID,
			ParentID:   parentID,
			Depth:      depth,
			existing:   existing[pair[0]],
			desired:    desired[pair[1]],
		})
		ePtr, dPtr = pair[0]+1, pair[1]+1
	}
	emitGap(len(existing), len(desired))
	return ops
}

// upgradeAdjacent pairs each adjacent DELETE+INSERT whose blocks carry the
// same content. Same kind means only attributes or child shape changed and
// the block is patchable in place (UPDATE); a kind change is never safely
// patchable and becomes REPLACE. Pairs with differing content stay as
// separate DELETE and INSERT ops.
func upgradeAdjacent(ops []Op, existingSigs, desiredSigs []Signature) []Op {
	result := make([]Op, 0, len(ops))
	i := 0
	for i < len(ops) {
		if i+1 < len(ops) && ops[i].Type == OpDelete && ops[i+1].Type == OpInsert {
			del, ins := ops[i], ops[i+1]
			delSig := existingSigs[del.existingIdx]
			insSig := desiredSigs[ins.desiredIdx]
			if delSig.ContentHash == insSig.ContentHash {
				opType := OpReplace
				if del.existing.Kind == ins.desired.Kind {
					opType = OpUpdate
				}
				result = append(result, Op{
					Type:       opType,
					ExistingID: del.ExistingID,
					Block:      ins.desired,
					ParentID:   del.ParentID,
					Depth:      del.Depth,
					existing:   del.existing,
					desired:    ins.desired,
				})
				i += 2
				continue
			}
		}
		result = append(result, ops[i])
		i++
	}
	return result
}

// finalize assigns insert anchors and splices in child plans for KEEP and
// UPDATE pairs. REPLACE subtrees are never recursed into.
func (p *Planner) finalize(ops []Op, depth int, parentID string) []Op {
	out := make([]Op, 0, len(ops))
	lastAnchor := ""
	for _, op := range ops {
		switch op.Type {
		case OpKeep, OpUpdate:
			out = append(out, op)
			lastAnchor = op.ExistingID
			if op.existing != nil && op.desired != nil &&
				(len(op.existing.Children) > 0 || len(op.desired.Children) > 0) {
				out = append(out, p.planLevel(op.existing.Children, op.desired.Children, depth+1, op.ExistingID)...)
			}
		case OpInsert, OpReplace:
			op.After = lastAnchor
			out = append(out, op)
		default:
			out = append(out, op)
		}
	}
	return out
}

func fullOverwrite(existing, desired []*Block, depth int, parentID string) []Op {
	ops := make([]Op, 0, len(existing)+len(desired))
	for i, block := range existing {
		ops = append(ops, Op{Type: OpDelete, ExistingID: block.ID, ParentID: parentID, Depth: depth, existing: block, existingIdx: i})
	}
	for j, block := range desired {
		ops = append(ops, Op{Type: OpInsert, Block: block, ParentID: parentID, Depth: depth, desired: block, desiredIdx: j})
	}
	return ops
}
