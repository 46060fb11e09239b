package diff

import "testing"

func para(id, text string) *Block {
	return &Block{ID: id, Kind: "paragraph", Text: text}
}

func opTypes(ops []Op) []OpType {
	types := make([]OpType, len(ops))
	for i, op := range ops {
		types[i] = op.Type
	}
	return types
}

func TestPlanIdenticalTrees(t *testing.T) {
	existing := []*Block{para("b1", "hello"), para("b2", "world"), {ID: "b3", Kind: "heading_1", Text: "title"}}
	desired := []*Block{para("", "hello"), para("", "world"), {Kind: "heading_1", Text: "title"}}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d: %v", len(ops), opTypes(ops))
	}
	for i, op := range ops {
		if op.Type != OpKeep {
			t.Fatalf("op %d is %s, want keep", i, op.Type)
		}
		if op.ExistingID != existing[i].ID {
			t.Fatalf("op %d targets %q, want %q", i, op.ExistingID, existing[i].ID)
		}
	}
}

func TestPlanEmptySides(t *testing.T) {
	p := NewPlanner(0)
	if ops := p.Plan(nil, nil); ops != nil {
		t.Fatalf("empty inputs should plan nothing, got %v", opTypes(ops))
	}

	ops := p.Plan(nil, []*Block{para("", "a"), para("", "b")})
	if len(ops) != 2 || ops[0].Type != OpInsert || ops[1].Type != OpInsert {
		t.Fatalf("expected two inserts, got %v", opTypes(ops))
	}

	ops = p.Plan([]*Block{para("b1", "a")}, nil)
	if len(ops) != 1 || ops[0].Type != OpDelete || ops[0].ExistingID != "b1" {
		t.Fatalf("expected delete of b1, got %+v", ops)
	}
}

func TestPlanTailEdit(t *testing.T) {
	existing := []*Block{para("b1", "hello"), para("b2", "world")}
	desired := []*Block{para("", "hello"), para("", "new")}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 3 {
		t.Fatalf("expected keep/delete/insert, got %v", opTypes(ops))
	}
	if ops[0].Type != OpKeep || ops[0].ExistingID != "b1" {
		t.Fatalf("op 0 = %+v, want keep b1", ops[0])
	}
	if ops[1].Type != OpDelete || ops[1].ExistingID != "b2" {
		t.Fatalf("op 1 = %+v, want delete b2", ops[1])
	}
	if ops[2].Type != OpInsert || ops[2].After != "b1" {
		t.Fatalf("op 2 = %+v, want insert after b1", ops[2])
	}
}

func TestPlanKindChangeReplace(t *testing.T) {
	existing := []*Block{{ID: "b1", Kind: "heading_1", Text: "x"}}
	desired := []*Block{{Kind: "paragraph", Text: "x"}}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 1 || ops[0].Type != OpReplace {
		t.Fatalf("expected single replace, got %v", opTypes(ops))
	}
	if ops[0].ExistingID != "b1" || ops[0].Block == nil || ops[0].Block.Kind != "paragraph" {
		t.Fatalf("replace op malformed: %+v", ops[0])
	}
}

func TestPlanAttrChangeUpdate(t *testing.T) {
	existing := []*Block{{ID: "b1", Kind: "to_do", Text: "task", Attrs: map[string]string{"checked": "false"}}}
	desired := []*Block{{Kind: "to_do", Text: "task", Attrs: map[string]string{"checked": "true"}}}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 1 || ops[0].Type != OpUpdate {
		t.Fatalf("expected single update, got %v", opTypes(ops))
	}
	if ops[0].ExistingID != "b1" {
		t.Fatalf("update targets %q, want b1", ops[0].ExistingID)
	}
}

func TestPlanNoReplaceCarriesSameKind(t *testing.T) {
	existing := []*Block{
		{ID: "b1", Kind: "heading_1", Text: "a"},
		para("b2", "a"),
		para("b3", "b"),
	}
	desired := []*Block{
		para("", "a"),
		{Kind: "heading_2", Text: "a"},
		para("", "c"),
	}

	ops := NewPlanner(0).Plan(existing, desired)
	for i, op := range ops {
		if op.Type != OpReplace {
			continue
		}
		if op.existing != nil && op.Block != nil && op.existing.Kind == op.Block.Kind {
			t.Fatalf("op %d: replace pairs same kind %q", i, op.Block.Kind)
		}
	}
}

func TestPlanLowRatioFullOverwrite(t *testing.T) {
	existing := make([]*Block, 10)
	desired := make([]*Block, 10)
	for i := 0; i < 10; i++ {
		existing[i] = &Block{ID: "b", Kind: "paragraph", Text: "old content"}
		desired[i] = &Block{Kind: "heading_2", Text: "new content"}
	}
	// One survivor keeps the trees related without lifting the ratio.
	existing[0] = para("b0", "same")
	desired[0] = para("", "same")

	ops := NewPlanner(0).Plan(existing, desired)
	for i, op := range ops {
		if op.Type == OpKeep || op.Type == OpUpdate {
			t.Fatalf("op %d is %s; low-ratio plan should not attempt reuse", i, op.Type)
		}
	}
	deletes, inserts := 0, 0
	for _, op := range ops {
		switch op.Type {
		case OpDelete:
			deletes++
		case OpInsert:
			inserts++
		}
	}
	if deletes != 10 || inserts != 10 {
		t.Fatalf("expected full overwrite (10 deletes, 10 inserts), got %d/%d: %v", deletes, inserts, opTypes(ops))
	}
}

func TestPlanRecursesIntoKeptChildren(t *testing.T) {
	existing := []*Block{{
		ID:       "t1",
		Kind:     "toggle",
		Text:     "details",
		Children: []*Block{para("c1", "inner old")},
	}}
	desired := []*Block{{
		Kind:     "toggle",
		Text:     "details",
		Children: []*Block{para("", "inner new")},
	}}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 3 {
		t.Fatalf("expected keep + child delete/insert, got %v", opTypes(ops))
	}
	if ops[0].Type != OpKeep || ops[0].ExistingID != "t1" {
		t.Fatalf("op 0 = %+v, want keep t1", ops[0])
	}
	for _, op := range ops[1:] {
		if op.ParentID != "t1" || op.Depth != 1 {
			t.Fatalf("child op not scoped to parent: %+v", op)
		}
	}
}

func TestPlanNeverRecursesIntoReplacedSubtree(t *testing.T) {
	existing := []*Block{{
		ID:       "t1",
		Kind:     "toggle",
		Text:     "details",
		Children: []*Block{para("c1", "inner")},
	}}
	desired := []*Block{{
		Kind:     "callout",
		Text:     "details",
		Children: []*Block{para("", "inner")},
	}}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 1 || ops[0].Type != OpReplace {
		t.Fatalf("expected single replace of the whole subtree, got %v", opTypes(ops))
	}
}

func TestPlanInsertInMiddleAnchoredToPredecessor(t *testing.T) {
	existing := []*Block{para("b1", "one"), para("b2", "two"), para("b3", "three")}
	desired := []*Block{para("", "one"), para("", "two"), para("", "extra!"), para("", "three")}

	ops := NewPlanner(0).Plan(existing, desired)
	if len(ops) != 4 {
		t.Fatalf("expected 4 ops, got %v", opTypes(ops))
	}
	if ops[2].Type != OpInsert || ops[2].After != "b2" {
		t.Fatalf("insert not anchored after b2: %+v", ops[2])
	}
	if ops[3].Type != OpKeep || ops[3].ExistingID != "b3" {
		t.Fatalf("trailing block should be kept: %+v", ops[3])
	}
}
