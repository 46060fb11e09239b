package diff

import "testing"

func sigOf(kind, text string) Signature {
	return Compute(&Block{Kind: kind, Text: text}, 0)
}

func TestMatchIdenticalSequences(t *testing.T) {
	sigs := []Signature{sigOf("paragraph", "a"), sigOf("paragraph", "b"), sigOf("heading_1", "c")}
	res := Match(sigs, sigs)

	if len(res.Pairs) != len(sigs) {
		t.Fatalf("expected %d pairs, got %d", len(sigs), len(res.Pairs))
	}
	if len(res.UnmatchedOld) != 0 || len(res.UnmatchedNew) != 0 {
		t.Fatalf("identical sequences left unmatched entries: %v / %v", res.UnmatchedOld, res.UnmatchedNew)
	}
	for i, pair := range res.Pairs {
		if pair[0] != i || pair[1] != i {
			t.Fatalf("pair %d is %v, want (%d,%d)", i, pair, i, i)
		}
	}
}

func TestMatchPairsStrictlyIncreasing(t *testing.T) {
	old := []Signature{sigOf("paragraph", "a"), sigOf("paragraph", "x"), sigOf("paragraph", "b"), sigOf("paragraph", "c")}
	newSeq := []Signature{sigOf("paragraph", "b"), sigOf("paragraph", "a"), sigOf("paragraph", "c")}
	res := Match(old, newSeq)

	if len(res.Pairs) == 0 {
		t.Fatalf("expected at least one pair")
	}
	for i := 1; i < len(res.Pairs); i++ {
		if res.Pairs[i][0] <= res.Pairs[i-1][0] || res.Pairs[i][1] <= res.Pairs[i-1][1] {
			t.Fatalf("pairs not strictly increasing: %v", res.Pairs)
		}
	}
	for _, pair := range res.Pairs {
		if old[pair[0]] != newSeq[pair[1]] {
			t.Fatalf("pair %v matches unequal signatures", pair)
		}
	}
}

func TestMatchDisjointSequences(t *testing.T) {
	old := []Signature{sigOf("paragraph", "a"), sigOf("paragraph", "b")}
	newSeq := []Signature{sigOf("paragraph", "c")}
	res := Match(old, newSeq)

	if len(res.Pairs) != 0 {
		t.Fatalf("disjoint sequences produced pairs: %v", res.Pairs)
	}
	if len(res.UnmatchedOld) != 2 || len(res.UnmatchedNew) != 1 {
		t.Fatalf("unexpected unmatched sets: %v / %v", res.UnmatchedOld, res.UnmatchedNew)
	}
}

func TestMatchEmptySides(t *testing.T) {
	res := Match(nil, []Signature{sigOf("paragraph", "a")})
	if len(res.Pairs) != 0 || len(res.UnmatchedNew) != 1 {
		t.Fatalf("empty old side mishandled: %+v", res)
	}
	res = Match([]Signature{sigOf("paragraph", "a")}, nil)
	if len(res.Pairs) != 0 || len(res.UnmatchedOld) != 1 {
		t.Fatalf("empty new side mishandled: %+v", res)
	}
}
