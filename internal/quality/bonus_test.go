package quality

import "testing"

func intPtr(v int) *int { return &v }

func TestCrossSourceBonusRaisesScore(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(DefaultConfig())
	next, changed := scorer.CrossSourceBonus(Standing{
		Score: intPtr(70),
		Badge: BadgeWarn,
		Flags: `["LOW_CROSS_SOURCE","NO_EVIDENCE"]`,
	})
	if !changed {
		t.Fatalf("expected change")
	}
	if *next.Score != 85 || next.Badge != BadgeGood {
		t.Fatalf("expected 85 good, got %d %q", *next.Score, next.Badge)
	}
	if next.Flags != `["NO_EVIDENCE"]` {
		t.Fatalf("expected LOW_CROSS_SOURCE stripped, got %s", next.Flags)
	}
}

func TestCrossSourceBonusCapsAtHundred(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(DefaultConfig())
	next, changed := scorer.CrossSourceBonus(Standing{Score: intPtr(95), Badge: BadgeGood, Flags: "[]"})
	if !changed || *next.Score != 100 {
		t.Fatalf("expected capped score 100, got %v changed=%v", *next.Score, changed)
	}

	same, changed := scorer.CrossSourceBonus(Standing{Score: intPtr(100), Badge: BadgeGood, Flags: "[]"})
	if changed || *same.Score != 100 {
		t.Fatalf("expected perfect score untouched, got %d changed=%v", *same.Score, changed)
	}
}

func TestCrossSourceBonusUnscoredOnlyStripsFlag(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(DefaultConfig())
	next, changed := scorer.CrossSourceBonus(Standing{Flags: `["LOW_CROSS_SOURCE"]`})
	if !changed || next.Score != nil || next.Flags != "[]" {
		t.Fatalf("unexpected standing %+v changed=%v", next, changed)
	}
}

func TestStripFlagTextualFallback(t *testing.T) {
	t.Parallel()

	got, stripped := StripFlag(`"NO_EVIDENCE", "LOW_CROSS_SOURCE"`, FlagLowCrossSource)
	if !stripped || got != `"NO_EVIDENCE"` {
		t.Fatalf("unexpected textual strip result %q", got)
	}
	if _, stripped := StripFlag(`["NO_EVIDENCE"]`, FlagLowCrossSource); stripped {
		t.Fatalf("did not expect a strip when flag is absent")
	}
}

func TestUnionFlagsKeepsOrder(t *testing.T) {
	t.Parallel()

	got := UnionFlags([]string{"B", "A"}, []string{"A", "C", " "}, nil)
	if len(got) != 3 || got[0] != "B" || got[1] != "A" || got[2] != "C" {
		t.Fatalf("unexpected union %v", got)
	}
	if EncodeFlags(nil) != "[]" || len(DecodeFlags(`["X"]`)) != 1 || DecodeFlags("nope") != nil {
		t.Fatalf("flag codec mismatch")
	}
}
