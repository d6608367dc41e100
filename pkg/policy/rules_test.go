package policy

import "testing"

func TestMerge_StricterWins(t *testing.T) {
	a := Rules{MaxMessageLength: intPtr(2000), MinMessageLength: intPtr(1)}
	b := Rules{MaxMessageLength: intPtr(500), MinMessageLength: intPtr(10)}

	m := Merge(a, b)
	if m.MaxMessageLength == nil || *m.MaxMessageLength != 500 {
		t.Errorf("max: got %v, want 500", m.MaxMessageLength)
	}
	if m.MinMessageLength == nil || *m.MinMessageLength != 10 {
		t.Errorf("min: got %v, want 10", m.MinMessageLength)
	}
}

func TestMerge_PartialBounds(t *testing.T) {
	m := Merge(Rules{}, Rules{MaxMessageLength: intPtr(100)})
	if m.MaxMessageLength == nil || *m.MaxMessageLength != 100 {
		t.Errorf("max: got %v, want 100", m.MaxMessageLength)
	}
	if m.MinMessageLength != nil {
		t.Errorf("min should stay unset, got %v", *m.MinMessageLength)
	}
}

func TestMerge_KeywordUnion(t *testing.T) {
	a := Rules{BlockedKeywords: []string{"alpha", "Beta"}}
	b := Rules{BlockedKeywords: []string{"beta", "gamma"}}

	m := Merge(a, b)
	if len(m.BlockedKeywords) != 3 {
		t.Fatalf("got %d keywords %v, want 3", len(m.BlockedKeywords), m.BlockedKeywords)
	}
	// Union is a superset of each input.
	for _, kw := range []string{"alpha", "Beta", "gamma"} {
		found := false
		for _, got := range m.BlockedKeywords {
			if got == kw {
				found = true
			}
		}
		if !found {
			t.Errorf("keyword %q missing from merged set", kw)
		}
	}
}

func TestMerge_RequireContext(t *testing.T) {
	m := Merge(Rules{}, Rules{RequireContext: true}, Rules{})
	if !m.RequireContext {
		t.Error("require_context should be true if any source sets it")
	}
}

func TestMerge_Cumulative(t *testing.T) {
	// Each subsequent source can only tighten the running result.
	m := Merge(
		Rules{MaxMessageLength: intPtr(1000)},
		Rules{MaxMessageLength: intPtr(300)},
		Rules{MaxMessageLength: intPtr(800)},
	)
	if *m.MaxMessageLength != 300 {
		t.Errorf("max: got %d, want 300", *m.MaxMessageLength)
	}
}

func TestResolve_Modes(t *testing.T) {
	local := Rules{MaxMessageLength: intPtr(100), BlockedKeywords: []string{"local"}}
	remote := []Rules{
		{MaxMessageLength: intPtr(50), BlockedKeywords: []string{"remote"}},
	}

	r := Resolve(local, remote, ModeLocal)
	if *r.MaxMessageLength != 100 || len(r.BlockedKeywords) != 1 {
		t.Errorf("local mode leaked registry rules: %+v", r)
	}

	r = Resolve(local, remote, ModeRegistry)
	if *r.MaxMessageLength != 50 || r.BlockedKeywords[0] != "remote" {
		t.Errorf("registry mode leaked local rules: %+v", r)
	}

	r = Resolve(local, remote, ModeMerged)
	if *r.MaxMessageLength != 50 || len(r.BlockedKeywords) != 2 {
		t.Errorf("merged mode: %+v", r)
	}

	// Unknown mode behaves as merged.
	r = Resolve(local, remote, Mode("bogus"))
	if len(r.BlockedKeywords) != 2 {
		t.Errorf("unknown mode should merge: %+v", r)
	}
}

func TestRulesIsZero(t *testing.T) {
	if !(Rules{}).IsZero() {
		t.Error("empty rules should be zero")
	}
	if (Rules{RequireContext: true}).IsZero() {
		t.Error("require_context makes rules non-zero")
	}
}
