package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

type scriptedCompleter struct {
	responses []string
	err       error
	calls     int
}

func (c *scriptedCompleter) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return `{"decision": "ALLOW"}`, nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func testPolicy(id string) Policy {
	return Policy{
		ID:      id,
		Name:    "policy " + id,
		Content: "No discussing embargoed launches.",
		Scope:   ScopeGlobal,
		Enabled: true,
	}
}

func TestEvaluateOne_Block(t *testing.T) {
	c := &scriptedCompleter{responses: []string{`{"decision": "BLOCK", "reason": "mentions the launch"}`}}
	e := NewEvaluator(c, Config{})

	d := e.EvaluateOne(context.Background(), testPolicy("p1"), "about the launch", "")
	if d.Allowed {
		t.Fatal("expected block")
	}
	if d.Reason != "mentions the launch" {
		t.Errorf("reason: got %q", d.Reason)
	}
}

func TestEvaluateOne_DecisionBuriedInProse(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"Let me think about this.\n```json\n{\"decision\": \"BLOCK\", \"reason\": \"off topic\"}\n```\nDone.",
	}}
	e := NewEvaluator(c, Config{})

	d := e.EvaluateOne(context.Background(), testPolicy("p1"), "hi", "")
	if d.Allowed {
		t.Error("expected decision extracted from surrounding prose")
	}
}

func TestEvaluateOne_UnparseableDefaultsToAllow(t *testing.T) {
	for _, resp := range []string{
		"I cannot decide.",
		`{"verdict": "BLOCK"}`,
		`{"decision": "MAYBE"}`,
		"",
	} {
		c := &scriptedCompleter{responses: []string{resp}}
		e := NewEvaluator(c, Config{})
		d := e.EvaluateOne(context.Background(), testPolicy("p1"), "hi", "")
		if !d.Allowed {
			t.Errorf("response %q must never silently block", resp)
		}
	}
}

func TestEvaluateOne_CaseInsensitiveDecision(t *testing.T) {
	c := &scriptedCompleter{responses: []string{`{"decision": "block"}`}}
	e := NewEvaluator(c, Config{})
	d := e.EvaluateOne(context.Background(), testPolicy("p1"), "hi", "")
	if d.Allowed {
		t.Error("lowercase decision should be honored")
	}
	if d.Reason == "" {
		t.Error("expected a fallback reason for a block without one")
	}
}

func TestEvaluateOne_FailOpen(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("model unavailable")}
	e := NewEvaluator(c, Config{})

	p := testPolicy("p1")
	p.FailBehavior = FailOpen
	d := e.EvaluateOne(context.Background(), p, "hi", "")
	if !d.Allowed {
		t.Error("fail-open policy should allow on evaluation error")
	}
	if d.Err == nil {
		t.Error("error should be surfaced for logging")
	}
}

func TestEvaluateOne_FailClosed(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("model unavailable")}
	e := NewEvaluator(c, Config{})

	p := testPolicy("p1")
	p.FailBehavior = FailClosed
	d := e.EvaluateOne(context.Background(), p, "hi", "")
	if d.Allowed {
		t.Error("fail-closed policy should block on evaluation error")
	}
	if d.Reason == "" || errors.Is(d.Err, nil) {
		t.Error("expected generic reason and separate error")
	}
	if d.Reason == d.Err.Error() {
		t.Error("underlying error must not leak into the reason")
	}
}

func TestEvaluateMany_ShortCircuit(t *testing.T) {
	c := &scriptedCompleter{responses: []string{`{"decision": "BLOCK", "reason": "nope"}`}}
	e := NewEvaluator(c, Config{})

	p1 := testPolicy("p1")
	p2 := testPolicy("p2")
	out := e.EvaluateMany(context.Background(), []Policy{p1, p2}, "hi", "")
	if out.Allowed {
		t.Fatal("expected block")
	}
	if c.calls != 1 {
		t.Errorf("capability invoked %d times, want 1 (short-circuit)", c.calls)
	}
	if out.BlockingPolicyID != "p1" || out.BlockingPolicyName != "policy p1" {
		t.Errorf("blocking policy: got %q/%q", out.BlockingPolicyID, out.BlockingPolicyName)
	}
}

func TestEvaluateMany_OrderReversed(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{"decision": "ALLOW"}`,
		`{"decision": "BLOCK", "reason": "nope"}`,
	}}
	e := NewEvaluator(c, Config{})

	out := e.EvaluateMany(context.Background(), []Policy{testPolicy("p2"), testPolicy("p1")}, "hi", "")
	if out.Allowed {
		t.Fatal("expected block from second policy")
	}
	if c.calls != 2 {
		t.Errorf("capability invoked %d times, want 2", c.calls)
	}
	if out.BlockingPolicyID != "p1" {
		t.Errorf("blocking policy: got %q, want p1", out.BlockingPolicyID)
	}
}

func TestEvaluateMany_ZeroPolicies(t *testing.T) {
	c := &scriptedCompleter{}
	e := NewEvaluator(c, Config{})

	out := e.EvaluateMany(context.Background(), nil, "hi", "")
	if !out.Allowed {
		t.Error("zero policies should always allow")
	}
	if c.calls != 0 {
		t.Errorf("capability invoked %d times, want 0", c.calls)
	}
}

func TestApplicable(t *testing.T) {
	global := testPolicy("global")
	global.Priority = 1

	inboundOnly := testPolicy("inbound-only")
	inboundOnly.Direction = DirectionInbound
	inboundOnly.Priority = 5

	disabled := testPolicy("disabled")
	disabled.Enabled = false

	userScoped := testPolicy("user")
	userScoped.Scope = ScopeUser
	userScoped.TargetUser = "bob"
	userScoped.Priority = 3

	groupScoped := testPolicy("group")
	groupScoped.Scope = ScopeGroup
	groupScoped.TargetGroup = "g-9"

	all := []Policy{global, inboundOnly, disabled, userScoped, groupScoped}

	got := Applicable(all, policy.DirectionInbound, Target{Peer: "bob", Group: "g-1"})
	want := []string{"inbound-only", "user", "global"}
	if len(got) != len(want) {
		t.Fatalf("got %d policies, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %q, want %q (priority order)", i, got[i].ID, id)
		}
	}

	got = Applicable(all, policy.DirectionOutbound, Target{Peer: "carol"})
	if len(got) != 1 || got[0].ID != "global" {
		t.Errorf("outbound for carol: got %v", got)
	}
}
