package gate

import "fmt"

// Evaluation stages a message can be halted at.
const (
	StageHeuristic = "heuristic"
	StageSemantic  = "semantic"
)

// PolicyViolationError reports a message halted by policy. It is a normal
// outcome of gating, not a system failure.
type PolicyViolationError struct {
	Stage      string
	Reason     string
	PolicyID   string
	PolicyName string
}

func (e *PolicyViolationError) Error() string {
	if e.PolicyName != "" {
		return fmt.Sprintf("blocked by %s policy %q: %s", e.Stage, e.PolicyName, e.Reason)
	}
	return fmt.Sprintf("blocked by %s policy: %s", e.Stage, e.Reason)
}
