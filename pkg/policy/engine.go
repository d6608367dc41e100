package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Decision is the outcome of a heuristic evaluation. Reasons are generic on
// purpose: they never disclose which keyword or pattern matched.
type Decision struct {
	Allowed bool
	Reason  string
}

// Halt reasons, in the fixed order checks run.
const (
	ReasonTooLong         = "message_too_long"
	ReasonTooShort        = "message_too_short"
	ReasonBlockedKeyword  = "blocked_keyword"
	ReasonBlockedPattern  = "blocked_pattern"
	ReasonContextRequired = "context_required"
)

func allowed() Decision         { return Decision{Allowed: true} }
func blocked(r string) Decision { return Decision{Allowed: false, Reason: r} }

// Evaluate runs the heuristic checks against a message body and its optional
// context. Checks run in a fixed order and short-circuit on the first
// violation, so the reported reason is deterministic:
//
//  1. maximum length
//  2. minimum length (outbound only)
//  3. blocked keywords (case-insensitive)
//  4. blocked patterns (case-insensitive regex; invalid patterns skipped)
//  5. context required (outbound only)
func Evaluate(body, context string, rules Rules, dir Direction) Decision {
	length := utf8.RuneCountInString(body)

	if rules.MaxMessageLength != nil && length > *rules.MaxMessageLength {
		return blocked(ReasonTooLong)
	}

	// A short inbound message is not a policy risk.
	if dir == DirectionOutbound && rules.MinMessageLength != nil && length < *rules.MinMessageLength {
		return blocked(ReasonTooShort)
	}

	if len(rules.BlockedKeywords) > 0 {
		folded := strings.ToLower(body)
		for _, kw := range rules.BlockedKeywords {
			if kw == "" {
				continue
			}
			if strings.Contains(folded, strings.ToLower(kw)) {
				return blocked(ReasonBlockedKeyword)
			}
		}
	}

	for _, pat := range rules.BlockedPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			// An uncompilable pattern must not fail the whole evaluation.
			continue
		}
		if re.MatchString(body) {
			return blocked(ReasonBlockedPattern)
		}
	}

	if dir == DirectionOutbound && rules.RequireContext && strings.TrimSpace(context) == "" {
		return blocked(ReasonContextRequired)
	}

	return allowed()
}
