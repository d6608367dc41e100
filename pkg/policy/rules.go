// Package policy implements deterministic (heuristic) message policy:
// length bounds, keyword and pattern blocklists, and context requirements,
// plus merging of rule sets from local configuration and the policy registry.
package policy

import "strings"

// Direction is the flow a message is traveling in.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Mode selects which rule sources apply.
type Mode string

const (
	// ModeLocal ignores registry policies entirely.
	ModeLocal Mode = "local"
	// ModeRegistry ignores local configuration entirely.
	ModeRegistry Mode = "registry"
	// ModeMerged combines local configuration with registry policies,
	// each source only ever tightening the result. This is the default.
	ModeMerged Mode = "merged"
)

// Rules is one set of heuristic constraints. Absent fields mean "no
// constraint from this source".
type Rules struct {
	MaxMessageLength *int     `json:"max_message_length,omitempty"`
	MinMessageLength *int     `json:"min_message_length,omitempty"`
	BlockedKeywords  []string `json:"blocked_keywords,omitempty"`
	BlockedPatterns  []string `json:"blocked_patterns,omitempty"`
	RequireContext   bool     `json:"require_context,omitempty"`
}

// IsZero reports whether the rule set carries no constraints.
func (r Rules) IsZero() bool {
	return r.MaxMessageLength == nil && r.MinMessageLength == nil &&
		len(r.BlockedKeywords) == 0 && len(r.BlockedPatterns) == 0 &&
		!r.RequireContext
}

// Merge combines rule sets under stricter-wins semantics: the merged maximum
// length is the minimum of the inputs, the merged minimum length is the
// maximum, keyword and pattern sets are unioned with case-insensitive
// de-duplication, and require_context is true if any source sets it.
func Merge(sources ...Rules) Rules {
	var out Rules
	seenKeywords := make(map[string]struct{})
	seenPatterns := make(map[string]struct{})

	for _, src := range sources {
		if src.MaxMessageLength != nil {
			if out.MaxMessageLength == nil || *src.MaxMessageLength < *out.MaxMessageLength {
				v := *src.MaxMessageLength
				out.MaxMessageLength = &v
			}
		}
		if src.MinMessageLength != nil {
			if out.MinMessageLength == nil || *src.MinMessageLength > *out.MinMessageLength {
				v := *src.MinMessageLength
				out.MinMessageLength = &v
			}
		}
		for _, kw := range src.BlockedKeywords {
			key := strings.ToLower(kw)
			if _, ok := seenKeywords[key]; ok {
				continue
			}
			seenKeywords[key] = struct{}{}
			out.BlockedKeywords = append(out.BlockedKeywords, kw)
		}
		for _, pat := range src.BlockedPatterns {
			key := strings.ToLower(pat)
			if _, ok := seenPatterns[key]; ok {
				continue
			}
			seenPatterns[key] = struct{}{}
			out.BlockedPatterns = append(out.BlockedPatterns, pat)
		}
		if src.RequireContext {
			out.RequireContext = true
		}
	}

	return out
}

// Resolve produces the effective rule set for a gate. Registry rules are
// expected in the order the registry client supplied them (already
// priority-sorted); Resolve does not re-sort. An unknown mode resolves as
// ModeMerged.
func Resolve(local Rules, registry []Rules, mode Mode) Rules {
	switch mode {
	case ModeLocal:
		return local
	case ModeRegistry:
		return Merge(registry...)
	default:
		return Merge(append([]Rules{local}, registry...)...)
	}
}
