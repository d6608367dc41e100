// Package routing picks the best of a recipient's registered endpoints.
package routing

import (
	"sort"
	"strings"
)

// Status of a registered connection.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Connection is one endpoint through which a recipient can be reached.
type Connection struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Status          Status   `json:"status"`
	Capabilities    []string `json:"capabilities,omitempty"`
	RoutingPriority int      `json:"routing_priority,omitempty"`
}

// Active reports whether the connection is eligible for selection.
func (c Connection) Active() bool { return c.Status == StatusActive }

// Criteria narrows connection selection. Both fields are optional.
type Criteria struct {
	Label string
	Tags  []string
}

// Select picks a connection, trying strategies in order:
//
//  1. exact label match among active connections, when a label is requested;
//  2. capability/tag overlap scoring (case-insensitive) when tags are given,
//     accepting the top entry only if it overlaps at all;
//  3. highest routing priority among active connections, ties broken by
//     original order.
//
// Returns nil when no active connection exists.
func Select(connections []Connection, criteria Criteria) *Connection {
	if criteria.Label != "" {
		for i := range connections {
			if connections[i].Active() && connections[i].Label == criteria.Label {
				return &connections[i]
			}
		}
	}

	if len(criteria.Tags) > 0 {
		if c := bestByTags(connections, criteria.Tags); c != nil {
			return c
		}
	}

	return bestByPriority(connections)
}

func bestByTags(connections []Connection, tags []string) *Connection {
	wanted := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		wanted[strings.ToLower(t)] = struct{}{}
	}

	type scored struct {
		idx   int
		score int
	}
	var candidates []scored
	for i := range connections {
		if !connections[i].Active() {
			continue
		}
		score := 0
		for _, cap := range connections[i].Capabilities {
			if _, ok := wanted[strings.ToLower(cap)]; ok {
				score++
			}
		}
		candidates = append(candidates, scored{idx: i, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		return connections[candidates[a].idx].RoutingPriority >
			connections[candidates[b].idx].RoutingPriority
	})

	// A zero-overlap top result is not a tag match.
	if candidates[0].score == 0 {
		return nil
	}
	return &connections[candidates[0].idx]
}

func bestByPriority(connections []Connection) *Connection {
	var best *Connection
	for i := range connections {
		if !connections[i].Active() {
			continue
		}
		if best == nil || connections[i].RoutingPriority > best.RoutingPriority {
			best = &connections[i]
		}
	}
	return best
}
