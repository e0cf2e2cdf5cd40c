// Package rules compiles per-role network policy into declarative block
// rules and applies them to a rule engine atomically.
//
// Rule ids are namespaced: every role owns a static sub-range, and
// server-delivered rules occupy a range disjoint from all of them, so two
// sets momentarily present at once can never collide.
package rules

import "sort"

// Action is what a matching rule does to a request.
type Action string

const (
	// ActionBlock cancels the request.
	ActionBlock Action = "block"

	// ActionRedirect rewrites the request URL, used for forced safe search.
	ActionRedirect Action = "redirect"
)

// Redirect describes the rewrite performed by an ActionRedirect rule.
type Redirect struct {
	// AppendQuery is a query fragment appended to the matched URL.
	AppendQuery string `json:"append_query"`
}

// Rule is one declarative network-filtering directive. URLFilter uses the
// urlmatch glob semantics shared with vault credential patterns.
type Rule struct {
	ID            int       `json:"id"`
	Priority      int       `json:"priority"`
	Action        Action    `json:"action"`
	URLFilter     string    `json:"url_filter"`
	ResourceTypes []string  `json:"resource_types,omitempty"`
	Redirect      *Redirect `json:"redirect,omitempty"`
}

// Rule id sub-ranges. Role ranges are sized so no role's compiled set can
// spill into a neighbour's; server rules live far above all of them.
const (
	childRuleBase  = 1000
	seniorRuleBase = 2000
	adultRuleBase  = 3000
	rootRuleBase   = 4000

	// safeSearchRuleOffset places the supplementary safe-search rule at a
	// fixed id inside the owning role's range.
	safeSearchRuleOffset = 900

	// ServerRuleBase is the first id of the server-delivered sub-range.
	ServerRuleBase = 100000
)

// IDs returns the rule ids in sequence order.
func IDs(rules []Rule) []int {
	ids := make([]int, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

// NormalizeServerRules reassigns server-delivered rules into the server id
// sub-range, preserving order and all other fields. The result is
// deterministic for a given input sequence.
func NormalizeServerRules(server []Rule) []Rule {
	if len(server) == 0 {
		return nil
	}
	out := make([]Rule, len(server))
	for i, r := range server {
		r.ID = ServerRuleBase + i
		out[i] = r
	}
	return out
}

// SortedIDs returns a sorted copy of ids, for set comparisons in callers.
func SortedIDs(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	return out
}
