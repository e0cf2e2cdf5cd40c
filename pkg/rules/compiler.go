package rules

import "github.com/entrhq/guardian/pkg/types"

// Safe-search enforcement for the default search engine.
const (
	safeSearchFilter = "*://www.google.com/search*"
	safeSearchQuery  = "safe=active"
)

// Compiler is a pure mapping from a role to its ordered rule sequence.
// Compiling the same role twice yields identical sequences (same ids, same
// order), which makes the engine's diff-and-replace idempotent.
type Compiler struct {
	policy Policy
}

// NewCompiler creates a compiler over the given policy.
func NewCompiler(policy Policy) *Compiler {
	return &Compiler{policy: policy}
}

// Compile returns the ordered block rules for a role. Roles with no policy
// entry compile to an empty sequence.
func (c *Compiler) Compile(role types.Role) []Rule {
	rp, ok := c.policy.Roles[role]
	if !ok {
		return nil
	}

	base := roleRuleBase(role)
	out := make([]Rule, 0, len(rp.BlockedPatterns)+1)
	for i, pattern := range rp.BlockedPatterns {
		out = append(out, Rule{
			ID:            base + i,
			Priority:      1,
			Action:        ActionBlock,
			URLFilter:     pattern,
			ResourceTypes: []string{"main_frame", "sub_frame"},
		})
	}

	if rp.SafeSearch {
		out = append(out, Rule{
			ID:            base + safeSearchRuleOffset,
			Priority:      2,
			Action:        ActionRedirect,
			URLFilter:     safeSearchFilter,
			ResourceTypes: []string{"main_frame"},
			Redirect:      &Redirect{AppendQuery: safeSearchQuery},
		})
	}

	return out
}

func roleRuleBase(role types.Role) int {
	switch role {
	case types.RoleChild:
		return childRuleBase
	case types.RoleSenior:
		return seniorRuleBase
	case types.RoleAdult:
		return adultRuleBase
	default:
		return rootRuleBase
	}
}
