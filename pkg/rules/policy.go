package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/guardian/pkg/types"
	"github.com/entrhq/guardian/pkg/urlmatch"
)

// RolePolicy is the content policy for one role.
type RolePolicy struct {
	// BlockedPatterns are URL globs blocked for the role, compiled in
	// declaration order.
	BlockedPatterns []string `yaml:"blocked_patterns"`

	// SafeSearch forces strict search mode on the default search engine.
	SafeSearch bool `yaml:"safe_search"`
}

// Policy maps roles to their content policy. Roles without an entry compile
// to an empty rule sequence.
type Policy struct {
	Roles map[types.Role]RolePolicy `yaml:"roles"`
}

// DefaultPolicy returns the built-in policy: the child role blocks a fixed
// category list and forces safe search; all other roles are unrestricted
// unless the server delivers additional rules.
func DefaultPolicy() Policy {
	return Policy{
		Roles: map[types.Role]RolePolicy{
			types.RoleChild: {
				BlockedPatterns: []string{
					"*://*.pornhub.com/*",
					"*://*.xvideos.com/*",
					"*://*.xnxx.com/*",
					"*://*.redtube.com/*",
					"*://*.chaturbate.com/*",
					"*://*.onlyfans.com/*",
					"*://*.bet365.com/*",
					"*://*.pokerstars.com/*",
				},
				SafeSearch: true,
			},
		},
	}
}

// LoadPolicy reads a policy file in YAML form and validates every pattern
// against the shared URL glob syntax.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for role, rp := range p.Roles {
		if !role.Valid() {
			return Policy{}, fmt.Errorf("unknown role %q in policy file", role)
		}
		for _, pattern := range rp.BlockedPatterns {
			if _, err := urlmatch.Compile(pattern); err != nil {
				return Policy{}, fmt.Errorf("role %q: %w", role, err)
			}
		}
	}

	return p, nil
}
