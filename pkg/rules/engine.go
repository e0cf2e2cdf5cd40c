package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/guardian/pkg/logging"
)

// Store is the boundary to the platform's declarative rule engine.
// Update must apply the removal and the addition as a single transaction:
// no observer may see zero or duplicated rules mid-update.
type Store interface {
	Update(ctx context.Context, removeIDs []int, add []Rule) error
}

// ApplyError wraps a store rejection. Failed updates are not retried
// immediately; the next sync attempt picks them up.
type ApplyError struct {
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("rule engine rejected update: %v", e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Engine tracks the currently installed rule set and replaces it through
// single-transaction updates. It remembers the exact id list it installed so
// replacement removes precisely what is there.
type Engine struct {
	mu        sync.Mutex
	store     Store
	installed []int
	log       *logging.Logger
}

// NewEngine creates an engine over the given store. The logger may be nil.
func NewEngine(store Store, log *logging.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Apply replaces the installed rule set with rules in one atomic store
// update: every currently installed id is removed and the full new set added
// in the same transaction. Applying the same sequence twice in a row leaves
// the installed set unchanged.
func (e *Engine) Apply(ctx context.Context, rules []Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	remove := append([]int(nil), e.installed...)
	if err := e.store.Update(ctx, remove, rules); err != nil {
		return &ApplyError{Err: err}
	}

	e.installed = IDs(rules)
	if e.log != nil {
		e.log.Debugf("installed %d rules (removed %d)", len(rules), len(remove))
	}
	return nil
}

// InstalledIDs returns a copy of the id list of the installed rule set.
func (e *Engine) InstalledIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.installed...)
}

// MemoryStore is an in-process Store used when no platform rule engine is
// attached. It enforces the id uniqueness the platform would, and applies
// updates transactionally: a rejected update changes nothing.
type MemoryStore struct {
	mu    sync.Mutex
	rules map[int]Rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[int]Rule)}
}

// Update removes removeIDs and installs add as one transaction.
func (s *MemoryStore) Update(ctx context.Context, removeIDs []int, add []Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[int]Rule, len(s.rules))
	for id, r := range s.rules {
		staged[id] = r
	}
	for _, id := range removeIDs {
		delete(staged, id)
	}
	for _, r := range add {
		if _, dup := staged[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %d", r.ID)
		}
		staged[r.ID] = r
	}

	s.rules = staged
	return nil
}

// Rules returns the installed rules sorted by id.
func (s *MemoryStore) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.rules))
	for id := range s.rules {
		ids = append(ids, id)
	}
	out := make([]Rule, 0, len(ids))
	for _, id := range SortedIDs(ids) {
		out = append(out, s.rules[id])
	}
	return out
}
