// Package coordinator is the long-lived background context: it owns the
// per-tab page context cache, routes requests between page agents and the
// panel, watches backend connectivity, and keeps the installed rule set in
// step with the configured role.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/guardian/pkg/backend"
	"github.com/entrhq/guardian/pkg/bus"
	"github.com/entrhq/guardian/pkg/config"
	"github.com/entrhq/guardian/pkg/logging"
	"github.com/entrhq/guardian/pkg/rules"
	"github.com/entrhq/guardian/pkg/types"
	"github.com/entrhq/guardian/pkg/urlmatch"
)

const (
	// maxAskChars caps the page text forwarded with a question.
	maxAskChars = 12000

	defaultPollInterval = 30 * time.Second
)

// FallbackAnswer is returned for every failed ask: the panel never sees a
// transport error.
const FallbackAnswer = "I couldn't reach the assistant just now. Please check your connection and try again."

// Backend is the subset of the backend client the coordinator uses.
type Backend interface {
	Status(ctx context.Context) error
	Ask(ctx context.Context, q backend.AskQuery) (*types.AskResponse, error)
	MatchVault(ctx context.Context, pageURL string) ([]types.VaultEntry, error)
	CredentialPassword(ctx context.Context, id string) (string, error)
	LogAutofill(ctx context.Context, pageURL, username string) error
	DNSRules(ctx context.Context, role types.Role) ([]rules.Rule, error)
}

// Badge reflects connectivity on the externally visible status indicator:
// clear when healthy, an alert glyph when not.
type Badge interface {
	SetAlert(on bool)
}

// PanelOpener surfaces the side panel for a tab.
type PanelOpener interface {
	Open(tabID int) error
}

type nopBadge struct{}

func (nopBadge) SetAlert(bool) {}

type nopOpener struct{}

func (nopOpener) Open(int) error { return nil }

// Options wires a Coordinator.
type Options struct {
	Bus      *bus.Bus
	Backend  Backend
	Compiler *rules.Compiler
	Engine   *rules.Engine
	Config   *config.Manager
	Badge    Badge
	Opener   PanelOpener
	Logger   *logging.Logger

	// PollInterval overrides the connectivity polling interval.
	PollInterval time.Duration
}

// Coordinator runs one instance per browser session. The tab table is only
// touched from the dispatch loop, so navigation-start invalidation is always
// ordered before later context from the new document.
type Coordinator struct {
	bus      *bus.Bus
	backend  Backend
	compiler *rules.Compiler
	engine   *rules.Engine
	cfg      *config.Manager
	badge    Badge
	opener   PanelOpener
	log      *logging.Logger

	pollInterval time.Duration

	tabs map[int]types.PageContext

	connected connFlag
}

// New creates a coordinator. Badge and Opener may be nil.
func New(opts Options) *Coordinator {
	if opts.Badge == nil {
		opts.Badge = nopBadge{}
	}
	if opts.Opener == nil {
		opts.Opener = nopOpener{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Coordinator{
		bus:          opts.Bus,
		backend:      opts.Backend,
		compiler:     opts.Compiler,
		engine:       opts.Engine,
		cfg:          opts.Config,
		badge:        opts.Badge,
		opener:       opts.Opener,
		log:          opts.Logger,
		pollInterval: opts.PollInterval,
		tabs:         make(map[int]types.PageContext),
	}
}

// Run drives the coordinator until the context ends or the bus closes. It
// synchronizes rules and probes connectivity immediately, re-runs both on
// every config mutation, and polls connectivity on the configured interval.
func (c *Coordinator) Run(ctx context.Context) error {
	c.cfg.Subscribe(func(config.Connection) {
		go func() {
			c.syncRules(ctx)
			c.checkConnectivity(ctx)
		}()
	})

	c.syncRules(ctx)
	c.checkConnectivity(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.bus.Done():
			return nil
		case <-ticker.C:
			go func() {
				// A recovered connection is the retry path for rule
				// updates the engine rejected while offline.
				if c.checkConnectivity(ctx) {
					c.syncRules(ctx)
				}
			}()
		case env := <-c.bus.Receive():
			c.handle(ctx, env)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, env *bus.Envelope) {
	switch env.Kind {
	case types.KindPageContext:
		if pc, ok := env.Payload.(types.PageContext); ok {
			c.tabs[env.TabID] = pc
		}

	case types.KindNavigationStart, types.KindTabClosed:
		delete(c.tabs, env.TabID)

	case types.KindGetPageContext:
		if pc, ok := c.tabs[env.TabID]; ok {
			env.Respond(&pc, nil)
		} else {
			env.Respond((*types.PageContext)(nil), nil)
		}

	case types.KindAskAgent:
		req, _ := env.Payload.(types.AskRequest)
		go c.handleAsk(ctx, env, req)

	case types.KindAutofillRequest:
		req, _ := env.Payload.(types.AutofillRequest)
		go c.handleAutofill(ctx, env, req)

	case types.KindOpenSidePanel:
		if err := c.opener.Open(env.TabID); err != nil && c.log != nil {
			c.log.Debugf("open panel for tab %d failed: %v", env.TabID, err)
		}

	case types.KindConnectionStatus:
		env.Respond(types.ConnectionStatus{Connected: c.connected.Load()}, nil)

	default:
		env.Respond(nil, fmt.Errorf("unknown message kind %q", env.Kind))
	}
}

// handleAsk forwards the question with bounded page text. Every failure
// collapses to the fixed fallback answer; the panel never sees an error.
func (c *Coordinator) handleAsk(ctx context.Context, env *bus.Envelope, req types.AskRequest) {
	conn := c.cfg.Get()
	q := backend.AskQuery{
		Question:     req.Question,
		Role:         conn.Role,
		Conversation: []types.ConversationTurn{},
	}
	if req.Page != nil {
		q.URL = req.Page.URL
		q.PageText = truncateChars(req.Page.Text, maxAskChars)
	}

	res, err := c.backend.Ask(ctx, q)
	if err != nil {
		if c.log != nil {
			c.log.Debugf("ask failed, serving fallback: %v", err)
		}
		env.Respond(&types.AskResponse{
			Answer:  FallbackAnswer,
			Sources: []types.Source{},
			Media:   []types.Media{},
		}, nil)
		return
	}
	env.Respond(res, nil)
}

// handleAutofill resolves a credential for the requesting page. The
// password is fetched just-in-time for the first matching entry and never
// cached; any failure in the chain collapses to a nil credential.
func (c *Coordinator) handleAutofill(ctx context.Context, env *bus.Envelope, req types.AutofillRequest) {
	respondNil := func() { env.Respond((*types.Credential)(nil), nil) }

	entries, err := c.backend.MatchVault(ctx, req.URL)
	if err != nil {
		respondNil()
		return
	}

	var match *types.VaultEntry
	for i := range entries {
		if urlmatch.Match(entries[i].URLPattern, req.URL) {
			match = &entries[i]
			break
		}
	}
	if match == nil {
		respondNil()
		return
	}

	password, err := c.backend.CredentialPassword(ctx, match.ID)
	if err != nil {
		respondNil()
		return
	}

	// Audit write is fire-and-forget; its failure never blocks the fill.
	go func() {
		if err := c.backend.LogAutofill(ctx, req.URL, match.Username); err != nil && c.log != nil {
			c.log.Debugf("autofill audit log failed: %v", err)
		}
	}()

	env.Respond(&types.Credential{Username: match.Username, Password: password}, nil)
}

func truncateChars(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
