// Package pageagent runs once per loaded document: it extracts readable
// content, detects login forms, renders fill affordances, and reports
// upward to the coordinator over the message bus. It never talks to the
// backend directly.
package pageagent

import (
	"context"
	"sync"

	"golang.org/x/net/html"

	"github.com/entrhq/guardian/pkg/bus"
	"github.com/entrhq/guardian/pkg/types"
)

// Messenger is the agent's one-way/request channel to the coordinator.
type Messenger interface {
	Send(kind types.MessageKind, payload interface{}) error
	Request(ctx context.Context, kind types.MessageKind, payload interface{}) (interface{}, error)
}

// BusMessenger binds a bus to one tab id.
type BusMessenger struct {
	Bus   *bus.Bus
	TabID int
}

// Send enqueues a one-way message from this tab.
func (m BusMessenger) Send(kind types.MessageKind, payload interface{}) error {
	return m.Bus.Send(kind, m.TabID, payload)
}

// Request sends a request from this tab and waits for the response.
func (m BusMessenger) Request(ctx context.Context, kind types.MessageKind, payload interface{}) (interface{}, error) {
	return m.Bus.Request(ctx, kind, m.TabID, payload)
}

// Agent is the per-document worker. One agent serves exactly one navigation;
// a new document gets a new agent.
type Agent struct {
	doc       *html.Node
	url       string
	messenger Messenger
	disp      Dispatcher

	emitOnce   sync.Once
	injectOnce sync.Once

	mu         sync.Mutex
	indicators []*Indicator
}

// Option configures an Agent.
type Option func(*Agent)

// WithDispatcher overrides the fill dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(a *Agent) { a.disp = d }
}

// New creates an agent for a parsed document.
func New(doc *html.Node, url string, messenger Messenger, opts ...Option) *Agent {
	a := &Agent{
		doc:       doc,
		url:       url,
		messenger: messenger,
		disp:      AttributeDispatcher{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drives the agent until the context ends or the mutation stream
// closes: it emits the page context once, injects the affordance, runs an
// initial detection pass, and re-runs detection per mutation batch.
func (a *Agent) Run(ctx context.Context, mutations <-chan struct{}) {
	a.EmitPageContext()
	a.InjectAffordance()
	a.DetectAndRequest(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-mutations:
			if !ok {
				return
			}
			a.DetectAndRequest(ctx)
		}
	}
}

// EmitPageContext extracts the document and fires the PAGE_CONTEXT event,
// exactly once per agent. Fire-and-forget: delivery failures are dropped.
func (a *Agent) EmitPageContext() {
	a.emitOnce.Do(func() {
		pc := Extract(a.doc, a.url)
		_ = a.messenger.Send(types.KindPageContext, pc)
	})
}

// DetectAndRequest runs one detection pass and, for each new candidate,
// requests a matching vault credential. Non-null responses become fill
// indicators. All failures are silent: autofill is opportunistic.
func (a *Agent) DetectAndRequest(ctx context.Context) []*Indicator {
	var added []*Indicator
	for _, cand := range DetectLoginForms(a.doc) {
		res, err := a.messenger.Request(ctx, types.KindAutofillRequest, types.AutofillRequest{URL: a.url})
		if err != nil {
			continue
		}
		cred, ok := res.(*types.Credential)
		if !ok || cred == nil {
			continue
		}

		ind := &Indicator{cand: cand, cred: *cred, disp: a.disp}
		a.mu.Lock()
		a.indicators = append(a.indicators, ind)
		added = append(added, ind)
		a.mu.Unlock()
	}
	return added
}

// Indicators returns the fill indicators rendered so far.
func (a *Agent) Indicators() []*Indicator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Indicator(nil), a.indicators...)
}

// InjectAffordance injects the floating panel-opener element, once per
// document, and returns it.
func (a *Agent) InjectAffordance() *Affordance {
	a.injectOnce.Do(func() {
		body := findFirst(a.doc, func(n *html.Node) bool { return isElement(n, "body") })
		if body == nil {
			return
		}
		el := &html.Node{
			Type: html.ElementNode,
			Data: "guardian-affordance",
		}
		body.AppendChild(el)
	})
	return &Affordance{agent: a}
}

// Affordance is the floating element that surfaces the panel on click.
type Affordance struct {
	agent *Agent
}

// Click requests that the side panel be opened. One-way, never retried.
func (f *Affordance) Click() error {
	return f.agent.messenger.Send(types.KindOpenSidePanel, nil)
}

// Indicator is the unobtrusive fill affordance rendered next to a detected
// username field. Nothing is filled until the user clicks it.
type Indicator struct {
	cand Candidate
	cred types.Credential
	disp Dispatcher
}

// Candidate returns the field pair this indicator fills.
func (i *Indicator) Candidate() Candidate { return i.cand }

// Username returns the account name shown on the indicator.
func (i *Indicator) Username() string { return i.cred.Username }

// Click fills both fields with the fetched credential and dispatches the
// synthetic events. This is the explicit confirmation gate: autofill never
// happens without it.
func (i *Indicator) Click() error {
	return FillCredential(i.disp, i.cand, i.cred)
}
