package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/guardian/pkg/backend"
	"github.com/entrhq/guardian/pkg/bus"
	"github.com/entrhq/guardian/pkg/config"
	"github.com/entrhq/guardian/pkg/rules"
	"github.com/entrhq/guardian/pkg/types"
)

// fakeBackend records calls and serves canned responses.
type fakeBackend struct {
	mu sync.Mutex

	statusErr error

	askErr   error
	askRes   *types.AskResponse
	lastAsk  backend.AskQuery
	askCalls int

	vaultEntries []types.VaultEntry
	vaultErr     error

	passwords     map[string]string
	passwordErr   error
	passwordCalls int

	auditCalls int

	dnsRules []rules.Rule
	dnsErr   error
}

func (b *fakeBackend) Status(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusErr
}

func (b *fakeBackend) Ask(ctx context.Context, q backend.AskQuery) (*types.AskResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.askCalls++
	b.lastAsk = q
	if b.askErr != nil {
		return nil, b.askErr
	}
	return b.askRes, nil
}

func (b *fakeBackend) MatchVault(ctx context.Context, pageURL string) ([]types.VaultEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vaultEntries, b.vaultErr
}

func (b *fakeBackend) CredentialPassword(ctx context.Context, id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.passwordCalls++
	if b.passwordErr != nil {
		return "", b.passwordErr
	}
	return b.passwords[id], nil
}

func (b *fakeBackend) LogAutofill(ctx context.Context, pageURL, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auditCalls++
	return nil
}

func (b *fakeBackend) DNSRules(ctx context.Context, role types.Role) ([]rules.Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dnsRules, b.dnsErr
}

type recordingBadge struct {
	mu    sync.Mutex
	alert bool
	sets  int
}

func (b *recordingBadge) SetAlert(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alert = on
	b.sets++
}

func (b *recordingBadge) alertOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alert
}

type recordingOpener struct {
	mu   sync.Mutex
	tabs []int
}

func (o *recordingOpener) Open(tabID int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tabs = append(o.tabs, tabID)
	return nil
}

func (o *recordingOpener) opened() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.tabs...)
}

type harness struct {
	bus     *bus.Bus
	backend *fakeBackend
	badge   *recordingBadge
	opener  *recordingOpener
	cfg     *config.Manager
	engine  *rules.Engine
	store   *rules.MemoryStore
}

func newHarness(t *testing.T, role types.Role) *harness {
	t.Helper()

	cfg, err := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, cfg.Set(config.Connection{Host: "https://backend.test", Role: role}))

	h := &harness{
		bus:     bus.New(),
		backend: &fakeBackend{passwords: map[string]string{}},
		badge:   &recordingBadge{},
		opener:  &recordingOpener{},
		cfg:     cfg,
		store:   rules.NewMemoryStore(),
	}
	h.engine = rules.NewEngine(h.store, nil)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()

	coord := New(Options{
		Bus:          h.bus,
		Backend:      h.backend,
		Compiler:     rules.NewCompiler(rules.DefaultPolicy()),
		Engine:       h.engine,
		Config:       h.cfg,
		Badge:        h.badge,
		Opener:       h.opener,
		PollInterval: time.Hour, // keep polling out of test timing
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNavigationStartInvalidatesCachedContext(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.bus.Send(types.KindPageContext, 5, types.PageContext{URL: "https://old.test", Text: "old page"}))

	got, err := h.bus.Request(ctx, types.KindGetPageContext, 5, nil)
	require.NoError(t, err)
	pc := got.(*types.PageContext)
	require.NotNil(t, pc)
	assert.Equal(t, "https://old.test", pc.URL)

	// Navigation-start is enqueued before anything from the new document
	// can be, so the delete always wins.
	require.NoError(t, h.bus.Send(types.KindNavigationStart, 5, nil))

	got, err = h.bus.Request(ctx, types.KindGetPageContext, 5, nil)
	require.NoError(t, err)
	assert.Nil(t, got.(*types.PageContext))
}

func TestPageContextOverwritesSameNavigation(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.start(t)
	ctx := context.Background()

	// SPA re-render: same tab reports twice without navigating.
	require.NoError(t, h.bus.Send(types.KindPageContext, 2, types.PageContext{URL: "https://spa.test", Text: "first render"}))
	require.NoError(t, h.bus.Send(types.KindPageContext, 2, types.PageContext{URL: "https://spa.test", Text: "second render"}))

	got, err := h.bus.Request(ctx, types.KindGetPageContext, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "second render", got.(*types.PageContext).Text)
}

func TestTabCloseRemovesContext(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.bus.Send(types.KindPageContext, 9, types.PageContext{URL: "https://x.test"}))
	require.NoError(t, h.bus.Send(types.KindTabClosed, 9, nil))

	got, err := h.bus.Request(ctx, types.KindGetPageContext, 9, nil)
	require.NoError(t, err)
	assert.Nil(t, got.(*types.PageContext))
}

func TestAskForwardsBoundedPageText(t *testing.T) {
	h := newHarness(t, types.RoleChild)
	h.backend.askRes = &types.AskResponse{Answer: "it is a shop", Sources: []types.Source{}, Media: []types.Media{}}
	h.start(t)

	longText := make([]byte, 20000)
	for i := range longText {
		longText[i] = 'a'
	}

	got, err := h.bus.Request(context.Background(), types.KindAskAgent, bus.PanelTab, types.AskRequest{
		Question: "what is this?",
		Page:     &types.PageContext{URL: "https://shop.test", Text: string(longText)},
	})
	require.NoError(t, err)
	assert.Equal(t, "it is a shop", got.(*types.AskResponse).Answer)

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	assert.Equal(t, "what is this?", h.backend.lastAsk.Question)
	assert.Equal(t, types.RoleChild, h.backend.lastAsk.Role)
	assert.Len(t, h.backend.lastAsk.PageText, 12000)
	assert.NotNil(t, h.backend.lastAsk.Conversation)
}

func TestAskFailureServesFallback(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.askErr = errors.New("connection refused")
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindAskAgent, bus.PanelTab, types.AskRequest{Question: "?"})
	require.NoError(t, err, "transport failures must not surface as errors")

	res := got.(*types.AskResponse)
	assert.Equal(t, FallbackAnswer, res.Answer)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Media)
	assert.Empty(t, res.Media)
}

func TestAutofillReturnsFirstMatch(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.vaultEntries = []types.VaultEntry{
		{ID: "other", URLPattern: "*://*.unrelated.test/*", Username: "nope"},
		{ID: "cred-1", URLPattern: "*://*.example.com/*", Username: "mika"},
		{ID: "cred-2", URLPattern: "*://*.example.com/*", Username: "second"},
	}
	h.backend.passwords["cred-1"] = "hunter2"
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindAutofillRequest, 4, types.AutofillRequest{
		URL: "https://shop.example.com/login",
	})
	require.NoError(t, err)

	cred := got.(*types.Credential)
	require.NotNil(t, cred)
	assert.Equal(t, "mika", cred.Username)
	assert.Equal(t, "hunter2", cred.Password)

	h.backend.mu.Lock()
	assert.Equal(t, 1, h.backend.passwordCalls, "password fetched exactly once, for the first match")
	h.backend.mu.Unlock()

	// Audit log fires asynchronously.
	require.Eventually(t, func() bool {
		h.backend.mu.Lock()
		defer h.backend.mu.Unlock()
		return h.backend.auditCalls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAutofillNoMatchFetchesNoPassword(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.vaultEntries = []types.VaultEntry{
		{ID: "cred-1", URLPattern: "*://*.example.com/*", Username: "mika"},
	}
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindAutofillRequest, 4, types.AutofillRequest{
		URL: "https://example.com.evil.net/login",
	})
	require.NoError(t, err)
	assert.Nil(t, got.(*types.Credential))

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	assert.Zero(t, h.backend.passwordCalls)
	assert.Zero(t, h.backend.auditCalls)
}

func TestAutofillBackendFailureCollapsesToNil(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.vaultErr = errors.New("vault down")
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindAutofillRequest, 4, types.AutofillRequest{URL: "https://x.test"})
	require.NoError(t, err)
	assert.Nil(t, got.(*types.Credential))
}

func TestAutofillPasswordFailureCollapsesToNil(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.vaultEntries = []types.VaultEntry{{ID: "cred-1", URLPattern: "*", Username: "mika"}}
	h.backend.passwordErr = errors.New("forbidden")
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindAutofillRequest, 4, types.AutofillRequest{URL: "https://x.test"})
	require.NoError(t, err)
	assert.Nil(t, got.(*types.Credential))
}

func TestConnectionStatusAndBadge(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.backend.statusErr = errors.New("unreachable")
	h.start(t)

	got, err := h.bus.Request(context.Background(), types.KindConnectionStatus, bus.PanelTab, nil)
	require.NoError(t, err)
	assert.False(t, got.(types.ConnectionStatus).Connected)
	assert.True(t, h.badge.alertOn())

	// Backend recovers; the next config mutation re-checks immediately.
	h.backend.mu.Lock()
	h.backend.statusErr = nil
	h.backend.mu.Unlock()

	conn := h.cfg.Get()
	conn.UserName = "Mika"
	require.NoError(t, h.cfg.Set(conn))

	require.Eventually(t, func() bool {
		got, err := h.bus.Request(context.Background(), types.KindConnectionStatus, bus.PanelTab, nil)
		return err == nil && got.(types.ConnectionStatus).Connected
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.badge.alertOn())
	assert.True(t, h.cfg.Get().Connected)
}

func TestRuleSyncOnStartupMergesServerRules(t *testing.T) {
	h := newHarness(t, types.RoleChild)
	h.backend.dnsRules = []rules.Rule{
		{ID: 1, Priority: 1, Action: rules.ActionBlock, URLFilter: "*://ads.test/*"},
	}
	h.start(t)

	compiled := rules.NewCompiler(rules.DefaultPolicy()).Compile(types.RoleChild)
	require.Eventually(t, func() bool {
		return len(h.engine.InstalledIDs()) == len(compiled)+1
	}, 2*time.Second, 10*time.Millisecond)

	// Server rules landed in the disjoint server id range.
	var serverIDs int
	for _, id := range h.engine.InstalledIDs() {
		if id >= rules.ServerRuleBase {
			serverIDs++
		}
	}
	assert.Equal(t, 1, serverIDs)
}

func TestRoleChangeReplacesRuleSet(t *testing.T) {
	h := newHarness(t, types.RoleChild)
	h.start(t)

	compiled := rules.NewCompiler(rules.DefaultPolicy()).Compile(types.RoleChild)
	require.Eventually(t, func() bool {
		return len(h.engine.InstalledIDs()) == len(compiled)
	}, 2*time.Second, 10*time.Millisecond)

	conn := h.cfg.Get()
	conn.Role = types.RoleAdult
	require.NoError(t, h.cfg.Set(conn))

	// Adult compiles to an empty set; the swap removes every child rule.
	require.Eventually(t, func() bool {
		return len(h.engine.InstalledIDs()) == 0 && len(h.store.Rules()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRuleEngineRejectionIsNotRetriedImmediately(t *testing.T) {
	h := newHarness(t, types.RoleChild)
	h.start(t)

	compiled := rules.NewCompiler(rules.DefaultPolicy()).Compile(types.RoleChild)
	require.Eventually(t, func() bool {
		return len(h.engine.InstalledIDs()) == len(compiled)
	}, 2*time.Second, 10*time.Millisecond)

	// Poison the next update by pre-installing a colliding id directly in
	// the store: the engine's replace will try to add a duplicate.
	require.NoError(t, h.store.Update(context.Background(), nil, []rules.Rule{{ID: rules.ServerRuleBase}}))
	h.backend.mu.Lock()
	h.backend.dnsRules = []rules.Rule{{ID: 1, Action: rules.ActionBlock, URLFilter: "*://ads.test/*"}}
	h.backend.mu.Unlock()

	conn := h.cfg.Get()
	conn.UserName = "trigger sync"
	require.NoError(t, h.cfg.Set(conn))

	// The rejected update leaves the previous installed list intact.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, rules.SortedIDs(append(rules.IDs(compiled), rules.ServerRuleBase)), rules.SortedIDs(rules.IDs(h.store.Rules())))
}

func TestOpenSidePanelForwardsTab(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.start(t)

	require.NoError(t, h.bus.Send(types.KindOpenSidePanel, 11, nil))

	require.Eventually(t, func() bool {
		return len(h.opener.opened()) == 1 && h.opener.opened()[0] == 11
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownKindGetsError(t *testing.T) {
	h := newHarness(t, types.RoleAdult)
	h.start(t)

	_, err := h.bus.Request(context.Background(), types.MessageKind("BOGUS"), bus.PanelTab, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message kind")
}
