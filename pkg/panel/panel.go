// Package panel is the side-panel client. It talks to the coordinator
// exclusively through the message bus and keeps the conversation transcript
// for display.
package panel

import (
	"context"
	"strings"
	"sync"

	"github.com/entrhq/guardian/pkg/bus"
	"github.com/entrhq/guardian/pkg/types"
)

// Panel drives the ask flow for one side-panel instance.
type Panel struct {
	bus *bus.Bus

	mu      sync.Mutex
	history []types.ConversationTurn
}

// New creates a panel client on the given bus.
func New(b *bus.Bus) *Panel {
	return &Panel{bus: b}
}

// ActiveContext fetches the cached page context for a tab. A tab that has not
// reported yet yields a nil context and no error.
func (p *Panel) ActiveContext(ctx context.Context, tabID int) (*types.PageContext, error) {
	res, err := p.bus.Request(ctx, types.KindGetPageContext, tabID, nil)
	if err != nil {
		return nil, err
	}
	pc, _ := res.(*types.PageContext)
	return pc, nil
}

// Ask sends a question about the given tab's page. The page context is looked
// up first so the answer can be grounded in what the user is reading; an
// absent context degrades to a context-free question. The exchange is
// appended to the transcript on success.
func (p *Panel) Ask(ctx context.Context, tabID int, question string) (*types.AskResponse, error) {
	question = strings.TrimSpace(question)

	page, err := p.ActiveContext(ctx, tabID)
	if err != nil {
		return nil, err
	}

	res, err := p.bus.Request(ctx, types.KindAskAgent, bus.PanelTab, types.AskRequest{
		Question: question,
		Page:     page,
	})
	if err != nil {
		return nil, err
	}

	answer, ok := res.(*types.AskResponse)
	if !ok || answer == nil {
		answer = &types.AskResponse{Sources: []types.Source{}, Media: []types.Media{}}
	}

	p.mu.Lock()
	p.history = append(p.history,
		types.ConversationTurn{Role: "user", Content: question},
		types.ConversationTurn{Role: "assistant", Content: answer.Answer},
	)
	p.mu.Unlock()

	return answer, nil
}

// ConnectionStatus returns the coordinator's last known backend connectivity.
func (p *Panel) ConnectionStatus(ctx context.Context) (bool, error) {
	res, err := p.bus.Request(ctx, types.KindConnectionStatus, bus.PanelTab, nil)
	if err != nil {
		return false, err
	}
	status, _ := res.(types.ConnectionStatus)
	return status.Connected, nil
}

// History returns a copy of the conversation transcript.
func (p *Panel) History() []types.ConversationTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ConversationTurn(nil), p.history...)
}
