// Package types defines the message protocol and data model shared by the
// page agents, the coordinator, and the panel. The three execution contexts
// are isolated and communicate exclusively through these message shapes.
package types

// MessageKind identifies a message in the cross-context protocol.
type MessageKind string

const (
	// KindPageContext carries freshly extracted page content from a page
	// agent to the coordinator. One-way, no response.
	KindPageContext MessageKind = "PAGE_CONTEXT"

	// KindGetPageContext asks the coordinator for the cached PageContext of
	// a tab. Request/response; the response may be absent.
	KindGetPageContext MessageKind = "GET_PAGE_CONTEXT"

	// KindAskAgent asks a question about the current page. Request/response.
	KindAskAgent MessageKind = "ASK_AGENT"

	// KindAutofillRequest asks for a vault credential matching a URL.
	// Request/response; the response may be nil.
	KindAutofillRequest MessageKind = "AUTOFILL_REQUEST"

	// KindOpenSidePanel requests that the panel be surfaced. One-way.
	KindOpenSidePanel MessageKind = "OPEN_SIDEPANEL"

	// KindConnectionStatus asks for the last known backend connectivity.
	// Request/response.
	KindConnectionStatus MessageKind = "CONNECTION_STATUS"

	// KindNavigationStart signals that a tab began loading a new document.
	// Delivered on the same queue as page messages so that cache
	// invalidation is ordered before any context from the new document.
	KindNavigationStart MessageKind = "NAVIGATION_START"

	// KindTabClosed signals that a tab was closed.
	KindTabClosed MessageKind = "TAB_CLOSED"
)

// PageContext is the normalized extracted content of one page navigation.
// It is created by a page agent, owned by the coordinator once transmitted,
// and immutable after creation.
type PageContext struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Lang      string `json:"lang"`
	WordCount int    `json:"wordCount"`
}

// AskRequest is the payload of an ASK_AGENT message. Page may be nil when the
// originating tab has not reported context yet.
type AskRequest struct {
	Question string       `json:"question"`
	Page     *PageContext `json:"pageContext,omitempty"`
}

// Source is a citation attached to an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Media is a rich attachment referenced by an answer.
type Media struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// AskResponse is the answer returned for an ASK_AGENT request. Sources and
// Media are always non-nil, possibly empty.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Media   []Media  `json:"media"`
}

// ConversationTurn is one prior exchange forwarded with an ask request.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AutofillRequest is the payload of an AUTOFILL_REQUEST message. It carries
// only the page URL; matching happens on the coordinator side.
type AutofillRequest struct {
	URL string `json:"url"`
}

// Credential is a username/password pair returned for a single autofill
// action. The password is used once to populate fields and then discarded;
// no persisted structure holds it.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VaultEntry is a vault credential reference: the password is never part of
// it and must be fetched separately, at most once per autofill action.
type VaultEntry struct {
	ID         string `json:"id"`
	URLPattern string `json:"url_pattern"`
	Username   string `json:"username"`
}

// ConnectionStatus is the response payload for CONNECTION_STATUS.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}
