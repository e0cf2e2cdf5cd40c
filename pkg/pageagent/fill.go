package pageagent

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/entrhq/guardian/pkg/types"
)

// fillEvents are dispatched after each programmatic fill, in this order, so
// reactive frontend frameworks observe the change as if the user typed it.
var fillEvents = [...]string{"input", "change", "blur"}

// Dispatcher writes values into fields and delivers synthetic DOM events.
// SetValue must use the platform's native value setter so framework-level
// input virtualization is bypassed; that side effect is host-specific, which
// is why it sits behind this interface.
type Dispatcher interface {
	SetValue(field *html.Node, value string) error
	DispatchEvent(field *html.Node, event string) error
}

// AttributeDispatcher is the in-process Dispatcher: it writes the value
// attribute on the node and treats event dispatch as a no-op.
type AttributeDispatcher struct{}

// SetValue writes the field's value attribute.
func (AttributeDispatcher) SetValue(field *html.Node, value string) error {
	setAttrVal(field, "value", value)
	return nil
}

// DispatchEvent is a no-op; there is no live event loop to deliver into.
func (AttributeDispatcher) DispatchEvent(field *html.Node, event string) error {
	return nil
}

// FillCredential populates both candidate fields and dispatches input,
// change, and blur on each, username field first.
func FillCredential(d Dispatcher, cand Candidate, cred types.Credential) error {
	fields := []struct {
		node  *html.Node
		value string
	}{
		{cand.Username, cred.Username},
		{cand.Password, cred.Password},
	}

	for _, f := range fields {
		if f.node == nil {
			return fmt.Errorf("candidate field missing")
		}
		if err := d.SetValue(f.node, f.value); err != nil {
			return fmt.Errorf("failed to set field value: %w", err)
		}
		for _, ev := range fillEvents {
			if err := d.DispatchEvent(f.node, ev); err != nil {
				return fmt.Errorf("failed to dispatch %s: %w", ev, err)
			}
		}
	}
	return nil
}
