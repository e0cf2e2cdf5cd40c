package pageagent

import (
	"strings"

	"golang.org/x/net/html"
)

// processedAttr marks a form (or a formless password field) whose candidate
// pair has already been handled, so repeated detection passes on a mutating
// document never re-trigger backend round-trips.
const processedAttr = "data-guardian-processed"

// Candidate is a detected login field pair. Form is nil when the password
// field has no enclosing form element.
type Candidate struct {
	Username *html.Node
	Password *html.Node
	Form     *html.Node
}

// DetectLoginForms scans the document for login field pairs that have not
// been processed yet and marks each one. The pass is cheap and idempotent:
// re-running it on an unchanged document returns nothing.
func DetectLoginForms(doc *html.Node) []Candidate {
	var out []Candidate

	passwords := elements(doc, func(n *html.Node) bool {
		return isInput(n) && inputType(n) == "password"
	})

	for _, pw := range passwords {
		if !isVisible(pw) {
			continue
		}

		form := closest(pw, func(n *html.Node) bool { return isElement(n, "form") })
		container := form
		if container == nil {
			container = fallbackContainer(pw)
		}
		if container == nil {
			continue
		}

		username := findUsernameField(container, pw)
		if username == nil {
			// Detection miss: skipped silently, not an error.
			continue
		}

		marker := form
		if marker == nil {
			marker = pw
		}
		if attrVal(marker, processedAttr) != "" {
			continue
		}
		setAttrVal(marker, processedAttr, "1")

		out = append(out, Candidate{Username: username, Password: pw, Form: form})
	}

	return out
}

// fallbackContainer finds a sensible ancestor for a formless password field:
// the nearest ancestor that also contains some other input, falling back to
// the document body.
func fallbackContainer(pw *html.Node) *html.Node {
	for cur := pw.Parent; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		inputs := elements(cur, func(n *html.Node) bool { return isInput(n) && n != pw })
		if len(inputs) > 0 {
			return cur
		}
	}
	return closest(pw, func(n *html.Node) bool { return isElement(n, "body") })
}

// findUsernameField searches the container for a username-like input using
// priority-ordered strategies: explicit autocomplete hints first, then the
// email type, then name/id substring heuristics. Within a strategy, document
// order wins.
func findUsernameField(container, pw *html.Node) *html.Node {
	strategies := []func(*html.Node) bool{
		func(n *html.Node) bool {
			ac := strings.ToLower(attrVal(n, "autocomplete"))
			return ac == "username" || ac == "email"
		},
		func(n *html.Node) bool {
			return inputType(n) == "email"
		},
		func(n *html.Node) bool {
			needle := strings.ToLower(attrVal(n, "name") + " " + attrVal(n, "id"))
			return strings.Contains(needle, "user") ||
				strings.Contains(needle, "email") ||
				strings.Contains(needle, "login")
		},
	}

	for _, match := range strategies {
		found := findFirst(container, func(n *html.Node) bool {
			if !isInput(n) || n == pw {
				return false
			}
			switch inputType(n) {
			case "password", "hidden", "checkbox", "radio", "submit", "button":
				return false
			}
			return isVisible(n) && match(n)
		})
		if found != nil {
			return found
		}
	}
	return nil
}
