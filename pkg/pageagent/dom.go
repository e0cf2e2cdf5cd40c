package pageagent

import (
	"strings"

	"golang.org/x/net/html"
)

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttrKey(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func setAttrVal(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// findFirst returns the first node in document order satisfying pred.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// elements collects all nodes in document order satisfying pred.
func elements(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// closest returns the first of n and its ancestors satisfying pred.
func closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if pred(cur) {
			return cur
		}
	}
	return nil
}

// cloneTree deep-copies a subtree so extraction never mutates the live
// document.
func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		child := cloneTree(c)
		child.Parent = clone
		if clone.LastChild != nil {
			clone.LastChild.NextSibling = child
			child.PrevSibling = clone.LastChild
		} else {
			clone.FirstChild = child
		}
		clone.LastChild = child
	}
	return clone
}

func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func inputType(n *html.Node) string {
	t := strings.ToLower(attrVal(n, "type"))
	if t == "" {
		return "text"
	}
	return t
}

func isInput(n *html.Node) bool {
	return isElement(n, "input")
}

// isVisible approximates the offset-parent check: an element styled
// display:none, carrying the hidden attribute, or of type=hidden (itself or
// through an ancestor) does not render.
func isVisible(n *html.Node) bool {
	if isInput(n) && inputType(n) == "hidden" {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hasAttrKey(cur, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(attrVal(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") {
			return false
		}
	}
	return true
}
