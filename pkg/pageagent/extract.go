package pageagent

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/entrhq/guardian/pkg/types"
)

// noiseTags are stripped from the extraction clone: chrome, navigation, and
// non-content elements that would pollute the readable text.
var noiseTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
}

var noiseRoles = map[string]bool{
	"navigation": true,
	"banner":     true,
}

// blockTags break text flow; their boundaries become newlines when text is
// collected, so paragraph structure survives normalization.
var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "div": true,
	"dl": true, "dd": true, "dt": true, "fieldset": true, "figure": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Extract builds the PageContext for a parsed document. Extraction never
// mutates the document (it works on a clone) and never fails: a page with no
// usable content yields an empty-text context.
func Extract(doc *html.Node, pageURL string) types.PageContext {
	ctx := types.PageContext{
		URL:   pageURL,
		Title: documentTitle(doc),
		Lang:  documentLang(doc),
	}

	root := contentRoot(doc)
	if root == nil {
		return ctx
	}

	clone := cloneTree(root)
	stripNoise(clone)

	ctx.Text = normalizeWhitespace(collectText(clone))
	ctx.WordCount = len(strings.Fields(ctx.Text))
	return ctx
}

// contentRoot picks the most specific content container: a semantic article
// or main landmark first, the body as fallback.
func contentRoot(doc *html.Node) *html.Node {
	for _, pick := range []func(*html.Node) bool{
		func(n *html.Node) bool { return isElement(n, "article") },
		func(n *html.Node) bool { return isElement(n, "main") },
		func(n *html.Node) bool {
			return n.Type == html.ElementNode && strings.EqualFold(attrVal(n, "role"), "main")
		},
		func(n *html.Node) bool { return isElement(n, "body") },
	} {
		if root := findFirst(doc, pick); root != nil {
			return root
		}
	}
	return nil
}

func stripNoise(n *html.Node) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if noiseTags[strings.ToLower(n.Data)] || noiseRoles[strings.ToLower(attrVal(n, "role"))] {
				doomed = append(doomed, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, d := range doomed {
		removeNode(d)
	}
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "br" {
				b.WriteByte('\n')
				return
			}
			if blockTags[tag] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// normalizeWhitespace collapses horizontal whitespace runs to single spaces,
// collapses three or more consecutive newlines to exactly two, and trims.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func documentTitle(doc *html.Node) string {
	title := findFirst(doc, func(n *html.Node) bool { return isElement(n, "title") })
	if title == nil || title.FirstChild == nil || title.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(title.FirstChild.Data)
}

func documentLang(doc *html.Node) string {
	root := findFirst(doc, func(n *html.Node) bool { return isElement(n, "html") })
	if root == nil {
		return ""
	}
	return strings.TrimSpace(attrVal(root, "lang"))
}
