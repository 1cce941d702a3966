package extract

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minPageChars is the shortest page text considered real content.
const minPageChars = 50

// maxNavRatio is the share of navigation words above which a page is
// treated as chrome.
const maxNavRatio = 0.1

// dropped elements never contribute text.
var dropped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// blocks end a line of text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Tr: true, atom.Table: true, atom.Blockquote: true, atom.Pre: true, atom.Br: true,
	atom.Summary: true, atom.Details: true, atom.Figcaption: true,
}

var navWords = map[string]bool{
	"menu": true, "navigation": true, "footer": true, "header": true,
	"login": true, "register": true, "signup": true, "signin": true,
}

// page is the text and outgoing links of one HTML document.
type page struct {
	title string
	text  string
	links []string
}

// parseHTML extracts the title, the readable text of the main content area
// and, when base is non-nil, the absolute links of the page.
func parseHTML(content []byte, base *url.URL) (page, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return page{}, err
	}

	var p page
	if t := find(root, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		p.title = strings.TrimSpace(textOf(t))
	}
	if base != nil {
		p.links = links(root, base)
	}

	area := find(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Main || n.DataAtom == atom.Article || attr(n, "role") == "main"
	})
	if area == nil {
		area = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	}
	if area == nil {
		area = root
	}

	var b strings.Builder
	render(&b, area)
	p.text = b.String()
	return p, nil
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if dropped[n.DataAtom] {
			return
		}
	}
	isBlock := n.Type == html.ElementNode && blocks[n.DataAtom]
	if isBlock {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if isBlock {
		b.WriteString("\n")
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// find returns the first node in document order matching match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// links returns the distinct absolute http(s) targets of <a href> elements,
// without fragments or query strings, in document order.
func links(root *html.Node, base *url.URL) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := strings.TrimSpace(attr(n, "href"))
			if href != "" && !strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:") {
				if u, err := base.Parse(href); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
					s := canonicalURL(u)
					if !seen[s] {
						seen[s] = true
						out = append(out, s)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// substantive rejects pages that are too short or mostly navigation words.
func substantive(text string) bool {
	if len(strings.TrimSpace(text)) < minPageChars {
		return false
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	nav := 0
	for _, w := range words {
		if navWords[strings.Trim(w, ".,:;!?|")] {
			nav++
		}
	}
	return float64(nav)/float64(len(words)) < maxNavRatio
}
