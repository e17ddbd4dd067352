package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"
)

// boilerplate lists elements that never carry article text.
const boilerplate = "script, style, noscript, template, nav, header, footer, aside, form, iframe, svg, button, select"

// noiseClasses and noiseIDs name menus, banners and similar chrome. Classes
// match whole tokens so wrappers such as "has-sidebar" are left alone.
var noiseClasses = []string{
	"cookie", "cookies", "cookie-banner", "cookie-notice", "consent", "navbar", "menu", "nav-menu",
	"advert", "advertisement", "ads", "banner", "sidebar", "widget-area", "comment", "comments",
	"share", "sharing", "social", "social-share", "related", "related-posts",
}

var noiseIDs = []string{"cookie-banner", "cookie-notice", "consent", "menu", "sidebar", "comments", "related"}

// noiseSelector matches noise elements by class token, id or aria-hidden.
var noiseSelector = func() string {
	parts := make([]string, 0, len(noiseClasses)+len(noiseIDs)+1)
	for _, c := range noiseClasses {
		parts = append(parts, `[class~="`+c+`"]`)
	}
	for _, id := range noiseIDs {
		parts = append(parts, `[id="`+id+`"]`)
	}
	parts = append(parts, `[aria-hidden="true"]`)
	return strings.Join(parts, ", ")
}()

// contentGuard matches elements that are, or wrap, the main content.
const contentGuard = "html, body, article, main, [role=main], :has(article), :has(main), :has([role=main])"

// mainSelectors are tried in order before falling back to scoring.
var mainSelectors = []string{"article", "main", "[role=main]", "#content", ".post-content", ".entry-content"}

// blockTags end a line of text.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "pre": true, "blockquote": true,
	"tr": true, "td": true, "th": true, "table": true, "br": true, "dd": true, "dt": true, "figcaption": true,
}

// Text extracts readable article text from an HTML document. When the
// main-content pass yields fewer than minChars runes, the whole document is
// converted with html2text instead.
func Text(body []byte, minChars int) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fallbackText(body)
	}

	doc.Find(boilerplate).Remove()
	doc.Find(noiseSelector).Not(contentGuard).Remove()

	text := nodeText(mainContent(doc))
	if utf8.RuneCountInString(text) >= minChars {
		return text
	}
	if fb := fallbackText(body); utf8.RuneCountInString(fb) > utf8.RuneCountInString(text) {
		return fb
	}
	return text
}

// mainContent picks the first semantic container with text, otherwise the
// block with the highest paragraph score, otherwise body.
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainSelectors {
		s := doc.Find(sel).First()
		if s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			return s
		}
	}

	var best *goquery.Selection
	bestScore := 0.0
	doc.Find("div, section, td").Each(func(_ int, s *goquery.Selection) {
		if score := blockScore(s); score > bestScore {
			best, bestScore = s, score
		}
	})
	if best != nil {
		return best
	}
	return doc.Find("body")
}

// blockScore rewards direct paragraph text and penalizes link-heavy blocks.
func blockScore(s *goquery.Selection) float64 {
	var paraChars, paras int
	s.ChildrenFiltered("p, pre, blockquote").Each(func(_ int, p *goquery.Selection) {
		n := utf8.RuneCountInString(strings.TrimSpace(p.Text()))
		if n >= 25 {
			paraChars += n
			paras++
		}
	})
	if paras == 0 {
		return 0
	}
	total := utf8.RuneCountInString(s.Text())
	linkChars := utf8.RuneCountInString(s.Find("a").Text())
	linkDensity := 0.0
	if total > 0 {
		linkDensity = float64(linkChars) / float64(total)
	}
	return (float64(paraChars) + float64(paras)*10) * (1 - linkDensity)
}

// nodeText flattens the selection to lines, breaking at block elements.
func nodeText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if blockTags[n.Data] {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return normalize(b.String())
}

func fallbackText(body []byte) string {
	return normalize(html2text.HTML2Text(string(body)))
}

// normalize collapses runs of whitespace inside lines and drops blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Truncate returns s cut to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
