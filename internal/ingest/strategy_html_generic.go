package ingest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	defaultLinkSelector    = "a[href]"
	defaultContextSelector = "li, tr, article, div"
	maxContextRunes        = 1000
)

// windowBreaks are elements a trailing-text window never climbs out of.
var windowBreaks = map[string]bool{
	"p": true, "li": true, "dd": true, "dt": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "nav": true, "footer": true,
	"aside": true, "section": true, "article": true, "form": true,
}

// ScanAnchors emits one block per link on the page. The text window is the
// anchor text plus its context, see anchorContext.
func ScanAnchors(doc *goquery.Document, pageURL string, sel SelectorConfig) []CandidateBlock {
	base, _ := url.Parse(pageURL)
	linkSel := firstNonEmpty(sel.Link, defaultLinkSelector)
	contextSel := firstNonEmpty(sel.Context, defaultContextSelector)

	var blocks []CandidateBlock
	doc.Find(linkSel).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := resolveURL(base, href)
		if abs == "" {
			return
		}

		linkText := cleanText(a.Text())
		if linkText == "" {
			linkText = cleanText(firstNonEmpty(a.AttrOr("title", ""), a.AttrOr("aria-label", "")))
		}

		blocks = append(blocks, CandidateBlock{
			Href:        abs,
			LinkText:    linkText,
			ContextText: anchorContext(a, abs, base, contextSel),
		})
	})
	return blocks
}

// anchorContext returns the nearest enclosing block when it links nowhere
// else. A shared block (a page wrapper, a menu) would lend every row's text
// to every link, so the window then shrinks to the text following the anchor
// up to the next link, inside that block.
func anchorContext(a *goquery.Selection, abs string, base *url.URL, contextSel string) string {
	enclosing := a.Closest(contextSel)
	if enclosing.Length() > 0 && !linksElsewhere(enclosing.Nodes[0], base, abs) {
		return truncateText(cleanText(enclosing.Text()), maxContextRunes)
	}

	var boundary *html.Node
	if enclosing.Length() > 0 {
		boundary = enclosing.Nodes[0]
	}
	return truncateText(cleanText(trailingText(a.Nodes[0], boundary, base, abs)), maxContextRunes)
}

// trailingText collects text after n until an element linking elsewhere,
// the boundary, or the end of the paragraph-level element holding n.
func trailingText(n, boundary *html.Node, base *url.URL, self string) string {
	var b strings.Builder
	for cur := n; cur != nil && cur != boundary; cur = cur.Parent {
		for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
			if sib.Type == html.ElementNode && linksElsewhere(sib, base, self) {
				return b.String()
			}
			writeText(&b, sib)
		}
		if p := cur.Parent; p != nil && p.Type == html.ElementNode && windowBreaks[p.Data] {
			break
		}
	}
	return b.String()
}

// linksElsewhere reports whether n is or contains a link to anything but self.
func linksElsewhere(n *html.Node, base *url.URL, self string) bool {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				if abs := resolveURL(base, attr.Val); abs != "" && abs != self {
					return true
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if linksElsewhere(c, base, self) {
			return true
		}
	}
	return false
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteString(" ")
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(b, c)
		}
	}
}

// ScanRows emits one block per container element (typically a table row),
// using the first link in the row as the block's href.
func ScanRows(doc *goquery.Document, pageURL string, sel SelectorConfig) []CandidateBlock {
	base, _ := url.Parse(pageURL)
	container := firstNonEmpty(sel.Container, "tr")
	linkSel := firstNonEmpty(sel.Link, defaultLinkSelector)

	var blocks []CandidateBlock
	doc.Find(container).Each(func(_ int, row *goquery.Selection) {
		// Header rows carry no link and no data.
		if row.Find("th").Length() > 0 && row.Find("td").Length() == 0 {
			return
		}

		link := row.Find(linkSel).First()
		if link.Length() == 0 {
			return
		}
		abs := resolveURL(base, link.AttrOr("href", ""))
		if abs == "" {
			return
		}

		blocks = append(blocks, CandidateBlock{
			Href:        abs,
			LinkText:    cleanText(link.Text()),
			ContextText: truncateText(rowText(row), maxContextRunes),
		})
	})
	return blocks
}

// rowText joins cell texts with a separator so labels of adjacent cells do
// not run together.
func rowText(row *goquery.Selection) string {
	cells := row.Find("td")
	if cells.Length() == 0 {
		return cleanText(row.Text())
	}
	parts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, td *goquery.Selection) {
		if t := cleanText(td.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " | ")
}
