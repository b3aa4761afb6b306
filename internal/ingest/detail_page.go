package ingest

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxAttachments bounds how many linked documents a detail page may pull in.
const maxAttachments = 1

var attachmentAnchorRegex = regexp.MustCompile(`(?i)\b(tender\s+document|bid\s+document|specification|terms\s+of\s+reference|annexure|annex|attachments?|download|rfq\s+document)\b`)

// collectAttachmentLinks returns document links found on a tender detail
// page, in page order and without duplicates.
func collectAttachmentLinks(pageURL string, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(pageURL)
	seen := map[string]bool{}
	var out []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		abs := resolveURL(base, sel.AttrOr("href", ""))
		if abs == "" || seen[abs] {
			return
		}
		anchorText := cleanText(sel.Text())
		if !HasDocumentExtension(abs) && !isUploadPath(abs) && !attachmentAnchorRegex.MatchString(anchorText) {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})

	return out
}

// structuredPageText flattens a detail page so label/value layouts read like
// the labelled lines of a tender document: table rows become "label: value"
// and definition lists "term: definition".
func structuredPageText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return HTMLToText(string(body))
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	parts := make([]string, 0, 64)

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := make([]string, 0, 4)
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if v := cleanText(cell.Text()); v != "" {
				cells = append(cells, v)
			}
		})
		switch len(cells) {
		case 0:
		case 1:
			parts = append(parts, cells[0])
		default:
			parts = append(parts, strings.TrimRight(cells[0], ": ")+": "+strings.Join(cells[1:], " | "))
		}
	})

	doc.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		term := cleanText(dt.Text())
		def := cleanText(dt.NextFiltered("dd").Text())
		if term != "" && def != "" {
			parts = append(parts, strings.TrimRight(term, ": ")+": "+def)
		}
	})

	doc.Find("h1, h2, h3, p, li").Each(func(_ int, sel *goquery.Selection) {
		// Skip containers whose text is already covered by a table row.
		if sel.Find("table").Length() > 0 {
			return
		}
		if text := cleanText(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	if len(parts) == 0 {
		return cleanText(doc.Find("body").Text())
	}
	return strings.Join(parts, "\n")
}
