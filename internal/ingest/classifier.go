package ingest

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	tenderVocabRegex = regexp.MustCompile(`(?i)\b(tenders?|bids?|rfqs?|rfps?|rfbs?|quotations?|procurement|supply[\s\-_]+chain|scm|expressions?[\s\-_]+of[\s\-_]+interest|eoi)\b`)
	navVocabRegex    = regexp.MustCompile(`(?i)\b(leadership|services|investor[\s\-_]+relations|careers|vacancies|jobs|log[\s\-_]?in|sign[\s\-_]?in|register|faqs?|about[\s\-_]+us|contact[\s\-_]+us|home|news|media|gallery|events|sitemap|privacy|terms|disclaimer|mayor|council|departments?|newsletter|accessibility|cookies?)\b`)
	docExtRegex      = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?)$`)
	uploadPathRegex  = regexp.MustCompile(`(?i)/(wp-content/uploads|uploads?|sites/default/files|files|documents|docs|download|downloads|attachments?|media/docs)/`)
	strongCueRegex   = regexp.MustCompile(`(?i)(tender\s*(no|number)|bid\s*(no|number)|closing\s+date|rfq\s*(no|number)|quotation\s*(no|number))`)
)

const maxPlainWindow = 220

// Classifier stage names reported in a Verdict.
const (
	StageLooksTenderLike = "looks_tender_like"
	StageNavigation      = "navigation_noise"
	StageRealRow         = "real_tender_row"
)

// Verdict is the classifier's decision for one block.
type Verdict struct {
	Accepted bool
	Stage    string // stage that rejected, empty when accepted
}

// HasDocumentExtension reports whether the URL path ends in a document extension.
func HasDocumentExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return docExtRegex.MatchString(rawURL)
	}
	return docExtRegex.MatchString(u.Path)
}

func isUploadPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return uploadPathRegex.MatchString(u.Path)
}

// hrefWords turns a URL path into space-separated words for vocabulary checks.
func hrefWords(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	return strings.NewReplacer("/", " ", "-", " ", "_", " ", ".", " ").Replace(p + " " + u.RawQuery)
}

// LooksTenderLike is stage one: a document link, or tender vocabulary in the window.
func LooksTenderLike(b CandidateBlock) bool {
	if HasDocumentExtension(b.Href) {
		return true
	}
	return tenderVocabRegex.MatchString(b.Window())
}

// IsNavigationNoise is stage two. Site navigation vocabulary with no tender
// vocabulary is noise, and so is an overlong window without tender cues.
func IsNavigationNoise(b CandidateBlock) bool {
	text := b.Window()
	words := hrefWords(b.Href)
	// A linked document or a tender number counts as tender vocabulary:
	// "Provision of security services.pdf" is not a menu entry.
	hasTender := tenderVocabRegex.MatchString(text) || tenderVocabRegex.MatchString(words) ||
		HasDocumentExtension(b.Href) || TryPatterns(text, ListingPatterns.TenderNumber) != ""

	if (navVocabRegex.MatchString(text) || navVocabRegex.MatchString(words)) && !hasTender {
		return true
	}
	if len([]rune(text)) > maxPlainWindow && !strongCueRegex.MatchString(text) &&
		TryPatterns(text, ListingPatterns.TenderNumber) == "" {
		return true
	}
	return false
}

// IsRealTenderRow is stage three: positive confirmation that the block
// addresses one tender rather than a listing or menu entry.
func IsRealTenderRow(href, tenderNumber, description string) bool {
	if href == "" || isRootURL(href) {
		return false
	}
	if HasDocumentExtension(href) || isUploadPath(href) {
		return true
	}
	if len(strings.TrimSpace(tenderNumber)) >= 3 {
		return true
	}
	description = strings.TrimSpace(description)
	return len([]rune(description)) >= 15 &&
		tenderVocabRegex.MatchString(description) &&
		tenderVocabRegex.MatchString(hrefWords(href))
}

// Classify runs the three stages in order, short-circuiting on the first
// rejection. pageURL is the listing page; a link back to it is never a row.
func Classify(b CandidateBlock, pageURL string, f Fields) Verdict {
	if !LooksTenderLike(b) {
		return Verdict{Stage: StageLooksTenderLike}
	}
	if IsNavigationNoise(b) {
		return Verdict{Stage: StageNavigation}
	}
	if pageURL != "" && CanonicalizeURL(pageURL) == b.Href {
		return Verdict{Stage: StageRealRow}
	}
	if !IsRealTenderRow(b.Href, f.TenderNumber, listingDescription(b, f)) {
		return Verdict{Stage: StageRealRow}
	}
	return Verdict{Accepted: true}
}

var genericLinkText = map[string]bool{
	"download": true, "view": true, "click here": true, "here": true, "read more": true,
	"more": true, "pdf": true, "details": true, "open": true, "document": true,
}

// listingDescription picks the best description a listing block offers:
// the extracted one, else the link text, else the trimmed context.
func listingDescription(b CandidateBlock, f Fields) string {
	if f.Description != "" {
		return f.Description
	}
	link := cleanText(b.LinkText)
	if link != "" && !genericLinkText[strings.ToLower(link)] {
		if tn := f.TenderNumber; tn != "" && strings.EqualFold(link, tn) {
			link = ""
		}
	} else {
		link = ""
	}
	if link != "" {
		return truncateText(link, 300)
	}
	ctx := cleanText(b.ContextText)
	if ValidDescription(ctx) {
		return truncateText(ctx, 300)
	}
	return ""
}
