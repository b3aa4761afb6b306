package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

// Candidate is one rung of a field cascade. Group selects the submatch that
// holds the value; Validate may be nil.
type Candidate struct {
	Pattern  *regexp.Regexp
	Group    int
	Validate func(string) bool
}

// TryPatterns returns the first candidate value that matches and validates.
// Candidates are ordered by precision, so an earlier rung always wins over a
// later one even when both match.
func TryPatterns(text string, candidates []Candidate) string {
	if text == "" {
		return ""
	}
	for _, c := range candidates {
		for _, m := range c.Pattern.FindAllStringSubmatch(text, -1) {
			if c.Group >= len(m) {
				continue
			}
			v := strings.Trim(normalizeSpace(m[c.Group]), " .,;:-")
			if v == "" {
				continue
			}
			if c.Validate == nil || c.Validate(v) {
				return v
			}
		}
	}
	return ""
}

// FieldPatterns groups the cascades used for one kind of text.
type FieldPatterns struct {
	TenderNumber      []Candidate
	Description       []Candidate
	ClosingDate       []Candidate
	AdvertisedDate    []Candidate
	ContactPerson     []Candidate
	Email             []Candidate
	Telephone         []Candidate
	Fax               []Candidate
	BriefingDateTime  []Candidate
	BriefingVenue     []Candidate
	SpecialConditions []Candidate
}

// Fields is a partial record: what one text blob yielded.
type Fields struct {
	TenderNumber          string
	Description           string
	AdvertisedDate        string
	ClosingDate           string
	ContactPerson         string
	Email                 string
	Telephone             string
	Fax                   string
	SpecialConditions     string
	BriefingSession       string
	BriefingCompulsory    string
	BriefingDateTime      string
	BriefingVenue         string
	ESubmission           string
	TwoEnvelopeSubmission string
}

// IsEmpty reports whether nothing was extracted.
func (f Fields) IsEmpty() bool {
	return f == Fields{}
}

const (
	// tenderNumberToken matches identifiers such as "SCM 12/2025",
	// "EMM-12-2025", "RFQ/2025/001" and "T45/2024". Case-sensitive on purpose.
	tenderNumberToken = `((?:[A-Z]{1,10}[ \-/]?)?\d[A-Z0-9]*(?:[/\-.][A-Z0-9]+)*)`
	phoneToken        = `(\+?\(?\d[\d ()\-]{7,16}\d)`
	fieldStop         = `(?i:closing|tender no|tender number|bid no|bid number|contact|enquiries|advertised|briefing|compulsory|telephone|tel|email|e-mail|fax|venue|date)`
)

var (
	emailRegex       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	timeOfDayRegex   = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])\s*[:hH]\s*([0-5]\d)\b`)
	yearOnlyRegex    = regexp.MustCompile(`^(19|20)\d{2}$`)
	canonicalDateRgx = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

var tenderNumberStopwords = map[string]bool{
	"BID": true, "BIDS": true, "TENDER": true, "TENDERS": true, "DOCUMENT": true,
	"DOCUMENTS": true, "NO": true, "NUMBER": true, "RFQ": true, "QUOTATION": true,
}

// ValidTenderNumber accepts identifiers of 2 to 40 characters containing a
// digit that are neither bare vocabulary nor a date.
func ValidTenderNumber(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 40 {
		return false
	}
	if tenderNumberStopwords[strings.ToUpper(s)] {
		return false
	}
	if !strings.ContainsFunc(s, unicode.IsDigit) {
		return false
	}
	if yearOnlyRegex.MatchString(s) {
		return false
	}
	if NormalizeDate(s) != "" && (numericDMYRegex.FindString(s) == s || isoDateRegex.FindString(s) == s) {
		return false
	}
	return true
}

var descriptionBoilerplate = []string{
	"preference point system",
	"preferential procurement",
	"80/20",
	"90/10",
	"b-bbee status level",
	"bids will be evaluated",
	"no late bids",
	"lowest or any bid",
	"the municipality reserves the right",
	"click here",
	"read more",
	"download",
}

// ValidDescription rejects fragments that are too short, too long or known
// disclaimer boilerplate.
func ValidDescription(s string) bool {
	n := len([]rune(s))
	if n < 10 || n > 500 {
		return false
	}
	lower := strings.ToLower(s)
	for _, phrase := range descriptionBoilerplate {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters*2 >= n
}

// ValidPerson accepts short name-like strings.
func ValidPerson(s string) bool {
	n := len(s)
	if n < 3 || n > 60 || strings.ContainsFunc(s, unicode.IsDigit) {
		return false
	}
	lower := strings.ToLower(s)
	for _, w := range []string{"tender", "bid", "supply chain", "department", "office", "municipality"} {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

// ValidPhone accepts 9 to 13 digit numbers.
func ValidPhone(s string) bool {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 9 && digits <= 13
}

// ValidEmail accepts a single address.
func ValidEmail(s string) bool {
	return emailRegex.FindString(s) == s
}

func validDateText(s string) bool {
	return NormalizeDate(s) != ""
}

// withDateHints makes date candidates accept what the layout hints parse.
// Without hints a US-style "03/14/2025" would fail validation and never reach
// the hint-aware normalizer.
func withDateHints(candidates []Candidate, layouts []string) []Candidate {
	if len(layouts) == 0 {
		return candidates
	}
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Validate = func(s string) bool { return NormalizeDateWithHints(s, layouts) != "" }
		out[i] = c
	}
	return out
}

func validCanonicalDate(s string) bool {
	return canonicalDateRgx.MatchString(s)
}

func validNonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func mustCandidate(expr string, group int, validate func(string) bool) Candidate {
	return Candidate{Pattern: regexp.MustCompile(expr), Group: group, Validate: validate}
}

var (
	briefingDateTimeCandidates = []Candidate{
		mustCandidate(`(?i:briefing\s+(?:session|meeting)|site\s+(?:meeting|inspection)|clarification\s+meeting)[^.]{0,60}?(?i:\bon\b|date(?:\s+and\s+time)?\s*[:\-]?|:)\s*(.{6,60})`, 1, validDateText),
	}
	briefingVenueCandidates = []Candidate{
		mustCandidate(`(?i:briefing\s+(?:session\s+)?venue|venue|meeting\s+place)\s*[:\-]\s*(.{5,120}?)(?:\s+(?i:date|time|closing|contact|on)\b|\n|$)`, 1, validNonEmpty),
	}
	specialConditionCandidates = []Candidate{
		mustCandidate(`(?i:special\s+conditions?)\s*[:\-]\s*(.{5,200}?)(?:\.\s|\n|$)`, 1, validNonEmpty),
		mustCandidate(`(?i)\b(CIDB\s+(?:grading|grade)\s+(?:of\s+)?\d{1,2}\s*[A-Z]{1,2}(?:\s+or\s+higher)?)`, 1, validNonEmpty),
	}
)

// ListingPatterns are tuned for short anchor and row text.
var ListingPatterns = FieldPatterns{
	TenderNumber: []Candidate{
		mustCandidate(`\b(?i:tender|bid|quotation|rfq|rfp|contract)\s*(?i:(?:no|number|nr|ref|reference)\b\.?|#)\s*[:.\-]?\s*`+tenderNumberToken, 1, ValidTenderNumber),
		mustCandidate(`\b((?:SCM|RFQ|RFP|RFB|BID|TENDER|EMM|CCT|COJ|T|Q|B)[ \-/]?\d[A-Z0-9]*(?:[/\-.][A-Z0-9]+)*)`, 1, ValidTenderNumber),
		mustCandidate(`\b([A-Z]{2,10}[ \-/]?\d+(?:[/\-][A-Z0-9]+)+)\b`, 1, ValidTenderNumber),
	},
	Description: []Candidate{
		mustCandidate(`(?i:description|project name|project|subject|title)\s*[:\-]\s*(.+?)(?:\s+`+fieldStop+`\b|$)`, 1, ValidDescription),
		mustCandidate(`(?i)\b((?:supply|provision|appointment|construction|maintenance|upgrade|upgrading|repair|repairs|rehabilitation|installation|hire|procurement|delivery|refurbishment|servicing|design|development|renovation|purchase|rental|cleaning|request for)\b.+?)(?:\s+`+fieldStop+`\b|[;|]|$)`, 1, ValidDescription),
	},
	ClosingDate: []Candidate{
		mustCandidate(`(?i:closing\s+date(?:\s+and\s+time)?|closes|closing|due\s+date|deadline)\s*[:\-]?\s*(.{6,60})`, 1, validDateText),
	},
	AdvertisedDate: []Candidate{
		mustCandidate(`(?i:advertised(?:\s+date)?|date\s+advertised|published|posted(?:\s+on)?|issue\s+date)\s*[:\-]?\s*(.{6,60})`, 1, validDateText),
	},
	ContactPerson: []Candidate{
		mustCandidate(`(?i:contact\s+person|enquiries|contact)\s*[:\-]\s*((?:(?:Mr|Mrs|Ms|Dr|Prof)\.?[ \t]+)?[A-Z][a-zA-Z'\-]+(?:[ \t]+[A-Z][a-zA-Z'\-]+){0,3})`, 1, ValidPerson),
	},
	Email: []Candidate{
		mustCandidate(`(`+emailRegex.String()+`)`, 1, ValidEmail),
	},
	Telephone: []Candidate{
		mustCandidate(`(?i:tel(?:ephone)?(?:\s+number)?|phone|cell)\s*(?i:no\.?)?\s*[:.\-]?\s*`+phoneToken, 1, ValidPhone),
	},
	Fax: []Candidate{
		mustCandidate(`(?i:fax(?:\s+number)?)\s*(?i:no\.?)?\s*[:.\-]?\s*`+phoneToken, 1, ValidPhone),
	},
	BriefingDateTime:  briefingDateTimeCandidates,
	BriefingVenue:     briefingVenueCandidates,
	SpecialConditions: specialConditionCandidates,
}

// DocumentPatterns are keyed to the structured labels that tender documents carry.
var DocumentPatterns = FieldPatterns{
	TenderNumber: []Candidate{
		mustCandidate(`\b(?i:tender|bid|quotation|rfq|rfb|contract)\s+(?i:(?:number|no|ref|reference)\b\.?(?:\s+no\b\.?)?)\s*[:.]\s*`+tenderNumberToken, 1, ValidTenderNumber),
		mustCandidate(`(?i:reference\s+number|ref\s+no\.?)\s*[:.]\s*`+tenderNumberToken, 1, ValidTenderNumber),
		ListingPatterns.TenderNumber[1],
	},
	Description: []Candidate{
		mustCandidate(`(?i:project\s+name|name\s+of\s+project|tender\s+description|bid\s+description|description\s+of\s+(?:the\s+)?(?:services|works|goods)|description)\s*[:.]\s*(.+?)(?:\s+`+fieldStop+`\b|\n|$)`, 1, ValidDescription),
		ListingPatterns.Description[1],
	},
	ClosingDate: []Candidate{
		mustCandidate(`(?i:closing\s+date(?:\s+and\s+time)?|closing\s+time\s+and\s+date|deadline\s+for\s+submission|submission\s+deadline)\s*[:.\-]?\s*(.{6,60})`, 1, validDateText),
		ListingPatterns.ClosingDate[0],
	},
	AdvertisedDate: []Candidate{
		mustCandidate(`(?i:date\s+of\s+issue|issue\s+date|date\s+advertised|advertised(?:\s+date)?)\s*[:.\-]?\s*(.{6,60})`, 1, validDateText),
	},
	ContactPerson: []Candidate{
		mustCandidate(`(?i:contact\s+person|technical\s+enquiries|bid\s+enquiries|enquiries)\s*[:.\-]\s*((?:(?:Mr|Mrs|Ms|Dr|Prof)\.?[ \t]+)?[A-Z][a-zA-Z'\-]+(?:[ \t]+[A-Z][a-zA-Z'\-]+){0,3})`, 1, ValidPerson),
	},
	Email:             ListingPatterns.Email,
	Telephone:         ListingPatterns.Telephone,
	Fax:               ListingPatterns.Fax,
	BriefingDateTime:  briefingDateTimeCandidates,
	BriefingVenue:     briefingVenueCandidates,
	SpecialConditions: specialConditionCandidates,
}

// ExtractFields runs every cascade in p over text. Dates are returned in
// canonical form; layouts are the adapter's date hints.
func ExtractFields(text string, p FieldPatterns, layouts []string) Fields {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fields{}
	}
	flat := normalizeSpace(text)

	f := Fields{
		TenderNumber:      TryPatterns(flat, p.TenderNumber),
		Description:       TryPatterns(text, p.Description),
		ContactPerson:     trimTrailingLabels(TryPatterns(text, p.ContactPerson)),
		Email:             strings.ToLower(TryPatterns(flat, p.Email)),
		Telephone:         TryPatterns(flat, p.Telephone),
		Fax:               TryPatterns(flat, p.Fax),
		BriefingVenue:     TryPatterns(text, p.BriefingVenue),
		SpecialConditions: TryPatterns(text, p.SpecialConditions),
	}
	f.Description = normalizeSpace(f.Description)
	f.BriefingVenue = normalizeSpace(f.BriefingVenue)
	f.SpecialConditions = normalizeSpace(f.SpecialConditions)

	f.ClosingDate = NormalizeDateWithHints(TryPatterns(flat, withDateHints(p.ClosingDate, layouts)), layouts)
	f.AdvertisedDate = NormalizeDateWithHints(TryPatterns(flat, withDateHints(p.AdvertisedDate, layouts)), layouts)

	if raw := TryPatterns(flat, withDateHints(p.BriefingDateTime, layouts)); raw != "" {
		if d := NormalizeDateWithHints(raw, layouts); d != "" {
			f.BriefingDateTime = d
			if m := timeOfDayRegex.FindStringSubmatch(raw); m != nil {
				f.BriefingDateTime += " " + twoDigits(m[1]) + ":" + m[2]
			}
		}
	}

	lower := strings.ToLower(flat)
	f.BriefingSession, f.BriefingCompulsory = briefingFlags(lower)
	if f.BriefingDateTime != "" && f.BriefingSession == "" {
		f.BriefingSession = "Yes"
	}
	f.ESubmission = eSubmissionFlag(lower)
	f.TwoEnvelopeSubmission = twoEnvelopeFlag(lower)
	return f
}

var labelWords = map[string]bool{
	"tel": true, "telephone": true, "phone": true, "cell": true, "email": true, "e-mail": true,
	"fax": true, "contact": true, "closing": true, "date": true, "venue": true, "enquiries": true,
}

// trimTrailingLabels drops capitalised label words the name pattern swallowed,
// as in "Mr John Smith Tel".
func trimTrailingLabels(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 && labelWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func twoDigits(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func containsAny(s string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func briefingFlags(lower string) (session, compulsory string) {
	switch {
	case containsAny(lower, "no briefing", "briefing session: n/a", "briefing session: none", "briefing: none", "briefing: n/a", "will not be a briefing"):
		return "No", ""
	case containsAny(lower, "briefing session", "briefing meeting", "site meeting", "site inspection", "clarification meeting", "site visit"):
		session = "Yes"
	default:
		return "", ""
	}

	switch {
	case containsAny(lower, "non-compulsory", "non compulsory", "not compulsory", "optional briefing", "not mandatory", "non-mandatory"):
		compulsory = "No"
	case containsAny(lower, "compulsory", "mandatory"):
		compulsory = "Yes"
	}
	return session, compulsory
}

func eSubmissionFlag(lower string) string {
	switch {
	case containsAny(lower, "electronic submissions will not", "e-mailed bids will not", "emailed bids will not", "no electronic", "hand delivered only", "faxed or e-mailed"):
		return "No"
	case containsAny(lower, "e-submission", "esubmission", "electronic submission", "submitted electronically", "submit electronically", "e-tender portal", "etenders portal", "online submission"):
		return "Yes"
	}
	return ""
}

func twoEnvelopeFlag(lower string) string {
	if containsAny(lower, "two envelope", "two-envelope", "2 envelope", "dual envelope", "separate envelopes", "two-stage envelope") {
		return "Yes"
	}
	return ""
}
