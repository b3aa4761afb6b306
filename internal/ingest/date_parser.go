package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const canonicalDateLayout = "02/01/2006"

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
	// "Sept" is common on municipal notices and is not a 3-letter abbreviation.
	"sept": time.September,
}

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|sept|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec`
const weekdayAlternation = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun`

var (
	numericDMYRegex = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})\b`)
	isoDateRegex    = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})(?:\b|T)`)
	dayMonthRegex   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	weekdayRegex    = regexp.MustCompile(`(?i)\b(?:` + weekdayAlternation + `)\.?,?\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	monthDayRegex   = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// NormalizeDate finds the first date expression in text and returns it as
// dd/mm/yyyy. It returns "" when nothing plausible is found; it never returns
// any other shape.
func NormalizeDate(text string) string {
	return NormalizeDateWithHints(text, nil)
}

// maxHintWords bounds the word runs tried against a layout hint.
const maxHintWords = 6

// NormalizeDateWithHints tries the adapter's Go layouts against the cleaned
// text before running the generic cascade. A layout matches any run of whole
// words, so "03/14/2025 at 11:00" still parses with "01/02/2006".
func NormalizeDateWithHints(text string, layouts []string) string {
	text = cleanDateString(text)
	if text == "" {
		return ""
	}

	if out := parseWithLayouts(text, layouts); out != "" {
		return out
	}

	// (a) dd/mm/yyyy and its dash/dot variants
	if m := numericDMYRegex.FindStringSubmatch(text); m != nil {
		if out, ok := civilDate(atoi(m[3]), atoi(m[2]), atoi(m[1])); ok {
			return out
		}
	}

	// (b) ISO yyyy-mm-dd
	if m := isoDateRegex.FindStringSubmatch(text); m != nil {
		if out, ok := civilDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return out
		}
	}

	// (c) D Month YYYY
	if m := dayMonthRegex.FindStringSubmatch(text); m != nil {
		if out, ok := civilDate(atoi(m[3]), monthNumber(m[2]), atoi(m[1])); ok {
			return out
		}
	}

	// (d) weekday-prefixed, including "Monday the 3rd of March 2025"
	if m := weekdayRegex.FindStringSubmatch(text); m != nil {
		if out, ok := civilDate(atoi(m[3]), monthNumber(m[2]), atoi(m[1])); ok {
			return out
		}
	}

	// Month D, YYYY
	if m := monthDayRegex.FindStringSubmatch(text); m != nil {
		if out, ok := civilDate(atoi(m[3]), monthNumber(m[1]), atoi(m[2])); ok {
			return out
		}
	}

	return ""
}

// parseWithLayouts returns the earliest word run in text that one of layouts
// parses, in canonical form.
func parseWithLayouts(text string, layouts []string) string {
	if len(layouts) == 0 {
		return ""
	}
	words := strings.Fields(text)
	for i := range words {
		for j := i + 1; j <= len(words) && j-i <= maxHintWords; j++ {
			run := strings.TrimRight(strings.Join(words[i:j], " "), ".,;")
			for _, layout := range layouts {
				t, err := time.Parse(layout, run)
				if err != nil {
					continue
				}
				if out, ok := civilDate(t.Year(), int(t.Month()), t.Day()); ok {
					return out
				}
			}
		}
	}
	return ""
}

// civilDate validates a calendar date and formats it canonically.
func civilDate(year, month, day int) (string, bool) {
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		// time.Date normalises 31/02 into March
		return "", false
	}
	return t.Format(canonicalDateLayout), true
}

func monthNumber(name string) int {
	return int(monthNames[strings.ToLower(strings.TrimSuffix(name, "."))])
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// cleanDateString removes common label prefixes and cleans up date strings.
func cleanDateString(s string) string {
	s = normalizeSpace(s)
	prefixes := []string{
		"closing date:", "closing date and time:", "closing:", "advertised:",
		"advertised date:", "date advertised:", "deadline:", "due date:",
	}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// ParseCanonicalDate parses a dd/mm/yyyy value produced by NormalizeDate.
func ParseCanonicalDate(s string) (time.Time, error) {
	t, err := time.Parse(canonicalDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a canonical date %q: %w", s, err)
	}
	return t, nil
}
