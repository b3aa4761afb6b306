package ingest

import (
	"strings"
	"time"

	"github.com/david/tender-finder/internal/models"
)

const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusAwarded   = "awarded"
	StatusCancelled = "cancelled"
	StatusUnknown   = "unknown"
)

type StatusDecision struct {
	Status     string
	Reason     string
	Confidence float64
	ClosingAt  *time.Time
}

// awardKeywords mark award notices that listing pages mix in with open
// tenders. They are matched against the description only, never the URL.
var awardKeywords = []string{
	"awarded to",
	"award of tender",
	"award of bid",
	"bid award",
	"tender award",
	"successful bidder",
	"successful tenderer",
	"preferred bidder",
	"notice of award",
}

var cancelKeywords = []string{
	"cancelled",
	"canceled",
	"cancellation of tender",
	"withdrawn",
	"tender cancellation",
}

// ComputeStatus classifies an assembled record relative to now. Closing dates
// are civil dates, so a tender stays open for the whole of its closing day.
func ComputeStatus(rec models.TenderRecord, now time.Time) StatusDecision {
	closing := closingTime(rec.ClosingDate)
	text := strings.ToLower(rec.Description + " " + rec.SpecialConditions)

	if containsAny(text, cancelKeywords...) {
		return StatusDecision{Status: StatusCancelled, Reason: "cancellation_notice", Confidence: 0.9, ClosingAt: closing}
	}
	if containsAny(text, awardKeywords...) {
		return StatusDecision{Status: StatusAwarded, Reason: "award_notice", Confidence: 0.9, ClosingAt: closing}
	}

	if closing == nil {
		return StatusDecision{Status: StatusUnknown, Reason: "missing_closing_date", Confidence: 0.2}
	}

	today := civilDay(now)
	if closing.Before(today) {
		return StatusDecision{Status: StatusClosed, Reason: "closing_date_passed", Confidence: 0.95, ClosingAt: closing}
	}
	return StatusDecision{Status: StatusOpen, Reason: "future_closing_date", Confidence: 0.93, ClosingAt: closing}
}

func closingTime(date string) *time.Time {
	if date == "" {
		return nil
	}
	t, err := ParseCanonicalDate(date)
	if err != nil {
		return nil
	}
	return &t
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FilterByStatus keeps records whose computed status is one of statuses.
// An empty filter keeps everything.
func FilterByStatus(records []models.TenderRecord, now time.Time, statuses ...string) []models.TenderRecord {
	if len(statuses) == 0 {
		return records
	}
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[strings.ToLower(strings.TrimSpace(s))] = true
	}
	out := make([]models.TenderRecord, 0, len(records))
	for _, r := range records {
		if want[ComputeStatus(r, now).Status] {
			out = append(out, r)
		}
	}
	return out
}
