package models

import (
	"time"

	"github.com/google/uuid"
)

// TenderRecord is one normalized procurement notice. Every field is textual
// so a record maps one-to-one onto a row of the export schema.
type TenderRecord struct {
	Category              string `json:"category"`
	TenderNumber          string `json:"tender_number"`
	Description           string `json:"description"`
	AdvertisedDate        string `json:"advertised_date"`
	ClosingDate           string `json:"closing_date"`
	OrganOfState          string `json:"organ_of_state"`
	TenderType            string `json:"tender_type"`
	Province              string `json:"province"`
	Place                 string `json:"place"`
	SpecialConditions     string `json:"special_conditions"`
	ContactPerson         string `json:"contact_person"`
	Email                 string `json:"email"`
	Telephone             string `json:"telephone"`
	Fax                   string `json:"fax"`
	BriefingSession       string `json:"briefing_session"`
	BriefingCompulsory    string `json:"briefing_compulsory"`
	BriefingDateTime      string `json:"briefing_date_time"`
	BriefingVenue         string `json:"briefing_venue"`
	ESubmission           string `json:"e_submission"`
	TwoEnvelopeSubmission string `json:"two_envelope_submission"`
	SourceURL             string `json:"source_url"`
	TenderID              string `json:"tender_id"`
	Source                string `json:"source"`
}

// Columns is the export header. Order and names are consumed by downstream
// spreadsheets and must not change.
var Columns = []string{
	"Category",
	"Tender Number",
	"Tender Description",
	"Advertised",
	"Closing",
	"Organ Of State",
	"Tender Type",
	"Province",
	"Place where goods/works/services are required",
	"Special Conditions",
	"Contact Person",
	"Email",
	"Telephone number",
	"FAX Number",
	"Is there a briefing session?",
	"Is it compulsory?",
	"Briefing Date and Time",
	"Briefing Venue",
	"eSubmission",
	"Two Envelope Submission",
	"Source URL",
	"Tender ID",
	"Source",
}

// Row returns the record's values in Columns order.
func (r TenderRecord) Row() []string {
	return []string{
		r.Category,
		r.TenderNumber,
		r.Description,
		r.AdvertisedDate,
		r.ClosingDate,
		r.OrganOfState,
		r.TenderType,
		r.Province,
		r.Place,
		r.SpecialConditions,
		r.ContactPerson,
		r.Email,
		r.Telephone,
		r.Fax,
		r.BriefingSession,
		r.BriefingCompulsory,
		r.BriefingDateTime,
		r.BriefingVenue,
		r.ESubmission,
		r.TwoEnvelopeSubmission,
		r.SourceURL,
		r.TenderID,
		r.Source,
	}
}

// IngestRun is the bookkeeping row written for every scrape of one source.
type IngestRun struct {
	RunID          uuid.UUID  `json:"run_id"`
	SourceID       string     `json:"source_id"`
	Status         string     `json:"status"` // running, completed, failed
	ItemsFound     int        `json:"items_found"`
	ItemsSaved     int        `json:"items_saved"`
	Errors         int        `json:"errors"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailureMessage string     `json:"failure_message,omitempty"`
}

// Duration reports how long the run took, or zero while it is still running.
func (r IngestRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
