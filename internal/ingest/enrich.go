package ingest

import (
	"github.com/david/tender-finder/internal/models"
)

func validFlag(s string) bool {
	return s == "Yes" || s == "No"
}

// MergeEnrichment folds document-derived fields into a listing record. A field
// is overwritten only when the enrichment value is non-empty and passes the
// same validator the extractor uses, so a failed or weak enrichment never
// blanks or degrades a listing value. It reports whether anything changed.
func MergeEnrichment(rec *models.TenderRecord, f Fields) bool {
	if rec == nil || f.IsEmpty() {
		return false
	}

	changed := false
	set := func(dst *string, v string, valid func(string) bool) {
		if v == "" || !valid(v) || *dst == v {
			return
		}
		*dst = v
		changed = true
	}

	set(&rec.TenderNumber, f.TenderNumber, ValidTenderNumber)
	set(&rec.Description, f.Description, ValidDescription)
	set(&rec.AdvertisedDate, f.AdvertisedDate, validCanonicalDate)
	set(&rec.ClosingDate, f.ClosingDate, validCanonicalDate)
	set(&rec.ContactPerson, f.ContactPerson, ValidPerson)
	set(&rec.Email, f.Email, ValidEmail)
	set(&rec.Telephone, f.Telephone, ValidPhone)
	set(&rec.Fax, f.Fax, ValidPhone)
	set(&rec.SpecialConditions, f.SpecialConditions, validNonEmpty)
	set(&rec.BriefingSession, f.BriefingSession, validFlag)
	set(&rec.BriefingCompulsory, f.BriefingCompulsory, validFlag)
	set(&rec.BriefingDateTime, f.BriefingDateTime, validBriefingDateTime)
	set(&rec.BriefingVenue, f.BriefingVenue, validNonEmpty)
	set(&rec.ESubmission, f.ESubmission, validFlag)
	set(&rec.TwoEnvelopeSubmission, f.TwoEnvelopeSubmission, validFlag)

	return changed
}

// validBriefingDateTime accepts "dd/mm/yyyy" optionally followed by " HH:MM".
func validBriefingDateTime(s string) bool {
	if len(s) < 10 {
		return false
	}
	return validCanonicalDate(s[:10]) && (len(s) == 10 || timeOfDayRegex.MatchString(s[10:]))
}

// listingRecord builds the listing-derived partial record for an accepted block.
func listingRecord(cfg SourceConfig, b CandidateBlock, f Fields) models.TenderRecord {
	return models.TenderRecord{
		TenderNumber:          f.TenderNumber,
		Description:           listingDescription(b, f),
		AdvertisedDate:        f.AdvertisedDate,
		ClosingDate:           f.ClosingDate,
		ContactPerson:         f.ContactPerson,
		Email:                 f.Email,
		Telephone:             f.Telephone,
		Fax:                   f.Fax,
		SpecialConditions:     f.SpecialConditions,
		BriefingSession:       f.BriefingSession,
		BriefingCompulsory:    f.BriefingCompulsory,
		BriefingDateTime:      f.BriefingDateTime,
		BriefingVenue:         f.BriefingVenue,
		ESubmission:           f.ESubmission,
		TwoEnvelopeSubmission: f.TwoEnvelopeSubmission,
		SourceURL:             b.Href,
		Source:                cfg.ShortName,
	}
}
