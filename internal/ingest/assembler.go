package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/david/tender-finder/internal/models"
)

const maxDescriptionRunes = 500

// DedupKey is the identity of a record within one source: tender number,
// source URL and description, lowercased with whitespace collapsed.
func DedupKey(r models.TenderRecord) string {
	return strings.ToLower(normalizeSpace(r.TenderNumber + "|" + r.SourceURL + "|" + r.Description))
}

// PlaceholderTenderNumber is used when neither the listing nor the document
// yielded a tender number. It is stable for a given source URL.
func PlaceholderTenderNumber(shortName, sourceURL string) string {
	sum := sha1.Sum([]byte(sourceURL))
	return strings.ToUpper(shortName) + "-" + strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// PlaceholderDescription is used when no usable description was found.
func PlaceholderDescription(cfg SourceConfig) string {
	return "Tender notice published by " + firstNonEmpty(cfg.OrganOfState, cfg.ShortName)
}

// Assemble turns partial records into the final list for one source. It
// enforces the source invariant over the whole batch first: one record
// claiming another source rejects everything with an *IntegrityError.
// Defaults and placeholders are then filled, duplicates dropped
// (first seen wins) and the result truncated to limit, where 0 means the
// adapter's limit and an adapter limit of 0 means unlimited.
//
// Assemble does not modify records and is idempotent.
func Assemble(cfg SourceConfig, records []models.TenderRecord, limit int) ([]models.TenderRecord, error) {
	for i, r := range records {
		if r.Source != cfg.ShortName {
			return nil, &IntegrityError{SourceID: cfg.ID, Expected: cfg.ShortName, Got: r.Source, Row: i}
		}
	}

	if limit == 0 {
		limit = cfg.Limit
	}

	base, _ := url.Parse(cfg.BaseURL)
	seen := make(map[string]struct{}, len(records))
	out := make([]models.TenderRecord, 0, len(records))

	for _, r := range records {
		r = normalizeRecord(cfg, base, r)

		key := DedupKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)

		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// keptPrefix returns how many leading records Assemble reaches before limit
// unique records are kept, counting duplicates the way Assemble does. Work
// on records past that point is wasted.
func keptPrefix(cfg SourceConfig, records []models.TenderRecord, limit int) int {
	if limit == 0 {
		limit = cfg.Limit
	}
	if limit <= 0 {
		return len(records)
	}

	base, _ := url.Parse(cfg.BaseURL)
	seen := make(map[string]struct{}, limit)
	for i, r := range records {
		seen[DedupKey(normalizeRecord(cfg, base, r))] = struct{}{}
		if len(seen) >= limit {
			return i + 1
		}
	}
	return len(records)
}

func normalizeRecord(cfg SourceConfig, base *url.URL, r models.TenderRecord) models.TenderRecord {
	if cfg.SourceURLOverride != "" {
		r.SourceURL = cfg.SourceURLOverride
	} else if abs := resolveURL(base, r.SourceURL); abs != "" {
		r.SourceURL = abs
	} else {
		r.SourceURL = cfg.BaseURL
	}

	r.TenderNumber = strings.TrimSpace(r.TenderNumber)
	if r.TenderNumber == "" {
		r.TenderNumber = PlaceholderTenderNumber(cfg.ShortName, r.SourceURL)
	}

	r.Description = truncateText(normalizeSpace(r.Description), maxDescriptionRunes)
	if r.Description == "" {
		r.Description = PlaceholderDescription(cfg)
	}

	r.Category = firstNonEmpty(r.Category, cfg.Category)
	r.TenderType = firstNonEmpty(r.TenderType, cfg.TenderType)
	r.OrganOfState = firstNonEmpty(r.OrganOfState, cfg.OrganOfState)
	r.Province = firstNonEmpty(r.Province, cfg.Province)
	r.Place = firstNonEmpty(r.Place, cfg.Place)

	// Dates that slipped through in a non-canonical shape are dropped
	// rather than exported half-parsed.
	if !validCanonicalDate(r.AdvertisedDate) {
		r.AdvertisedDate = ""
	}
	if !validCanonicalDate(r.ClosingDate) {
		r.ClosingDate = ""
	}
	return r
}
