package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testPage = "https://www.example.gov.za/tenders/"

func classify(b CandidateBlock) Verdict {
	return Classify(b, testPage, ExtractFields(b.Window(), ListingPatterns, nil))
}

func TestClassifyDocumentFirst(t *testing.T) {
	b := CandidateBlock{Href: "https://www.example.gov.za/docs/report.pdf", LinkText: "Report"}

	assert.True(t, LooksTenderLike(b))
	assert.False(t, IsNavigationNoise(b))
	assert.Equal(t, Verdict{Accepted: true}, classify(b))
}

func TestClassifyNavigationRejected(t *testing.T) {
	b := CandidateBlock{Href: "https://www.example.gov.za/leadership", LinkText: "Leadership Services Investor Relations"}

	assert.True(t, IsNavigationNoise(b))
	assert.False(t, classify(b).Accepted)
}

func TestClassifyNavigationWithDocumentIsNotNoise(t *testing.T) {
	b := CandidateBlock{
		Href:     "https://www.example.gov.za/wp-content/uploads/2025/03/security-services.pdf",
		LinkText: "Provision of security services",
	}
	assert.False(t, IsNavigationNoise(b))
	assert.True(t, classify(b).Accepted)
}

func TestClassifyStages(t *testing.T) {
	longPolicy := strings.Repeat("The municipality follows its procurement policy in every matter. ", 5)

	tests := []struct {
		name  string
		block CandidateBlock
		want  Verdict
	}{
		{
			name:  "no tender vocabulary",
			block: CandidateBlock{Href: "https://www.example.gov.za/news/water-outage", LinkText: "Water outage in Ward 5"},
			want:  Verdict{Stage: StageLooksTenderLike},
		},
		{
			name:  "overlong window without cues",
			block: CandidateBlock{Href: "https://www.example.gov.za/policy", LinkText: "Policy", ContextText: longPolicy},
			want:  Verdict{Stage: StageNavigation},
		},
		{
			name:  "link back to the listing page",
			block: CandidateBlock{Href: testPage, LinkText: "Tenders", ContextText: "Home About Us Services Tenders Careers"},
			want:  Verdict{Stage: StageRealRow},
		},
		{
			name:  "bare domain",
			block: CandidateBlock{Href: "https://www.example.gov.za/", LinkText: "Tenders and Quotations"},
			want:  Verdict{Stage: StageRealRow},
		},
		{
			name:  "contact page mentioning supply chain",
			block: CandidateBlock{Href: "https://www.example.gov.za/contact-us", LinkText: "Contact Us - Supply Chain Management enquiries"},
			want:  Verdict{Stage: StageRealRow},
		},
		{
			name:  "row with tender number",
			block: CandidateBlock{Href: "https://www.example.gov.za/tenders/view?id=77", LinkText: "Bid No: T12/2025 Upgrading of water pipeline"},
			want:  Verdict{Accepted: true},
		},
		{
			name:  "upload path without extension",
			block: CandidateBlock{Href: "https://www.example.gov.za/download/4471", LinkText: "Quotation for catering"},
			want:  Verdict{Accepted: true},
		},
		{
			name:  "description with vocabulary in text and url",
			block: CandidateBlock{Href: "https://www.example.gov.za/tenders/road-resurfacing", LinkText: "Tender for road resurfacing in Ward 12"},
			want:  Verdict{Accepted: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.block))
		})
	}
}

func TestIsRealTenderRow(t *testing.T) {
	assert.False(t, IsRealTenderRow("", "T1/2025", "Supply of goods"))
	assert.False(t, IsRealTenderRow("https://www.example.gov.za", "T1/2025", ""))
	assert.True(t, IsRealTenderRow("https://www.example.gov.za/a/b.docx", "", ""))
	assert.True(t, IsRealTenderRow("https://www.example.gov.za/notice?id=4", "Q12", ""))
	assert.False(t, IsRealTenderRow("https://www.example.gov.za/notice?id=4", "Q1", "short"))
	// Vocabulary must be present in both the description and the URL.
	assert.False(t, IsRealTenderRow("https://www.example.gov.za/notice?id=4", "", "Tender for road resurfacing"))
}
