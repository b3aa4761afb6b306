package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectAttachmentLinks(t *testing.T) {
	body := []byte(`<html><body>
<a href="/tenders">Back to tenders</a>
<a href="/docs/spec.pdf">Specification</a>
<a href="/docs/spec.pdf#page=2">Specification (page 2)</a>
<a href="/sites/default/files/annexure-b">Annexure B</a>
<a href="/file?id=9">Download tender document</a>
<a href="mailto:scm@example.gov.za">Email SCM</a>
</body></html>`)

	links := collectAttachmentLinks("https://www.example.gov.za/tenders/view?id=3", body)
	assert.Equal(t, []string{
		"https://www.example.gov.za/docs/spec.pdf",
		"https://www.example.gov.za/sites/default/files/annexure-b",
		"https://www.example.gov.za/file?id=9",
	}, links)
}

func TestStructuredPageText(t *testing.T) {
	body := []byte(`<html><body>
<nav><a href="/">Home</a></nav>
<table>
  <tr><th>Bid Number:</th><td>RFQ 88/2025</td></tr>
  <tr><td>Closing Date</td><td>30 April 2025</td><td>11:00</td></tr>
</table>
<dl><dt>Contact Person</dt><dd>Ms Lerato Mahlangu</dd></dl>
<p>Bids must be delivered by hand.</p>
</body></html>`)

	text := structuredPageText(body)
	assert.Contains(t, text, "Bid Number: RFQ 88/2025\n")
	assert.Contains(t, text, "Closing Date: 30 April 2025 | 11:00")
	assert.Contains(t, text, "Contact Person: Ms Lerato Mahlangu")
	assert.Contains(t, text, "Bids must be delivered by hand.")
	assert.NotContains(t, text, "Home")

	f := ExtractFields(text, DocumentPatterns, nil)
	assert.Equal(t, "RFQ 88/2025", f.TenderNumber)
	assert.Equal(t, "30/04/2025", f.ClosingDate)
	assert.Equal(t, "Ms Lerato Mahlangu", f.ContactPerson)
}
