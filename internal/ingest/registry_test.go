package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	require.NotEmpty(t, reg.Sources)

	ids := reg.IDs()
	assert.IsIncreasing(t, ids)
	assert.Contains(t, ids, "capetown")

	ct, err := reg.Lookup("capetown")
	require.NoError(t, err)
	assert.Equal(t, "City of Cape Town", ct.ShortName)
	assert.Equal(t, ListingRows, ct.Style())
	assert.Equal(t, 200, ct.Limit)

	dk, err := reg.Lookup("drakenstein")
	require.NoError(t, err)
	assert.Equal(t, ListingAnchors, dk.Style())
	assert.Equal(t, EngineColly, dk.Fetch.Engine)
	assert.Len(t, dk.ListingURLs, 2)
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	_, err = reg.Lookup("atlantis")
	assert.True(t, errors.Is(err, ErrUnknownSource))
}

func TestParseRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing short name",
			yaml: `
sources:
  - id: a
    organ_of_state: A Municipality
    base_url: https://a.gov.za
    listing_urls: [https://a.gov.za/tenders]
`,
		},
		{
			name: "no listing urls",
			yaml: `
sources:
  - id: a
    short_name: A
    organ_of_state: A Municipality
    base_url: https://a.gov.za
`,
		},
		{
			name: "bad listing style",
			yaml: `
sources:
  - id: a
    short_name: A
    organ_of_state: A Municipality
    base_url: https://a.gov.za
    listing_urls: [https://a.gov.za/tenders]
    listing_style: grid
`,
		},
		{
			name: "duplicate id",
			yaml: `
sources:
  - id: a
    short_name: A
    organ_of_state: A Municipality
    base_url: https://a.gov.za
    listing_urls: [https://a.gov.za/tenders]
  - id: a
    short_name: B
    organ_of_state: B Municipality
    base_url: https://b.gov.za
    listing_urls: [https://b.gov.za/tenders]
`,
		},
		{
			name: "duplicate short name",
			yaml: `
sources:
  - id: a
    short_name: Same
    organ_of_state: A Municipality
    base_url: https://a.gov.za
    listing_urls: [https://a.gov.za/tenders]
  - id: b
    short_name: same
    organ_of_state: B Municipality
    base_url: https://b.gov.za
    listing_urls: [https://b.gov.za/tenders]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseRegistryExpandsEnv(t *testing.T) {
	t.Setenv("TENDERS_TEST_HOST", "a.gov.za")
	reg, err := ParseRegistry([]byte(`
sources:
  - id: a
    short_name: A
    organ_of_state: A Municipality
    base_url: https://${TENDERS_TEST_HOST}
    listing_urls: [https://${TENDERS_TEST_HOST}/tenders]
    headers:
      Referer: https://${TENDERS_TEST_HOST}/
    fetch:
      timeout_seconds: 10
      rate_limit_rps: 2
`))
	require.NoError(t, err)

	src, err := reg.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "https://a.gov.za", src.BaseURL)

	opts := src.FetchOptions(DefaultFetchTimeout)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, 2.0, opts.RateLimitRPS)
	assert.Equal(t, "https://a.gov.za/", opts.Headers["Referer"])
}
