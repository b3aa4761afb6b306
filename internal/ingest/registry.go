package ingest

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

const (
	ListingAnchors = "anchors"
	ListingRows    = "rows"

	EngineHTTP  = "http"
	EngineColly = "colly"
)

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=120"`
	Engine         string  `yaml:"engine,omitempty" validate:"omitempty,oneof=http colly"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty" validate:"omitempty,gt=0"`
}

type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // row wrapper for the "rows" listing style
	Link      string `yaml:"link,omitempty"`      // anchors to consider, default "a[href]"
	Context   string `yaml:"context,omitempty"`   // nearest enclosing block for the text window
}

// SourceConfig is the declarative adapter for one procurement site.
// It is loaded once and never mutated.
type SourceConfig struct {
	ID                string            `yaml:"id" validate:"required"`
	ShortName         string            `yaml:"short_name" validate:"required"`
	OrganOfState      string            `yaml:"organ_of_state" validate:"required"`
	Province          string            `yaml:"province,omitempty"`
	Place             string            `yaml:"place,omitempty"`
	Category          string            `yaml:"category,omitempty"`
	TenderType        string            `yaml:"tender_type,omitempty"`
	BaseURL           string            `yaml:"base_url" validate:"required,url"`
	ListingURLs       []string          `yaml:"listing_urls" validate:"required,min=1,dive,url"`
	ListingStyle      string            `yaml:"listing_style,omitempty" validate:"omitempty,oneof=anchors rows"`
	Selectors         SelectorConfig    `yaml:"selectors,omitempty"`
	SourceURLOverride string            `yaml:"source_url_override,omitempty" validate:"omitempty,url"`
	InsecureTLS       bool              `yaml:"insecure_tls,omitempty"`
	HTMLOnly          bool              `yaml:"html_only,omitempty"`
	DetailPages       bool              `yaml:"detail_pages,omitempty"`
	Limit             int               `yaml:"limit,omitempty" validate:"min=0"`
	DateFormats       []string          `yaml:"date_formats,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	Fetch             FetchConfig       `yaml:"fetch,omitempty"`
}

// Style returns the listing style, defaulting to anchor scanning.
func (c SourceConfig) Style() string {
	if c.ListingStyle == "" {
		return ListingAnchors
	}
	return c.ListingStyle
}

// FetchOptions derives the per-request options, falling back to def for the timeout.
func (c SourceConfig) FetchOptions(def time.Duration) FetchOptions {
	timeout := def
	if c.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(c.Fetch.TimeoutSeconds) * time.Second
	}
	return FetchOptions{
		Timeout:      timeout,
		Headers:      c.Headers,
		InsecureTLS:  c.InsecureTLS,
		RateLimitRPS: c.Fetch.RateLimitRPS,
	}
}

// Registry is the static source-id to adapter table.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`

	byID map[string]*SourceConfig
}

// LoadRegistry reads the adapter table. An empty path selects the embedded
// config/sources.yaml.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes, validates and indexes a YAML adapter table.
func ParseRegistry(data []byte) (*Registry, error) {
	// Expand environment variables within the YAML content (e.g. ${PROXY_HOST})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}

	validate := validator.New()
	reg.byID = make(map[string]*SourceConfig, len(reg.Sources))
	names := make(map[string]string, len(reg.Sources))

	for i := range reg.Sources {
		src := &reg.Sources[i]
		if err := validate.Struct(src); err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", src.ID, err)
		}
		if _, dup := reg.byID[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		key := strings.ToLower(src.ShortName)
		if other, dup := names[key]; dup {
			return nil, fmt.Errorf("sources %q and %q share short name %q", other, src.ID, src.ShortName)
		}
		names[key] = src.ID
		reg.byID[src.ID] = src
	}

	return &reg, nil
}

// Lookup resolves a source id. Unknown ids return ErrUnknownSource.
func (r *Registry) Lookup(id string) (SourceConfig, error) {
	src, ok := r.byID[id]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return *src, nil
}

// IDs returns all source ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
