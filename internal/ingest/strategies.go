package ingest

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// ListingScanner turns a parsed listing page into candidate blocks.
type ListingScanner func(doc *goquery.Document, pageURL string, sel SelectorConfig) []CandidateBlock

// ScannerFactory maps listing styles (from sources.yaml) to scanners. The
// table is built once at start-up; nothing is resolved by name at run time
// beyond this explicit lookup.
type ScannerFactory struct {
	scanners map[string]ListingScanner
}

func NewScannerFactory() *ScannerFactory {
	return &ScannerFactory{
		scanners: make(map[string]ListingScanner),
	}
}

func (f *ScannerFactory) Register(style string, scanner ListingScanner) {
	f.scanners[style] = scanner
}

func (f *ScannerFactory) Get(style string) (ListingScanner, error) {
	scanner, ok := f.scanners[style]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownListing, style)
	}
	return scanner, nil
}

// Global factory instance
var GlobalScannerFactory = NewScannerFactory()

func init() {
	GlobalScannerFactory.Register(ListingAnchors, ScanAnchors)
	GlobalScannerFactory.Register(ListingRows, ScanRows)
}
