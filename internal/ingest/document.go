package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	rpdf "rsc.io/pdf"
)

// DocumentKind identifies a binary document format.
type DocumentKind string

const (
	KindUnknown DocumentKind = ""
	KindPDF     DocumentKind = "pdf"
	KindDOCX    DocumentKind = "docx"
	KindHTML    DocumentKind = "html"
)

// minDocumentText is the shortest extraction we trust. Anything below is
// treated as a scanned or image-only document.
const minDocumentText = 40

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var errNoDocumentXML = errors.New("docx has no word/document.xml")

// DocumentBackend converts one document format to lossy plain text.
type DocumentBackend interface {
	Supports(kind DocumentKind) bool
	ExtractText(content []byte) (string, error)
}

// DetectKind decides the document format from the response content type,
// the URL extension and finally the magic bytes.
func DetectKind(contentType, rawURL string, body []byte) DocumentKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/pdf"):
		return KindPDF
	case strings.Contains(ct, docxMIME):
		return KindDOCX
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		return KindHTML
	}

	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".pdf":
			return KindPDF
		case ".docx":
			return KindDOCX
		}
	}

	if len(body) == 0 {
		return KindUnknown
	}
	mt := mimetype.Detect(body)
	switch {
	case mt.Is("application/pdf"):
		return KindPDF
	case mt.Is(docxMIME):
		return KindDOCX
	case mt.Is("text/html"):
		return KindHTML
	}
	return KindUnknown
}

// PDFBackend extracts text with rsc.io/pdf.
type PDFBackend struct{}

func (PDFBackend) Supports(kind DocumentKind) bool { return kind == KindPDF }

func (PDFBackend) ExtractText(content []byte) (string, error) {
	return extractPDFText(content)
}

// extractPDFText walks every page's text runs. rsc.io/pdf panics on some
// malformed files, so the panic is turned into an error.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// DOCXBackend reads the main WordprocessingML part of a .docx file.
type DOCXBackend struct{}

func (DOCXBackend) Supports(kind DocumentKind) bool { return kind == KindDOCX }

func (DOCXBackend) ExtractText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document part: %w", err)
		}
		defer rc.Close()
		return wordprocessingText(rc)
	}
	return "", errNoDocumentXML
}

// wordprocessingText collects <w:t> runs, breaking lines at paragraphs and
// table cells so labels stay on their own line.
func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to decode document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString(" ")
			case "br":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			case "tc":
				b.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// DocumentExtractor turns a fetched document into enrichment fields. A nil
// or empty backend list is valid and yields no enrichment.
type DocumentExtractor struct {
	Backends []DocumentBackend
	Patterns FieldPatterns
}

// NewDocumentExtractor registers the built-in PDF and DOCX backends.
func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{
		Backends: []DocumentBackend{PDFBackend{}, DOCXBackend{}},
		Patterns: DocumentPatterns,
	}
}

// Text returns the plain text of a document, or "" when no backend can read
// it or the result is too short to trust.
func (e *DocumentExtractor) Text(doc *FetchedDocument) string {
	if e == nil || doc == nil || len(doc.Body) == 0 {
		return ""
	}
	kind := DetectKind(doc.ContentType, doc.URL, doc.Body)

	var text string
	if kind == KindHTML {
		text = structuredPageText(doc.Body)
	} else {
		backend := e.backendFor(kind)
		if backend == nil {
			return ""
		}
		raw, err := backend.ExtractText(doc.Body)
		if err != nil {
			return ""
		}
		text = raw
	}

	if len([]rune(normalizeSpace(text))) < minDocumentText {
		return ""
	}
	return text
}

// Enrich extracts document fields. Failure of any kind is an empty Fields.
func (e *DocumentExtractor) Enrich(doc *FetchedDocument, layouts []string) Fields {
	text := e.Text(doc)
	if text == "" {
		return Fields{}
	}
	return ExtractFields(text, e.Patterns, layouts)
}

func (e *DocumentExtractor) backendFor(kind DocumentKind) DocumentBackend {
	if kind == KindUnknown {
		return nil
	}
	for _, b := range e.Backends {
		if b.Supports(kind) {
			return b
		}
	}
	return nil
}
