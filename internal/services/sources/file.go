package sources

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/models"
)

// scannedPDFThreshold is the extracted-text length below which a PDF is
// assumed to be a scan. OCR is a platform capability, not part of the
// portable core, so scans are reported as unavailable rather than silently
// ingested empty.
const scannedPDFThreshold = 32

// FileProvider reads local files by extension: plain read for text-like
// extensions, structured extraction for PDF and word-processor formats.
type FileProvider struct {
	logger arbor.ILogger
}

// NewFileProvider creates a file source provider
func NewFileProvider(logger arbor.ILogger) *FileProvider {
	return &FileProvider{logger: logger}
}

// Compile-time interface assertion
var _ Provider = (*FileProvider)(nil)

// GetContent reads and normalizes the file behind the source
func (p *FileProvider) GetContent(ctx context.Context, source *models.Source) (string, error) {
	path := source.Location

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return p.extractPDF(path)
	case ".docx":
		return p.extractDocx(path)
	default:
		// Plain read covers the text-like extensions and anything unknown
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %v: %w", path, err, models.ErrSourceUnavailable)
		}
		return string(data), nil
	}
}

// extractPDF validates the document with pdfcpu, then extracts plain text
// with the pdf reader. Scanned PDFs produce little or no text and are
// reported as unavailable; an OCR pass would be an external collaborator.
func (p *FileProvider) extractPDF(path string) (string, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("read PDF %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}
	defer f.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract PDF text %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plainText); err != nil {
		return "", fmt.Errorf("read PDF text %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}

	text := strings.TrimSpace(buf.String())
	if len(text) < scannedPDFThreshold {
		p.logger.Warn().
			Str("path", path).
			Int("pages", pdfCtx.PageCount).
			Int("extracted_chars", len(text)).
			Msg("PDF produced little or no text, likely a scan")
		return "", fmt.Errorf("PDF %s has no extractable text (%d pages): %w", path, pdfCtx.PageCount, models.ErrSourceUnavailable)
	}

	p.logger.Debug().
		Str("path", path).
		Int("pages", pdfCtx.PageCount).
		Int("extracted_chars", len(text)).
		Msg("PDF text extracted")

	return text, nil
}

// extractDocx pulls the paragraph text out of the main document part of a
// word-processor file. Character data is concatenated per paragraph so the
// chunker sees real paragraph boundaries.
func (p *FileProvider) extractDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx %s: %v: %w", path, err, models.ErrSourceUnavailable)
	}
	defer archive.Close()

	var documentXML []byte
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			rc, err := file.Open()
			if err != nil {
				return "", fmt.Errorf("open docx part %s: %v: %w", path, err, models.ErrSourceUnavailable)
			}
			documentXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", fmt.Errorf("read docx part %s: %v: %w", path, err, models.ErrSourceUnavailable)
			}
			break
		}
	}
	if documentXML == nil {
		return "", fmt.Errorf("docx %s has no document part: %w", path, models.ErrSourceUnavailable)
	}

	decoder := xml.NewDecoder(bytes.NewReader(documentXML))
	var builder strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx %s: %v: %w", path, err, models.ErrSourceUnavailable)
		}

		switch t := token.(type) {
		case xml.CharData:
			builder.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				builder.WriteString("\n\n")
			}
		}
	}

	return strings.TrimSpace(builder.String()), nil
}
