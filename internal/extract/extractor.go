// Package extract implements the PDF Extractor (component B): download a
// PDF by URL and return plain text via layered fallbacks (primary text
// layer, layout-aware parser, OCR), spilling to a scoped temp file above a
// configurable size threshold.
//
// Grounded on Lllllllleong-engineeringdocumentflow's PDFSplitterFunction —
// the same scoped-temp-dir-with-deferred-cleanup shape, generalized from a
// single GCS download to an arbitrary HTTP download, and the same
// pdfcpu/pkg/api calls for structural PDF operations (page count,
// optimize/validate).
package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// OCREngine rasterizes a PDF page and returns recognized text. No concrete
// engine ships with this package — no OCR library appears anywhere in the
// retrieved corpus — so Extractor.enableOCR=true with a nil engine is a
// ConfigurationError caught at startup, per spec.md §9.
type OCREngine interface {
	RecognizePage(ctx context.Context, pdfPath string, pageNum int) (string, error)
}

// NoOCR is the default OCREngine: always reports itself disabled.
type NoOCR struct{}

func (NoOCR) RecognizePage(ctx context.Context, pdfPath string, pageNum int) (string, error) {
	return "", fmt.Errorf("OCR engine not configured")
}

// Config mirrors config.ExtractionConfig without importing internal/config,
// keeping this package independently testable.
type Config struct {
	MemoryThresholdBytes int64
	MaxResponseBytes     int64
	HTTPTimeout          time.Duration
	EnableOCR            bool
}

// Extractor is the PDF Extractor. It is safe to invoke from multiple
// worker goroutines: each call manages its own scoped temp file and parser
// resources (spec.md §4.B concurrency note).
type Extractor struct {
	cfg       Config
	ocr       OCREngine
	downloader downloader
}

// NewExtractor builds an Extractor. When cfg.EnableOCR is true, ocr must be
// non-nil: Config.Validate in internal/config accepts enable_ocr without
// checking for an engine, and it is this constructor that refuses to run
// without one, so the combination fails at startup.
func NewExtractor(cfg Config, ocr OCREngine) (*Extractor, error) {
	if cfg.EnableOCR && ocr == nil {
		return nil, fmt.Errorf("extraction.enable_ocr is true but no OCREngine was provided")
	}
	if ocr == nil {
		ocr = NoOCR{}
	}
	return &Extractor{cfg: cfg, ocr: ocr, downloader: httpDownloader{timeout: cfg.HTTPTimeout, maxBytes: cfg.MaxResponseBytes}}, nil
}

// Extract always returns a result; it never raises for document-level
// failures. The caller distinguishes success from failure by inspecting
// Method.
func (e *Extractor) Extract(ctx context.Context, paperID, pdfURL string) model.ExtractionResult {
	result := model.ExtractionResult{PaperID: paperID, PDFURL: pdfURL}

	local, spilled, cleanup, err := e.downloader.fetch(ctx, pdfURL, e.cfg.MemoryThresholdBytes)
	if err != nil {
		result.Method = model.MethodFailed
		result.Err = fmt.Sprintf("download failed: %v", err)
		return result
	}
	defer cleanup()
	result.SpilledToTmp = spilled

	optimized := local + ".opt.pdf"
	if err := optimizePDF(local, optimized); err != nil {
		// A document that fails to validate even relaxed is a parser
		// error: terminal, not retried (spec.md §4.B failure semantics).
		result.Method = model.MethodFailed
		result.Err = fmt.Sprintf("invalid PDF: %v", err)
		return result
	}
	defer cleanupTempFile(optimized)()
	local = optimized

	pageCount, err := api.PageCountFile(local)
	if err != nil {
		result.Method = model.MethodFailed
		result.Err = fmt.Sprintf("invalid PDF: %v", err)
		return result
	}
	result.PageCount = pageCount

	if text, err := extractPrimary(local, pageCount); err == nil && nonEmpty(text) {
		result.Text = trim(text)
		result.Method = model.MethodPrimary
		return result
	}

	if text, err := extractLayout(local, pageCount); err == nil && nonEmpty(text) {
		result.Text = trim(text)
		result.Method = model.MethodLayout
		return result
	}

	if e.cfg.EnableOCR {
		if text, err := e.runOCR(ctx, local, pageCount); err == nil && nonEmpty(text) {
			result.Text = trim(text)
			result.Method = model.MethodOCR
			return result
		}
	}

	result.Method = model.MethodFailed
	result.Err = "no extraction method produced non-empty text"
	return result
}

func (e *Extractor) runOCR(ctx context.Context, path string, pageCount int) (string, error) {
	var pages []string
	for p := 1; p <= pageCount; p++ {
		text, err := e.ocr.RecognizePage(ctx, path, p)
		if err != nil {
			return "", err
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

func nonEmpty(s string) bool { return strings.TrimSpace(s) != "" }
func trim(s string) string   { return strings.TrimSpace(s) }

func optimizePDF(inPath, outPath string) error {
	cfg := pdfmodel.NewDefaultConfiguration()
	cfg.ValidationMode = pdfmodel.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

// cleanupTempFile is a small helper kept separate from download.go so the
// "guaranteed deletion on all exit paths" property (spec.md §4.B) is
// reviewable in one place.
func cleanupTempFile(path string) func() {
	return func() {
		if path != "" {
			os.Remove(path)
		}
	}
}
