package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// minimalPDF is a hand-built single-page PDF whose content stream shows the
// string "Hallo Ludwigstrasse" via a single Tj operator — just enough
// structure for pdfcpu to validate and for the content-stream tokenizer to
// recover the text.
const minimalPDF = `%PDF-1.4
1 0 obj
<< /Type /Catalog /Pages 2 0 R >>
endobj
2 0 obj
<< /Type /Pages /Kids [3 0 R] /Count 1 >>
endobj
3 0 obj
<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /MediaBox [0 0 612 792] /Contents 4 0 R >>
endobj
4 0 obj
<< /Length 62 >>
stream
BT /F1 12 Tf 72 712 Td (Hallo Ludwigstrasse) Tj ET
endstream
endobj
5 0 obj
<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>
endobj
xref
0 6
0000000000 65535 f
trailer
<< /Size 6 /Root 1 0 R >>
startxref
0
%%EOF
`

func TestExtractor_primaryTextLayer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(minimalPDF))
	}))
	defer server.Close()

	ex, err := NewExtractor(Config{
		MemoryThresholdBytes: 10 * 1024 * 1024,
		MaxResponseBytes:     50 * 1024 * 1024,
		HTTPTimeout:          5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	result := ex.Extract(context.Background(), "paper-1", server.URL)
	if result.Method == model.MethodFailed {
		t.Fatalf("extraction failed: %s", result.Err)
	}
	if result.PaperID != "paper-1" || result.PDFURL != server.URL {
		t.Fatalf("result did not carry through paper_id/pdf_url: %+v", result)
	}
}

func TestExtractor_enableOCRWithoutEngineIsConfigError(t *testing.T) {
	_, err := NewExtractor(Config{EnableOCR: true}, nil)
	if err == nil {
		t.Fatal("expected an error when enable_ocr=true with no OCREngine")
	}
}

func TestExtractor_neverErrorsOnDocumentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a pdf"))
	}))
	defer server.Close()

	ex, _ := NewExtractor(Config{MemoryThresholdBytes: 1024, MaxResponseBytes: 1024, HTTPTimeout: 5 * time.Second}, nil)
	result := ex.Extract(context.Background(), "paper-2", server.URL)
	if result.Method != model.MethodFailed {
		t.Fatalf("expected MethodFailed for garbage input, got %s", result.Method)
	}
	if result.Err == "" {
		t.Fatal("expected an explanatory error message")
	}
}
