package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/client"
	"github.com/ratsinfo/oparl-pipeline/internal/config"
	"github.com/ratsinfo/oparl-pipeline/internal/extract"
	"github.com/ratsinfo/oparl-pipeline/internal/geocode"
	"github.com/ratsinfo/oparl-pipeline/internal/geojson"
	"github.com/ratsinfo/oparl-pipeline/internal/spatial"
	"github.com/ratsinfo/oparl-pipeline/internal/state"
	"github.com/ratsinfo/oparl-pipeline/internal/storage"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

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

func TestOrchestrator_runProcessesAndWritesOnePaper(t *testing.T) {
	pdfServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalPDF))
	}))
	defer pdfServer.Close()

	apiMux := http.NewServeMux()
	apiServer := httptest.NewServer(apiMux)
	defer apiServer.Close()

	apiMux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"body": "` + apiServer.URL + `/body"}`))
	})
	apiMux.HandleFunc("/body", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paper": "` + apiServer.URL + `/papers"}`))
	})
	apiMux.HandleFunc("/papers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"paper-1","name":"Bauantrag","date":"2026-03-04T00:00:00Z","mainFile":{"accessUrl":"` + pdfServer.URL + `","mimeType":"application/pdf"}}],"links":{}}`))
	})

	c := client.NewClient(apiServer.URL+"/system", 5*time.Second)

	ex, err := extract.NewExtractor(extract.Config{MemoryThresholdBytes: 1 << 20, MaxResponseBytes: 1 << 20, HTTPTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	sp, err := spatial.NewExtractor(spatial.Config{}, nil)
	if err != nil {
		t.Fatalf("spatial.NewExtractor: %v", err)
	}

	geo, err := geocode.NewGeocoder(geocode.Config{})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}

	dir := t.TempDir()
	st, err := state.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	defer st.Close()

	col := storage.NewColumnarWriter(filepath.Join(dir, "dataset"), storage.CompressionSnappy)
	graph, err := storage.NewGraphWriter(filepath.Join(dir, "metadata.nt"), filepath.Join(dir, "metadata.ttl"))
	if err != nil {
		t.Fatalf("NewGraphWriter: %v", err)
	}
	defer graph.Close()
	gj := geojson.NewWriter(filepath.Join(dir, "locations.geojson"))

	orch := New(c, ex, sp, geo, st, col, graph, gj, nopLogger{}, 2)

	cfg := config.Config{City: "augsburg"}
	cfg.ApplyDefaults()
	cfg.Orchestrator.BatchSize = 10

	summary, err := orch.Run(context.Background(), cfg, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected 1 processed paper, got %+v", summary)
	}

	ok, err := st.IsCompleted("paper-1")
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if !ok {
		t.Fatal("expected paper-1 to be marked completed")
	}
}

func TestOrchestrator_failedExtractionExcludedFromWriters(t *testing.T) {
	apiMux := http.NewServeMux()
	apiServer := httptest.NewServer(apiMux)
	defer apiServer.Close()

	// paper-1 resolves to a real PDF; paper-2 resolves to a 404, so its
	// extraction fails and it must not reach any writer (spec.md §4.G
	// step 5 / scenario S5).
	pdfServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalPDF))
	}))
	defer pdfServer.Close()
	brokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer brokenServer.Close()

	apiMux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"body": "` + apiServer.URL + `/body"}`))
	})
	apiMux.HandleFunc("/body", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paper": "` + apiServer.URL + `/papers"}`))
	})
	apiMux.HandleFunc("/papers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[` +
			`{"id":"paper-1","name":"Bauantrag","date":"2026-03-04T00:00:00Z","mainFile":{"accessUrl":"` + pdfServer.URL + `","mimeType":"application/pdf"}},` +
			`{"id":"paper-2","name":"Broken","date":"2026-03-04T00:00:00Z","mainFile":{"accessUrl":"` + brokenServer.URL + `","mimeType":"application/pdf"}}` +
			`],"links":{}}`))
	})

	c := client.NewClient(apiServer.URL+"/system", 5*time.Second)

	ex, err := extract.NewExtractor(extract.Config{MemoryThresholdBytes: 1 << 20, MaxResponseBytes: 1 << 20, HTTPTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	sp, err := spatial.NewExtractor(spatial.Config{}, nil)
	if err != nil {
		t.Fatalf("spatial.NewExtractor: %v", err)
	}
	geo, err := geocode.NewGeocoder(geocode.Config{})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}

	dir := t.TempDir()
	st, err := state.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	defer st.Close()

	col := storage.NewColumnarWriter(filepath.Join(dir, "dataset"), storage.CompressionSnappy)
	graph, err := storage.NewGraphWriter(filepath.Join(dir, "metadata.nt"), filepath.Join(dir, "metadata.ttl"))
	if err != nil {
		t.Fatalf("NewGraphWriter: %v", err)
	}
	defer graph.Close()
	gj := geojson.NewWriter(filepath.Join(dir, "locations.geojson"))

	orch := New(c, ex, sp, geo, st, col, graph, gj, nopLogger{}, 2)

	cfg := config.Config{City: "augsburg"}
	cfg.ApplyDefaults()
	cfg.Orchestrator.BatchSize = 10

	summary, err := orch.Run(context.Background(), cfg, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.FailedExtraction != 1 {
		t.Fatalf("expected 1 processed and 1 failed-extraction paper, got %+v", summary)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "dataset", "*", "*", "*", "*.parquet"))
	if err != nil {
		t.Fatalf("glob parquet files: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected exactly one partition file written (paper-1 only), got %v", paths)
	}

	nt, err := os.ReadFile(filepath.Join(dir, "metadata.nt"))
	if err != nil {
		t.Fatalf("read n-triples: %v", err)
	}
	if strings.Contains(string(nt), "paper-2") {
		t.Fatalf("expected the failed-extraction paper to be excluded from the graph, got:\n%s", nt)
	}
	if !strings.Contains(string(nt), "paper-1") {
		t.Fatalf("expected the successful paper in the graph, got:\n%s", nt)
	}
}
