package geojson

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

func TestWriter_skipsUnresolvedLocations(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "locations.geojson"))
	paper := model.Paper{ID: "p1", Name: "Bauantrag"}
	w.AddLocation(paper, model.Location{PaperID: "p1", PDFURL: "https://x/p1.pdf", CanonicalName: "Unresolved"})
	if w.Len() != 0 {
		t.Fatalf("expected unresolved location to be skipped, got len=%d", w.Len())
	}
}

func TestWriter_everyFeatureCarriesSourcePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.geojson")
	w := NewWriter(path)
	paper := model.Paper{ID: "p1", Name: "Bauantrag Ludwigstraße", Date: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)}
	w.AddLocation(paper, model.Location{
		PaperID: "p1", PDFURL: "https://example.test/p1.pdf",
		CanonicalName: "Ludwigstraße", Lat: 48.37, Lon: 10.9, HasCoords: true,
	})
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(decoded.Features))
	}
	if decoded.Features[0].Properties["pdf_url"] != "https://example.test/p1.pdf" {
		t.Fatalf("expected pdf_url back-pointer, got %+v", decoded.Features[0].Properties)
	}
	if decoded.Features[0].Properties["paper_name"] != "Bauantrag Ludwigstraße" {
		t.Fatalf("expected paper_name property, got %+v", decoded.Features[0].Properties)
	}
	if decoded.Features[0].Properties["paper_date"] != "2026-03-04" {
		t.Fatalf("expected paper_date property, got %+v", decoded.Features[0].Properties)
	}
	if len(decoded.Features[0].Geometry.Coordinates) != 2 {
		t.Fatalf("expected a point geometry, got %+v", decoded.Features[0].Geometry)
	}
}
