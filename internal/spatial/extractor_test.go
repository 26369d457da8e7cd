package spatial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

func writeGazetteer(t *testing.T, dir string) string {
	t.Helper()
	content := `entries:
  - canonical: Ludwigstraße
    aliases: ["Ludwigstrasse"]
    lat: 48.3705
    lon: 10.8978
    category: street
`
	path := filepath.Join(dir, "gazetteer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write gazetteer: %v", err)
	}
	return path
}

func TestExtractor_gazetteerDirectHit(t *testing.T) {
	dir := t.TempDir()
	ex, err := NewExtractor(Config{GazetteerPath: writeGazetteer(t, dir)}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	locs := ex.Extract("paper-1", "https://example.test/paper-1.pdf", "Die Baustelle in der Ludwigstrasse beginnt morgen.")
	if len(locs) != 1 {
		t.Fatalf("expected 1 location, got %d: %+v", len(locs), locs)
	}
	if locs[0].CanonicalName != "Ludwigstraße" || !locs[0].HasCoords {
		t.Fatalf("expected canonical gazetteer form with coords, got %+v", locs[0])
	}
	if locs[0].PaperID != "paper-1" || locs[0].PDFURL != "https://example.test/paper-1.pdf" {
		t.Fatalf("location missing source back-pointer: %+v", locs[0])
	}
}

func TestExtractor_regexPasses(t *testing.T) {
	ex, err := NewExtractor(Config{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	text := "Der Bebauungsplan Nr. 145a wurde geändert. Flurstück 2345/6 betroffen. " +
		"Anwohner der Schillerstraße 12 wurden informiert. Dies betrifft auch den Stadtteil Lechhausen."

	locs := ex.Extract("paper-2", "https://example.test/paper-2.pdf", text)

	byCategory := map[model.ToponymCategory]model.Location{}
	for _, l := range locs {
		byCategory[l.Category] = l
	}

	if _, ok := byCategory[model.CategoryPlanReference]; !ok {
		t.Errorf("expected a plan_reference candidate, got %+v", locs)
	}
	if _, ok := byCategory[model.CategoryParcel]; !ok {
		t.Errorf("expected a parcel_number candidate, got %+v", locs)
	}
	if _, ok := byCategory[model.CategoryStreet]; !ok {
		t.Errorf("expected a street candidate, got %+v", locs)
	}
	if _, ok := byCategory[model.CategoryDistrict]; !ok {
		t.Errorf("expected a district candidate, got %+v", locs)
	}
}

func TestExtractor_districtShorterThanFourCharsDropped(t *testing.T) {
	ex, err := NewExtractor(Config{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	locs := ex.Extract("paper-3", "https://example.test/paper-3.pdf", "Das Treffen findet in Au statt.")
	for _, l := range locs {
		if l.Category == model.CategoryDistrict {
			t.Fatalf("district shorter than 4 chars should be dropped, got %+v", l)
		}
	}
}

func TestExtractor_dedupesRepeatedMentions(t *testing.T) {
	ex, err := NewExtractor(Config{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	text := "Die Schillerstraße 12 und erneut die Schillerstraße 12 werden genannt."
	locs := ex.Extract("paper-4", "https://example.test/paper-4.pdf", text)

	var count int
	for _, l := range locs {
		if l.Category == model.CategoryStreet {
			count = l.Count
		}
	}
	if count != 2 {
		t.Fatalf("expected repeated mention to be counted, got count=%d locs=%+v", count, locs)
	}
}

func TestExtractor_everyLocationCarriesSourcePointer(t *testing.T) {
	ex, err := NewExtractor(Config{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	locs := ex.Extract("paper-5", "https://example.test/paper-5.pdf", "Bebauungsplan Nr. 9 und Flurstück 10 und die Bahnhofstraße 3.")
	for _, l := range locs {
		for _, verr := range l.Validate() {
			t.Errorf("unexpected validation error: %+v", verr)
		}
	}
}
