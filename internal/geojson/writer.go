// Package geojson implements the GeoJSON location layer sink: one
// Feature per resolved Location, each carrying a back-pointer to the PDF
// it was extracted from, built with github.com/paulmach/orb/geojson —
// the corpus has no GeoJSON library, so this is the idiomatic ecosystem
// choice rather than hand-rolling JSON.
package geojson

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// Writer stages Features in memory as Locations are resolved and flushes
// them once at Finalize, matching the Writers' "own their output file"
// rule in spec.md §4.F.
type Writer struct {
	path       string
	collection *geojson.FeatureCollection
}

// NewWriter builds a Writer that will flush to path on Finalize.
func NewWriter(path string) *Writer {
	return &Writer{path: path, collection: geojson.NewFeatureCollection()}
}

// AddLocation stages one Feature for loc, a Location extracted from paper.
// Locations without resolved coordinates are skipped — the GeoJSON layer
// only ever contains points that geocoded successfully, per spec.md §4.F.
// The Feature's properties carry paper_name/paper_date alongside the
// pdf_url back-pointer, per spec.md §4.F and §6's minimum property set.
func (w *Writer) AddLocation(paper model.Paper, loc model.Location) {
	if !loc.HasCoords {
		return
	}
	feature := geojson.NewFeature(orb.Point{loc.Lon, loc.Lat})
	properties := geojson.Properties{
		"paper_id":       loc.PaperID,
		"paper_name":     paper.Name,
		"pdf_url":        loc.PDFURL,
		"category":       string(loc.Category),
		"canonical_name": loc.CanonicalName,
		"display_name":   loc.DisplayName,
		"provenance":     string(loc.Provenance),
		"count":          loc.Count,
	}
	if !paper.Date.IsZero() {
		properties["paper_date"] = paper.Date.Format("2006-01-02")
	}
	feature.Properties = properties
	w.collection.Append(feature)
}

// Finalize writes the staged FeatureCollection to disk as a single JSON
// document.
func (w *Writer) Finalize() error {
	data, err := w.collection.MarshalJSON()
	if err != nil {
		return fmt.Errorf("geojson: marshal feature collection: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("geojson: write %s: %w", w.path, err)
	}
	return nil
}

// Len reports how many Features are currently staged.
func (w *Writer) Len() int { return len(w.collection.Features) }
