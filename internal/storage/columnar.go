package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// locationRow is the nested-list element used by parquet-go's tag-driven
// struct encoding for a Paper's resolved Locations.
type locationRow struct {
	Category    string  `parquet:"category"`
	Canonical   string  `parquet:"canonical_name"`
	DisplayName string  `parquet:"display_name"`
	Lat         float64 `parquet:"lat"`
	Lon         float64 `parquet:"lon"`
	HasCoords   bool    `parquet:"has_coords"`
	Provenance  string  `parquet:"provenance"`
	Count       int     `parquet:"count"`
	PDFURL      string  `parquet:"pdf_url"`
}

// paperRow is one partitioned columnar record, one per Paper.
type paperRow struct {
	ID        string        `parquet:"id"`
	Name      string        `parquet:"name"`
	Reference string        `parquet:"reference,optional"`
	Date      string        `parquet:"date"`
	PaperType string        `parquet:"paper_type,optional"`
	City      string        `parquet:"city"`
	FullText  string        `parquet:"full_text,optional"`
	Locations []locationRow `parquet:"locations,optional"`
}

// Compression identifies the parquet codec selected by
// storage.parquet.compression.
type Compression string

const (
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
	CompressionGzip   Compression = "gzip"
)

func (c Compression) writerOption() parquet.WriterOption {
	switch c {
	case CompressionZstd:
		return parquet.Compression(&parquet.Zstd)
	case CompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// ColumnarWriter writes one parquet file per partition touched by each
// write_batch call, partitioned by city/year/month under basePath,
// matching the original's pyarrow partition_cols=[city, year, month]
// layout.
type ColumnarWriter struct {
	basePath    string
	compression Compression
	seq         int
}

// NewColumnarWriter builds a ColumnarWriter rooted at basePath.
func NewColumnarWriter(basePath string, compression Compression) *ColumnarWriter {
	return &ColumnarWriter{basePath: basePath, compression: compression}
}

// WriteBatch writes papers to new partitioned parquet files, one per
// distinct city/year/month, each in its own partition directory, and
// returns their paths. An empty batch writes nothing.
func (w *ColumnarWriter) WriteBatch(papers []model.Paper) ([]string, error) {
	groups := make(map[string][]model.Paper)
	for _, p := range papers {
		key := partitionKey(p)
		groups[key] = append(groups[key], p)
	}

	var written []string
	for key, group := range groups {
		path, err := w.writePartition(key, group)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func partitionKey(p model.Paper) string {
	year, month := 0, 0
	if !p.Date.IsZero() {
		year, month = p.Date.Year(), int(p.Date.Month())
	}
	return filepath.Join(fmt.Sprintf("city=%s", p.City), fmt.Sprintf("year=%d", year), fmt.Sprintf("month=%02d", month))
}

func (w *ColumnarWriter) writePartition(relDir string, papers []model.Paper) (string, error) {
	dir := filepath.Join(w.basePath, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create partition dir: %w", err)
	}

	w.seq++
	path := filepath.Join(dir, fmt.Sprintf("part-%05d.parquet", w.seq))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: create parquet file: %w", err)
	}
	defer f.Close()

	rows := make([]paperRow, 0, len(papers))
	for _, p := range papers {
		rows = append(rows, toParquetRow(p))
	}

	pqWriter := parquet.NewGenericWriter[paperRow](f, w.compression.writerOption())
	if _, err := pqWriter.Write(rows); err != nil {
		return "", fmt.Errorf("storage: write rows: %w", err)
	}
	if err := pqWriter.Close(); err != nil {
		return "", fmt.Errorf("storage: close parquet writer: %w", err)
	}

	return path, nil
}

func toParquetRow(p model.Paper) paperRow {
	row := paperRow{
		ID:        p.ID,
		Name:      p.Name,
		Reference: p.Reference,
		PaperType: p.PaperType,
		City:      p.City,
		FullText:  p.FullText,
	}
	if !p.Date.IsZero() {
		row.Date = p.Date.Format("2006-01-02")
	}
	for _, loc := range p.Locations {
		row.Locations = append(row.Locations, locationRow{
			Category:    string(loc.Category),
			Canonical:   loc.CanonicalName,
			DisplayName: loc.DisplayName,
			Lat:         loc.Lat,
			Lon:         loc.Lon,
			HasCoords:   loc.HasCoords,
			Provenance:  string(loc.Provenance),
			Count:       loc.Count,
			PDFURL:      loc.PDFURL,
		})
	}
	return row
}
