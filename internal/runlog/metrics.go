// Package runlog sets up structured logging and run counters. Grounded on
// rag/internal/metrics/metrics.go for the expvar counter set, generalized
// from the RAG indexer's sync/embedding counters to the pipeline's
// fetch/extract/locate/geocode/write stages.
package runlog

import (
	"expvar"
	"log/slog"
	"os"
)

var (
	PapersFetched      = expvar.NewInt("oparl_papers_fetched_total")
	PapersProcessed    = expvar.NewInt("oparl_papers_processed_total")
	PapersSkipped      = expvar.NewInt("oparl_papers_skipped_total")
	ExtractionsFailed  = expvar.NewInt("oparl_extractions_failed_total")
	EnrichmentsFailed  = expvar.NewInt("oparl_enrichments_failed_total")
	LocationsExtracted = expvar.NewInt("oparl_locations_extracted_total")
	LocationsGeocoded  = expvar.NewInt("oparl_locations_geocoded_total")
	BatchesWritten     = expvar.NewInt("oparl_batches_written_total")
	CheckpointsWritten = expvar.NewInt("oparl_checkpoints_written_total")
)

// NewLogger builds the process-wide structured logger. level follows
// slog's naming ("debug", "info", "warn", "error"); an unrecognized value
// falls back to info, matching the teacher's forgiving config-parsing
// style elsewhere in this repo.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
