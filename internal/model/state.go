package model

import "time"

// Status is a Processing-state record's status. Transitions form a DAG:
// pending -> in-progress -> {completed, failed, skipped}; failed may
// re-enter pending only via an explicit retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ProcessingState is one record per (run ID, Paper ID) pair.
type ProcessingState struct {
	RunID      string
	PaperID    string
	Status     Status
	FirstSeen  time.Time
	LastUpdate time.Time
	RetryCount int
	LastError  string
}

// Run is one record per orchestrator invocation.
type Run struct {
	RunID      string
	City       string
	StartedAt  time.Time
	EndedAt    time.Time
	Fetched    int
	Processed  int
	Failed     int
	Skipped    int
	Located    int
	Geocoded   int
	Status     string
}

// Checkpoint is a periodic marker used to resume after a crash without
// re-processing completed work.
type Checkpoint struct {
	RunID              string
	BatchSeq           int
	LastCompletedPaper string
	WrittenAt          time.Time
}

// RunSummary is the counters-per-outcome report emitted at exit, per
// spec.md §7 ("no stack traces are required in the summary").
type RunSummary struct {
	RunID             string `json:"run_id"`
	City              string `json:"city"`
	Fetched           int    `json:"fetched"`
	Processed         int    `json:"processed"`
	FailedExtraction  int    `json:"failed_extraction"`
	FailedEnrichment  int    `json:"failed_enrichment"`
	Skipped           int    `json:"skipped"`
	LocationsFound    int    `json:"locations_extracted"`
	LocationsGeocoded int    `json:"locations_geocoded"`
	TerminalStatus    string `json:"terminal_status"`
	DurationMs        int64  `json:"duration_ms"`
}
