// Package model defines the shared entities that flow between the pipeline's
// components: Paper records from the API client through to the writers.
package model

import (
	"fmt"
	"time"
)

// FileDescriptor is a file attached to a Paper, as returned by the OParl
// list endpoint. It is transient: consumed during extraction, never
// persisted as its own entity.
type FileDescriptor struct {
	AccessURL string `json:"accessUrl" yaml:"access_url"`
	MimeType  string `json:"mimeType" yaml:"mime_type"`
	Size      int64  `json:"size" yaml:"size"`
	FileName  string `json:"fileName" yaml:"file_name"`
}

// IsPDF reports whether the descriptor's MIME type is some form of "pdf".
func (f FileDescriptor) IsPDF() bool {
	return f.MimeType == "application/pdf" || f.MimeType == "pdf"
}

// Paper is the central entity: a council document record and the unit of
// processing for every component downstream of the API client.
type Paper struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Reference     string           `json:"reference,omitempty"`
	Date          time.Time        `json:"date"`
	PaperType     string           `json:"paperType,omitempty"`
	Files         []FileDescriptor `json:"files,omitempty"`
	MainFile      *FileDescriptor  `json:"mainFile,omitempty"`
	FullText      string           `json:"fullText,omitempty"`
	Locations     []Location       `json:"locations,omitempty"`
	City          string           `json:"city,omitempty"`
}

// PrimaryFile returns the file to extract text from: the pre-selected main
// file when set, otherwise the first PDF-like descriptor. The second return
// value is false when the Paper carries no accessible file, in which case
// the caller must record it skipped, not failed.
func (p Paper) PrimaryFile() (FileDescriptor, bool) {
	if p.MainFile != nil && p.MainFile.AccessURL != "" {
		return *p.MainFile, true
	}
	for _, f := range p.Files {
		if f.IsPDF() && f.AccessURL != "" {
			return f, true
		}
	}
	return FileDescriptor{}, false
}

// ValidationError describes one failed field-level check on a Paper or
// Location, supplementing spec.md with the validation pass the original
// implementation (src/validation.py) runs before a batch is finalized.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate runs the required-field checks the original pipeline performs
// before a Paper is handed to the writers. It never fails extraction or
// enrichment on its own; the orchestrator does not call it, so the caller
// decides how to treat the result.
func (p Paper) Validate() []ValidationError {
	var errs []ValidationError
	if p.ID == "" {
		errs = append(errs, ValidationError{"id", "paper identifier is empty"})
	}
	if p.Name == "" {
		errs = append(errs, ValidationError{"name", "paper title is empty"})
	}
	if p.Date.IsZero() {
		errs = append(errs, ValidationError{"date", "paper date is unset"})
	}
	for i, loc := range p.Locations {
		for _, lerr := range loc.Validate() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("locations[%d].%s", i, lerr.Field),
				Message: lerr.Message,
			})
		}
	}
	return errs
}
