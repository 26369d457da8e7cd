package model

import "fmt"

// ToponymCategory classifies a candidate or resolved place reference.
type ToponymCategory string

const (
	CategoryStreet        ToponymCategory = "street"
	CategoryDistrict      ToponymCategory = "district"
	CategoryPlanReference ToponymCategory = "plan_reference"
	CategoryParcel        ToponymCategory = "parcel_number"
	CategoryOtherPlace    ToponymCategory = "other_place"
)

// CandidateMethod is how the Location Extractor produced a CandidateToponym.
type CandidateMethod string

const (
	MethodGazetteerDirect CandidateMethod = "gazetteer_direct"
	MethodNERValidated    CandidateMethod = "ner_validated"
	MethodNERRaw          CandidateMethod = "ner_raw"
	MethodRegex           CandidateMethod = "regex"
)

// CandidateToponym is the intermediate product of the Location Extractor,
// before the Geocoder attaches coordinates.
type CandidateToponym struct {
	Surface  string
	Category ToponymCategory
	Method   CandidateMethod
	// Lat/Lon are pre-filled when the gazetteer pass supplied them; zero
	// value (both absent) otherwise.
	Lat, Lon   float64
	HasCoords  bool
	Canonical  string
	// FuzzyScore is the gazetteer-match similarity for MethodNERValidated
	// candidates; zero for every other method.
	FuzzyScore float64
}

// Provenance is the source of evidence for a resolved Location's
// coordinates (or the lack of them).
type Provenance string

const (
	ProvenanceGazetteer      Provenance = "gazetteer"
	ProvenanceRemoteGeocoder Provenance = "remote-geocoder"
	ProvenanceUnresolved     Provenance = "unresolved"
)

// Location is a resolved toponym: the product of the Geocoder. Every
// Location carries both the Paper identifier and the PDF URL it was
// extracted from — there are no orphan Locations.
type Location struct {
	PaperID       string
	PDFURL        string
	Category      ToponymCategory
	CanonicalName string
	Lat, Lon      float64
	HasCoords     bool
	DisplayName   string
	Provenance    Provenance
	Count         int
}

// Validate checks the coordinate-validity and provenance invariants from
// spec.md §8 (properties 1 and 3).
func (l Location) Validate() []ValidationError {
	var errs []ValidationError
	if l.PaperID == "" {
		errs = append(errs, ValidationError{"paper_id", "location has no paper_id"})
	}
	if l.PDFURL == "" {
		errs = append(errs, ValidationError{"pdf_url", "location has no pdf_url"})
	}
	if l.HasCoords && !ValidCoordinate(l.Lat, l.Lon) {
		errs = append(errs, ValidationError{
			Field:   "coordinates",
			Message: fmt.Sprintf("lat=%f lon=%f out of range", l.Lat, l.Lon),
		})
	}
	return errs
}

// ValidCoordinate reports whether lat/lon lie within the WGS84 ranges
// spec.md §4.D requires; results violating this are discarded and treated
// as empty by the Geocoder.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// GazetteerEntry is static reference data loaded once at startup and never
// mutated during a run.
type GazetteerEntry struct {
	Canonical  string   `yaml:"canonical"`
	Normalized string   `yaml:"normalized"`
	Aliases    []string `yaml:"aliases"`
	Lat        float64  `yaml:"lat"`
	Lon        float64  `yaml:"lon"`
	Category   ToponymCategory `yaml:"category"`
}
