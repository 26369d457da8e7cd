package spatial

import (
	"fmt"
	"strings"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// Config mirrors config.SpatialConfig without importing internal/config.
type Config struct {
	GazetteerPath  string
	NERModel       string
	FuzzyThreshold float64
	BlocklistPath  string
}

// Extractor is the Location Extractor (component C): it runs the
// gazetteer, regex and NER passes over a paper's extracted text and
// returns deduplicated CandidateToponyms. It holds no per-call state and
// is safe for concurrent use by multiple workers.
type Extractor struct {
	gazetteer *Gazetteer
	blocklist *Blocklist
	ner       EntityRecognizer
	threshold float64
}

// NewExtractor loads the gazetteer and blocklist from disk and wires an
// EntityRecognizer when cfg.NERModel is non-empty. A gazetteer or
// blocklist load failure is returned as an error since both are
// configuration mistakes worth failing startup over; a missing *file* at
// either path is not an error (see LoadGazetteer/LoadBlocklist).
func NewExtractor(cfg Config, ner EntityRecognizer) (*Extractor, error) {
	gaz, err := LoadGazetteer(cfg.GazetteerPath)
	if err != nil {
		return nil, fmt.Errorf("spatial: %w", err)
	}
	block, err := LoadBlocklist(cfg.BlocklistPath)
	if err != nil {
		return nil, fmt.Errorf("spatial: %w", err)
	}

	if ner == nil && cfg.NERModel != "" {
		ner, err = NewProseRecognizer()
		if err != nil {
			return nil, fmt.Errorf("spatial: NER model %q failed to load: %w", cfg.NERModel, err)
		}
	}

	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}

	return &Extractor{gazetteer: gaz, blocklist: block, ner: ner, threshold: threshold}, nil
}

// Extract runs all passes over text and returns deduplicated candidates,
// each tagged with the Paper and PDF URL it came from so every downstream
// Location keeps its source back-pointer (spec.md §8 property 1).
func (e *Extractor) Extract(paperID, pdfURL, text string) []model.Location {
	var candidates []model.CandidateToponym
	candidates = append(candidates, e.gazetteer.scan(text)...)
	candidates = append(candidates, scanRegex(text)...)
	candidates = append(candidates, e.scanNERPass(text)...)

	return dedupeAndAttach(paperID, pdfURL, candidates)
}

// scanNERPass is pass 6: raw NER candidates are either upgraded to
// MethodNERValidated by a fuzzy gazetteer match, passed through as an
// unvalidated CategoryOtherPlace candidate, or dropped entirely when
// blocklisted — mirroring location_extractor.py's validate/clean step.
func (e *Extractor) scanNERPass(text string) []model.CandidateToponym {
	raw := scanNER(e.ner, text)
	if len(raw) == 0 {
		return nil
	}

	validated := validateAgainstGazetteer(e.gazetteer, e.threshold, raw)
	validatedSurfaces := make(map[string]bool, len(validated))
	for _, v := range validated {
		validatedSurfaces[normalize(v.Surface)] = true
	}

	out := append([]model.CandidateToponym{}, validated...)
	for _, c := range raw {
		if validatedSurfaces[normalize(c.Surface)] {
			continue
		}
		if e.blocklist.Contains(c.Surface) {
			continue
		}
		c.Category = model.CategoryOtherPlace
		out = append(out, c)
	}
	return out
}

// dedupeAndAttach deduplicates by (category, lowercased canonical name),
// keeping the first occurrence — the same seen-set keyed on
// (type, value.lower()) that extract_locations() in spatial.py uses — then
// converts surviving candidates into Locations, counting repeat mentions.
func dedupeAndAttach(paperID, pdfURL string, candidates []model.CandidateToponym) []model.Location {
	order := make([]string, 0, len(candidates))
	byKey := make(map[string]*model.Location, len(candidates))

	for _, c := range candidates {
		name := c.Canonical
		if name == "" {
			name = c.Surface
		}
		key := string(c.Category) + "|" + strings.ToLower(strings.TrimSpace(name))

		if existing, ok := byKey[key]; ok {
			existing.Count++
			continue
		}

		loc := &model.Location{
			PaperID:       paperID,
			PDFURL:        pdfURL,
			Category:      c.Category,
			CanonicalName: name,
			DisplayName:   name,
			Lat:           c.Lat,
			Lon:           c.Lon,
			HasCoords:     c.HasCoords,
			Count:         1,
		}
		if c.HasCoords {
			loc.Provenance = model.ProvenanceGazetteer
		}
		byKey[key] = loc
		order = append(order, key)
	}

	out := make([]model.Location, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}
