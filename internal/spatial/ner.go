package spatial

import (
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// EntityRecognizer finds location-like spans in free text. The production
// implementation wraps prose/v2's statistical tagger (the only NER library
// in the retrieved corpus); a nil EntityRecognizer disables pass 6
// entirely, matching the original's behavior when spaCy's model fails to
// load.
type EntityRecognizer interface {
	Locations(text string) []string
}

// proseRecognizer extracts GPE/LOC-tagged tokens via prose/v2's built-in
// English model, grounded on location_extractor.py's
// get_locations_from_text (spaCy's en_core_web_sm NER pass, generalized
// here to whatever model prose ships).
type proseRecognizer struct{}

// NewProseRecognizer builds the default EntityRecognizer. It returns an
// error if prose's bundled model fails to initialize, so the caller can
// decide whether to run degraded (nil recognizer) or fail startup.
func NewProseRecognizer() (EntityRecognizer, error) {
	// prose.NewDocument lazily loads its model per call; a cheap sentinel
	// document at construction time surfaces model-loading failures early
	// rather than on the first real paper.
	if _, err := prose.NewDocument("Augsburg"); err != nil {
		return nil, err
	}
	return proseRecognizer{}, nil
}

func (proseRecognizer) Locations(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	var out []string
	for _, ent := range doc.Entities() {
		if ent.Label == "GPE" || ent.Label == "LOC" || ent.Label == "FAC" {
			out = append(out, ent.Text)
		}
	}

	// keyword pass: words containing a street-type suffix, the same
	// heuristic location_extractor.py falls back to when the spaCy pass
	// finds nothing for a paragraph. Here it runs on every call, in
	// addition to the entity results above.
	for _, word := range strings.Fields(text) {
		lower := strings.ToLower(word)
		for _, suffix := range []string{"straße", "strasse", "platz", "allee", "weg", "gasse"} {
			if strings.Contains(lower, suffix) {
				out = append(out, strings.Trim(word, ".,;:()"))
				break
			}
		}
	}

	return out
}

func scanNER(rec EntityRecognizer, text string) []model.CandidateToponym {
	if rec == nil {
		return nil
	}
	var out []model.CandidateToponym
	for _, surface := range rec.Locations(text) {
		surface = strings.TrimSpace(surface)
		if surface == "" {
			continue
		}
		out = append(out, model.CandidateToponym{
			Surface:   surface,
			Canonical: surface,
			Category:  model.CategoryStreet,
			Method:    model.MethodNERRaw,
		})
	}
	return out
}
