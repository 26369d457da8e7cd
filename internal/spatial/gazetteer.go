// Package spatial implements the Location Extractor (component C): a
// gazetteer scan, a regex scan for structured references, and NER with
// fuzzy gazetteer validation, grounded on original_source/src/spatial.py
// and location_extractor.py.
package spatial

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// Gazetteer is the read-only reference data loaded once at startup
// (spec.md §3 invariant: entries are read-only during a run).
type Gazetteer struct {
	byAlias map[string]model.GazetteerEntry
	entries []model.GazetteerEntry
}

type gazetteerFile struct {
	Entries []model.GazetteerEntry `yaml:"entries"`
}

// LoadGazetteer reads the YAML gazetteer at path. An empty path or a
// missing file is not an error — it yields an empty gazetteer, so matching
// degrades to the regex pass, mirroring the original's graceful
// "Gazetteer nicht vorhanden" fallback; nothing is logged for it. Any
// other read error, and a parse error, is returned.
func LoadGazetteer(path string) (*Gazetteer, error) {
	g := &Gazetteer{byAlias: make(map[string]model.GazetteerEntry)}
	if path == "" {
		return g, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return g, fmt.Errorf("read gazetteer %s: %w", path, err)
	}

	var file gazetteerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return g, fmt.Errorf("parse gazetteer %s: %w", path, err)
	}

	for _, e := range file.Entries {
		g.add(e)
	}
	return g, nil
}

func (g *Gazetteer) add(e model.GazetteerEntry) {
	g.entries = append(g.entries, e)
	g.byAlias[normalize(e.Canonical)] = e
	for _, alias := range e.Aliases {
		g.byAlias[normalize(alias)] = e
	}
}

// Entries returns every loaded entry, for fuzzy matching against
// canonical names.
func (g *Gazetteer) Entries() []model.GazetteerEntry { return g.entries }

// Len reports the number of distinct canonical entries loaded.
func (g *Gazetteer) Len() int { return len(g.entries) }

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// wholeWordPattern compiles a whole-word, case-insensitive matcher for a
// literal surface string.
func wholeWordPattern(surface string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(surface) + `\b`)
}

// scanGazetteer is pass 1 of the algorithm: check whether each entry's
// canonical form or any alias appears in text as a whole word. It also
// pre-fills coordinates, since the Geocoder accepts these as already
// resolved.
func (g *Gazetteer) scan(text string) []model.CandidateToponym {
	var out []model.CandidateToponym
	seen := make(map[string]bool)
	for _, e := range g.entries {
		surfaces := append([]string{e.Canonical}, e.Aliases...)
		for _, surface := range surfaces {
			if surface == "" || seen[normalize(e.Canonical)] {
				continue
			}
			pattern, err := wholeWordPattern(surface)
			if err != nil {
				continue
			}
			if pattern.MatchString(text) {
				category := e.Category
				if category == "" {
					category = model.CategoryStreet
				}
				out = append(out, model.CandidateToponym{
					Surface:   surface,
					Canonical: e.Canonical,
					Category:  category,
					Method:    model.MethodGazetteerDirect,
					Lat:       e.Lat,
					Lon:       e.Lon,
					HasCoords: true,
				})
				seen[normalize(e.Canonical)] = true
				break
			}
		}
	}
	return out
}

// lookup returns the gazetteer entry for a normalized name, if any.
func (g *Gazetteer) lookup(normalized string) (model.GazetteerEntry, bool) {
	e, ok := g.byAlias[normalized]
	return e, ok
}
