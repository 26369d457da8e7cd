package spatial

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// defaultFuzzyThreshold mirrors the original's thefuzz.process.extractOne default
// of 85 (out of 100); levenshtein.Match already returns a 0..1 similarity,
// so this is expressed as a fraction.
const defaultFuzzyThreshold = 0.85

var fuzzyParams = levenshtein.NewParams()

// validateAgainstGazetteer is pass 6's second half: a raw NER candidate is
// only kept if it fuzzy-matches some gazetteer entry above threshold, and
// if so its canonical name is set to the gazetteer's clean canonical name
// (the NER span stays in Surface) — location_extractor.py's behavior of
// swapping the dirty NER span for `best_match[0]` from thefuzz.
func validateAgainstGazetteer(g *Gazetteer, threshold float64, candidates []model.CandidateToponym) []model.CandidateToponym {
	if g.Len() == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}

	var out []model.CandidateToponym
	for _, c := range candidates {
		entry, score, ok := bestMatch(g, c.Surface, threshold)
		if !ok {
			continue
		}
		out = append(out, model.CandidateToponym{
			Surface:   c.Surface,
			Canonical: entry.Canonical,
			Category:  categoryOrDefault(entry.Category),
			Method:    model.MethodNERValidated,
			Lat:       entry.Lat,
			Lon:       entry.Lon,
			HasCoords: true,
			FuzzyScore: score,
		})
	}
	return out
}

func categoryOrDefault(c model.ToponymCategory) model.ToponymCategory {
	if c == "" {
		return model.CategoryStreet
	}
	return c
}

// bestMatch finds the gazetteer entry whose canonical name (or any alias)
// is most similar to surface by token-set-style comparison, matching
// thefuzz's fuzz.token_set_ratio behavior of ignoring token order and
// duplicate words.
func bestMatch(g *Gazetteer, surface string, threshold float64) (model.GazetteerEntry, float64, bool) {
	var best model.GazetteerEntry
	bestScore := 0.0
	found := false

	for _, entry := range g.Entries() {
		candidates := append([]string{entry.Canonical}, entry.Aliases...)
		for _, c := range candidates {
			score := tokenSetRatio(surface, c)
			if score > bestScore {
				bestScore = score
				best = entry
				found = true
			}
		}
	}

	if !found || bestScore < threshold {
		return model.GazetteerEntry{}, 0, false
	}
	return best, bestScore, true
}

// tokenSetRatio approximates fuzz.token_set_ratio: tokenize both strings,
// compare the sorted-unique-token-joined forms with normalized Levenshtein
// similarity, which is order- and duplicate-insensitive the same way
// token_set_ratio is.
func tokenSetRatio(a, b string) float64 {
	sa := sortedUniqueTokens(a)
	sb := sortedUniqueTokens(b)
	if sa == "" || sb == "" {
		return 0
	}
	return levenshtein.Match(sa, sb, fuzzyParams)
}

func sortedUniqueTokens(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	seen := make(map[string]bool, len(fields))
	var unique []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			unique = append(unique, f)
		}
	}
	sort.Strings(unique)
	return strings.Join(unique, " ")
}
