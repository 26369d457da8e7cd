package spatial

import (
	"regexp"
	"strings"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// The first three patterns are translated verbatim (RE2 accepts the same
// non-capturing-group and character-class syntax Python's re module does
// here; only the inline (?i) flag placement differs) from
// original_source/src/spatial.py's bplan_pattern, flur_pattern and
// address_pattern. districtPattern is adapted from its district_pattern:
// only the keywords are case-insensitive, and the name is a run of
// capitalized words, so "in der Ludwigstrasse" yields no district and
// "in Au statt" yields "Au".
var (
	bplanPattern = regexp.MustCompile(
		`(?i)Bebauungsplan(?:\s+(?:Nr\.?|Nummer))?\s*([A-Z]?\d+[a-z]?(?:\s*[-/]\s*\d+)?)`)

	flurPattern = regexp.MustCompile(
		`(?i)Flur(?:stück)?(?:\s+(?:Nr\.?|Nummer))?\s*(\d+(?:\s*/\s*\d+)?)`)

	addressPattern = regexp.MustCompile(
		`(?i)([A-ZÄÖÜ][a-zäöüß]+(?:straße|str\.|platz|weg|allee|gasse))\s+(\d+[a-z]?)`)

	districtPattern = regexp.MustCompile(
		`(?i:Stadtteil|Stadtbezirk|in)\s+([A-ZÄÖÜ][a-zäöüß]+(?:\s+[A-ZÄÖÜ][a-zäöüß]+)*)`)
)

// scanRegex is passes 2-5 of the algorithm: B-Plan references, parcel
// (Flurstück) numbers, street+house-number addresses, and district names,
// each tagged with the category the original assigns them.
func scanRegex(text string) []model.CandidateToponym {
	var out []model.CandidateToponym

	for _, m := range bplanPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, model.CandidateToponym{
			Surface:   strings.TrimSpace(m[1]),
			Canonical: "Bebauungsplan " + strings.TrimSpace(m[1]),
			Category:  model.CategoryPlanReference,
			Method:    model.MethodRegex,
		})
	}

	for _, m := range flurPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, model.CandidateToponym{
			Surface:   strings.TrimSpace(m[1]),
			Canonical: "Flurstück " + strings.TrimSpace(m[1]),
			Category:  model.CategoryParcel,
			Method:    model.MethodRegex,
		})
	}

	for _, m := range addressPattern.FindAllStringSubmatch(text, -1) {
		street := strings.TrimSpace(m[1])
		houseNumber := strings.TrimSpace(m[2])
		out = append(out, model.CandidateToponym{
			Surface:   street + " " + houseNumber,
			Canonical: street + " " + houseNumber,
			Category:  model.CategoryStreet,
			Method:    model.MethodRegex,
		})
	}

	for _, m := range districtPattern.FindAllStringSubmatch(text, -1) {
		district := strings.TrimSpace(m[1])
		if len(district) <= 3 {
			continue
		}
		out = append(out, model.CandidateToponym{
			Surface:   district,
			Canonical: district,
			Category:  model.CategoryDistrict,
			Method:    model.MethodRegex,
		})
	}

	return out
}
