package spatial

import (
	"bufio"
	"os"
	"strings"
)

// Blocklist holds generic terms (e.g. "Ratssaal", "Ausschuss") that NER
// occasionally tags as a location but that never belong in the location
// layer, one entry per line in spatial.blocklist_path.
type Blocklist struct {
	terms map[string]bool
}

// LoadBlocklist reads a newline-delimited blocklist file. A missing path
// is not an error — it degrades to an empty blocklist.
func LoadBlocklist(path string) (*Blocklist, error) {
	b := &Blocklist{terms: make(map[string]bool)}
	if path == "" {
		return b, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return b, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.terms[strings.ToLower(line)] = true
	}
	return b, scanner.Err()
}

// Contains reports whether surface (case-insensitively) is blocklisted.
func (b *Blocklist) Contains(surface string) bool {
	return b.terms[strings.ToLower(strings.TrimSpace(surface))]
}
