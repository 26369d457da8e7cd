// Package storage implements the Writers (component F): a partitioned
// columnar dataset and a semantic graph. The graph writer's
// triple/Turtle-table shape is grounded on
// C360Studio-semspec/export/rdf.go's RDFExporter.toTurtle, generalized
// from its BFO/CCO profile switch to a fixed OParl-flavored prefix set.
package storage

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

var graphPrefixes = map[string]string{
	"rdf":     "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"oparl":   "https://schema.oparl.org/1.1/",
	"dcterms": "http://purl.org/dc/terms/",
	"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",
	"geo":     "http://www.w3.org/2003/01/geo/wgs84_pos#",
	"xsd":     "http://www.w3.org/2001/XMLSchema#",
}

// triple is one RDF statement, kept in the same subject/predicate/object
// table shape rdf.go uses.
type triple struct {
	subject   string
	predicate string
	object    string // already serialized: either <iri> or a quoted literal
}

// GraphWriter accumulates triples for resolved Papers and their Locations,
// appending N-Triples as soon as each Paper's Locations are resolved, and
// re-serializing the whole table as Turtle only at Finalize — the
// append-only-with-periodic-finalization design spec.md §9 settles on.
type GraphWriter struct {
	ntPath  string
	ttlPath string
	nt      *os.File
	writer  *bufio.Writer
	all     []triple
}

// NewGraphWriter opens (creating if needed) the N-Triples file at ntPath
// for appending, and records ttlPath as the Turtle file Finalize will
// write.
func NewGraphWriter(ntPath, ttlPath string) (*GraphWriter, error) {
	f, err := os.OpenFile(ntPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", ntPath, err)
	}
	return &GraphWriter{ntPath: ntPath, ttlPath: ttlPath, nt: f, writer: bufio.NewWriter(f)}, nil
}

// WritePaper appends every triple describing paper and its resolved
// Locations to the N-Triples file, flushing immediately so a crash loses
// at most the in-flight paper, never previously appended ones.
func (g *GraphWriter) WritePaper(paper model.Paper) error {
	triples := paperTriples(paper)
	for _, t := range triples {
		line := fmt.Sprintf("<%s> <%s> %s .\n", iri(t.subject), iri(t.predicate), t.object)
		if _, err := g.writer.WriteString(line); err != nil {
			return fmt.Errorf("storage: write triple: %w", err)
		}
	}
	if err := g.writer.Flush(); err != nil {
		return fmt.Errorf("storage: flush n-triples: %w", err)
	}
	g.all = append(g.all, triples...)
	return nil
}

// Finalize re-serializes every triple accumulated this run as prefixed
// Turtle and writes it once to ttlPath. It does not touch the N-Triples
// file, which remains the durable append-only record.
func (g *GraphWriter) Finalize() error {
	var sb strings.Builder
	for _, prefix := range sortedPrefixes() {
		sb.WriteString(fmt.Sprintf("@prefix %s: <%s> .\n", prefix, graphPrefixes[prefix]))
	}
	sb.WriteString("\n")

	bySubject := groupBySubject(g.all)
	subjects := make([]string, 0, len(bySubject))
	for s := range bySubject {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		preds := bySubject[subject]
		sb.WriteString(fmt.Sprintf("<%s>\n", iri(subject)))
		for i, t := range preds {
			sb.WriteString(fmt.Sprintf("    <%s> %s", iri(t.predicate), t.object))
			if i < len(preds)-1 {
				sb.WriteString(" ;\n")
			} else {
				sb.WriteString(" .\n")
			}
		}
		sb.WriteString("\n")
	}

	if err := os.WriteFile(g.ttlPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("storage: write turtle: %w", err)
	}
	return nil
}

// Close flushes and closes the N-Triples file handle.
func (g *GraphWriter) Close() error {
	if err := g.writer.Flush(); err != nil {
		g.nt.Close()
		return err
	}
	return g.nt.Close()
}

func sortedPrefixes() []string {
	prefixes := make([]string, 0, len(graphPrefixes))
	for prefix := range graphPrefixes {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

func groupBySubject(all []triple) map[string][]triple {
	out := make(map[string][]triple)
	for _, t := range all {
		out[t.subject] = append(out[t.subject], t)
	}
	return out
}

// iri expands a short CURIE-like "oparl:Paper/123" into a full IRI; inputs
// that already look like a full IRI pass through unchanged.
func iri(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 2 {
		if ns, ok := graphPrefixes[parts[0]]; ok {
			return ns + parts[1]
		}
	}
	return s
}

func paperTriples(paper model.Paper) []triple {
	subject := "oparl:paper/" + paper.ID

	out := []triple{
		{subject, "rdf:type", "<" + graphPrefixes["oparl"] + "Paper>"},
		{subject, "dcterms:title", literal(paper.Name)},
		{subject, "dcterms:identifier", literal(paper.Reference)},
		{subject, "oparl:city", literal(paper.City)},
	}
	if !paper.Date.IsZero() {
		out = append(out, triple{subject, "dcterms:date", literalTyped(paper.Date.Format("2006-01-02"), "xsd:date")})
	}
	if file, ok := paper.PrimaryFile(); ok && file.AccessURL != "" {
		out = append(out, triple{subject, "oparl:mainFile", "<" + file.AccessURL + ">"})
	}

	for _, loc := range paper.Locations {
		locSubject := fmt.Sprintf("%s/location/%s", subject, locationHash(paper.ID, loc.Category, loc.CanonicalName))
		out = append(out, triple{subject, "oparl:relatesToLocation", "<" + iri(locSubject) + ">"})
		out = append(out,
			triple{locSubject, "rdf:type", "<" + graphPrefixes["oparl"] + "Location>"},
			triple{locSubject, "rdfs:label", literal(loc.DisplayName)},
			triple{locSubject, "oparl:category", literal(string(loc.Category))},
			triple{locSubject, "oparl:provenance", literal(string(loc.Provenance))},
			triple{locSubject, "oparl:sourcePDF", "<" + loc.PDFURL + ">"},
		)
		if loc.HasCoords {
			out = append(out,
				triple{locSubject, "geo:lat", literalTyped(strconv.FormatFloat(loc.Lat, 'f', -1, 64), "xsd:decimal")},
				triple{locSubject, "geo:long", literalTyped(strconv.FormatFloat(loc.Lon, 'f', -1, 64), "xsd:decimal")},
			)
		}
	}

	return out
}

// locationHash derives a stable Location node identifier from
// (paper_id, category, canonical_name), per spec.md §4.F's URI scheme —
// a slice index would reorder across runs or batches for the same
// Location, breaking the dedup stability the hash exists to provide.
func locationHash(paperID string, category model.ToponymCategory, canonicalName string) string {
	h := fnv.New64a()
	h.Write([]byte(paperID))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(canonicalName))
	return strconv.FormatUint(h.Sum64(), 16)
}

func literal(s string) string {
	return "\"" + escapeLiteral(s) + "\""
}

func literalTyped(s, datatype string) string {
	return "\"" + escapeLiteral(s) + "\"^^<" + iri(datatype) + ">"
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	return s
}
