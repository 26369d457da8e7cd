package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// extractPrimary concatenates each page's text-showing operators (Tj/TJ) in
// document order, one page per line. pdfcpu has no dedicated text-layer
// API; api.ExtractContentFile is the idiomatic in-pack substitute — it
// writes each page's raw content stream to a file, which this tokenizer
// then decodes.
func extractPrimary(pdfPath string, pageCount int) (string, error) {
	pages, err := extractContentStreams(pdfPath, pageCount)
	if err != nil {
		return "", err
	}
	var out []string
	for _, stream := range pages {
		out = append(out, tokenizeShowText(stream))
	}
	return strings.Join(out, "\n"), nil
}

// extractLayout re-runs the same tokenizer but reconstructs whitespace from
// the stream's positioning operators (Td/TD) instead of simple
// concatenation — an approximation of layout-awareness without pulling in
// a second PDF library, for documents whose Tj runs are so finely split
// that naive concatenation collapses words together.
func extractLayout(pdfPath string, pageCount int) (string, error) {
	pages, err := extractContentStreams(pdfPath, pageCount)
	if err != nil {
		return "", err
	}
	var out []string
	for _, stream := range pages {
		out = append(out, tokenizeWithLayout(stream))
	}
	return strings.Join(out, "\n"), nil
}

func extractContentStreams(pdfPath string, pageCount int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "oparl-content-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pageNrs := make([]int, pageCount)
	for i := range pageNrs {
		pageNrs[i] = i + 1
	}
	pageSelection := make([]string, pageCount)
	for i, n := range pageNrs {
		pageSelection[i] = strconv.Itoa(n)
	}
	if err := api.ExtractContentFile(pdfPath, dir, pageSelection, nil); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	streams := make([][]byte, 0, pageCount)
	for _, n := range pageNrs {
		name := filepath.Join(dir, base+"_Content_Page_"+strconv.Itoa(n)+".txt")
		data, err := os.ReadFile(name)
		if err != nil {
			// Some pages legitimately have no content stream (blank
			// pages); treat as empty rather than failing extraction.
			streams = append(streams, nil)
			continue
		}
		streams = append(streams, data)
	}
	return streams, nil
}

// tokenizeShowText scans a PDF content stream for Tj/TJ string-showing
// operators and concatenates their decoded string operands.
func tokenizeShowText(stream []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(stream) {
		switch stream[i] {
		case '(':
			s, next := readParenString(stream, i)
			i = next
			op, after := peekOperator(stream, i)
			if op == "Tj" || op == "'" || op == "\"" {
				sb.WriteString(s)
				sb.WriteByte(' ')
				i = after
			}
		case '[':
			s, next := readShowArray(stream, i)
			i = next
			op, after := peekOperator(stream, i)
			if op == "TJ" {
				sb.WriteString(s)
				sb.WriteByte(' ')
				i = after
			}
		default:
			i++
		}
	}
	return sb.String()
}

// tokenizeWithLayout behaves like tokenizeShowText but inserts a newline
// at every Td/TD operator, approximating line breaks. The operands of
// Td/TD are not read, so a move along the same line also gets a newline.
func tokenizeWithLayout(stream []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(stream) {
		switch {
		case stream[i] == '(':
			s, next := readParenString(stream, i)
			i = next
			op, after := peekOperator(stream, i)
			if op == "Tj" || op == "'" || op == "\"" {
				sb.WriteString(s)
				sb.WriteByte(' ')
				i = after
			}
		case stream[i] == '[':
			s, next := readShowArray(stream, i)
			i = next
			op, after := peekOperator(stream, i)
			if op == "TJ" {
				sb.WriteString(s)
				sb.WriteByte(' ')
				i = after
			}
		case matchesOperatorAt(stream, i, "Td") || matchesOperatorAt(stream, i, "TD"):
			sb.WriteByte('\n')
			i += 2
		default:
			i++
		}
	}
	return sb.String()
}

func readParenString(stream []byte, start int) (string, int) {
	var sb strings.Builder
	i := start + 1
	depth := 1
	for i < len(stream) && depth > 0 {
		switch stream[i] {
		case '\\':
			if i+1 < len(stream) {
				sb.WriteByte(unescapePDF(stream[i+1]))
				i += 2
				continue
			}
		case '(':
			depth++
			sb.WriteByte(stream[i])
		case ')':
			depth--
			if depth == 0 {
				i++
				return sb.String(), i
			}
			sb.WriteByte(stream[i])
		default:
			sb.WriteByte(stream[i])
		}
		i++
	}
	return sb.String(), i
}

func unescapePDF(b byte) byte {
	switch b {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return b
	}
}

// readShowArray reads a TJ operand array "[(foo) -200 (bar)]", discarding
// the kerning numbers and concatenating the string runs.
func readShowArray(stream []byte, start int) (string, int) {
	var sb strings.Builder
	i := start + 1
	for i < len(stream) && stream[i] != ']' {
		if stream[i] == '(' {
			s, next := readParenString(stream, i)
			sb.WriteString(s)
			i = next
			continue
		}
		i++
	}
	if i < len(stream) {
		i++ // consume ']'
	}
	return sb.String(), i
}

func peekOperator(stream []byte, from int) (string, int) {
	i := from
	for i < len(stream) && (stream[i] == ' ' || stream[i] == '\n' || stream[i] == '\r') {
		i++
	}
	for _, op := range []string{"TJ", "Tj", "'", "\""} {
		if bytes.HasPrefix(stream[i:], []byte(op)) {
			return op, i + len(op)
		}
	}
	return "", from
}

func matchesOperatorAt(stream []byte, i int, op string) bool {
	if !bytes.HasPrefix(stream[i:], []byte(op)) {
		return false
	}
	end := i + len(op)
	if end < len(stream) && isAlnum(stream[end]) {
		return false
	}
	return true
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
